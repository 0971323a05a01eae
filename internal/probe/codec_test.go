package probe

import (
	"NetVerdict/internal/model"
	"testing"
	"time"
)

func TestFlowBatch_RoundTripKeepsOptionalFields(t *testing.T) {
	rate := 12.5
	in := FlowBatch{
		ID:     "b-1",
		SentAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		Flows: []model.RawFlowRecord{
			{
				ID: "f-1", SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 5555, DstPort: 443, Protocol: "6",
				Duration: 0, HasDuration: true, FwdPackets: 5, BytesPerSec: &rate,
				Fields: map[string]float64{"SYN Flag Count": 1},
			},
			{ID: "f-2", Vector: []float64{-1.5, 2, 3}},
		},
	}
	data, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out, err := UnmarshalFlowBatch(data)
	if err != nil {
		t.Fatalf("UnmarshalFlowBatch failed: %v", err)
	}
	if out.ID != "b-1" || !out.SentAt.Equal(in.SentAt) || len(out.Flows) != 2 {
		t.Fatalf("unexpected batch %+v", out)
	}

	f := out.Flows[0]
	if !f.HasDuration || f.Duration != 0 {
		t.Error("an explicit zero duration must survive the round trip")
	}
	if f.BytesPerSec == nil || *f.BytesPerSec != rate || f.PacketsPerSec != nil {
		t.Errorf("unexpected rates %v %v", f.BytesPerSec, f.PacketsPerSec)
	}
	if f.DstPort != 443 || f.FwdPackets != 5 || f.Fields["SYN Flag Count"] != 1 {
		t.Errorf("unexpected flow %+v", f)
	}
	if out.Flows[1].HasDuration || len(out.Flows[1].Vector) != 3 || out.Flows[1].Vector[0] != -1.5 {
		t.Errorf("unexpected second flow %+v", out.Flows[1])
	}
}

func TestUnmarshalFlowBatch_Garbage(t *testing.T) {
	if _, err := UnmarshalFlowBatch([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("Expected garbage to fail")
	}
}

func TestFlowFromMap_DropsOutOfRangePorts(t *testing.T) {
	r := flowFromMap(map[string]any{"src_port": 70000.0, "dst_port": -1.0})
	if r.SrcPort != 0 || r.DstPort != 0 {
		t.Errorf("Expected out-of-range ports to become 0, got %d and %d", r.SrcPort, r.DstPort)
	}
	r = flowFromMap(map[string]any{"src_port": 65535.0, "dst_port": 443.0})
	if r.SrcPort != 65535 || r.DstPort != 443 {
		t.Errorf("unexpected ports %d and %d", r.SrcPort, r.DstPort)
	}
}
