package ingest

import (
	"strings"
	"testing"
)

const cicSample = ` Flow ID, Source IP, Source Port, Destination IP, Destination Port, Protocol, Timestamp, Flow Duration, Total Fwd Packets, Total Backward Packets,Total Length of Fwd Packets, Total Length of Bwd Packets, Flow Bytes/s, Flow Packets/s, SYN Flag Count, Label
10.0.0.1-10.0.0.2-5555-80-6,10.0.0.1,5555,10.0.0.2,80,6,7/7/2017 3:30,2000000,4,2,600,400,500,3,1,BENIGN
10.0.0.3-10.0.0.2-6666-53-17,10.0.0.3,6666,10.0.0.2,53,17,7/7/2017 3:31,0,5,0,250,0,Infinity,NaN,,DDoS
`

func TestReadCSV_CICExport(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(cicSample), Options{})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}

	r := recs[0]
	if r.ID != "10.0.0.1-10.0.0.2-5555-80-6" || r.SrcIP != "10.0.0.1" || r.DstPort != 80 || r.ProtocolName() != "TCP" {
		t.Errorf("unexpected identity fields %+v", r)
	}
	if !r.HasDuration || r.Duration != 2 {
		t.Errorf("Expected 2s duration, got %v (present=%v)", r.Duration, r.HasDuration)
	}
	if r.FwdPackets != 4 || r.BwdPackets != 2 || r.FwdBytes != 600 || r.BwdBytes != 400 {
		t.Errorf("unexpected counters %+v", r)
	}
	if r.BytesPerSec == nil || *r.BytesPerSec != 500 {
		t.Errorf("Expected supplied bytes/s 500, got %v", r.BytesPerSec)
	}
	if v, ok := r.Field("SYN Flag Count"); !ok || v != 1 {
		t.Errorf("Expected trimmed extra column SYN Flag Count=1, got %v %v", v, ok)
	}
	if v, ok := r.Field("Flow Duration"); !ok || v != 2000000 {
		t.Errorf("Expected raw Flow Duration column to be kept, got %v", v)
	}
	if _, ok := r.Field("Destination Port"); ok {
		t.Error("identity columns must not become features")
	}
	if r.Timestamp.IsZero() {
		t.Error("Expected the CIC timestamp to parse")
	}

	z := recs[1]
	if z.BytesPerSec != nil || z.PacketsPerSec != nil {
		t.Errorf("Expected Infinity and NaN rates to be dropped, got %v %v", z.BytesPerSec, z.PacketsPerSec)
	}
	if _, ok := z.Field("SYN Flag Count"); ok {
		t.Error("Expected an empty cell to be dropped")
	}
	if !z.HasDuration || z.Duration != 0 {
		t.Errorf("Expected an explicit zero duration, got %v", z.Duration)
	}
}

func TestReadCSV_SnakeCaseAndUnits(t *testing.T) {
	body := "src_ip,dst_ip,dst_port,protocol,flow_duration,tot_fwd_pkts,tot_bwd_pkts\n1.1.1.1,2.2.2.2,22,TCP,1500,3,3\n"
	recs, err := ReadCSV(strings.NewReader(body), Options{DurationUnit: "milliseconds"})
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	r := recs[0]
	if r.SrcIP != "1.1.1.1" || r.DstPort != 22 || r.FwdPackets != 3 || r.BwdPackets != 3 {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Duration != 1.5 {
		t.Errorf("Expected 1.5s, got %v", r.Duration)
	}
	if r.ID == "" {
		t.Error("Expected a generated short id")
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), Options{}); err == nil {
		t.Error("Expected an empty input to fail")
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), Options{DurationUnit: "fortnights"}); err == nil {
		t.Error("Expected an unknown duration unit to fail")
	}
}
