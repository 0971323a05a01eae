package decision

import (
	"NetVerdict/internal/model"
	"testing"
)

func TestThreat(t *testing.T) {
	info := Threat("Heartbleed")
	if info.ThreatType != "Heartbleed (TLS)" || len(info.CVERefs) != 1 || info.CVERefs[0] != "CVE-2014-0160" {
		t.Errorf("unexpected Heartbleed entry %+v", info)
	}
	if Threat("benign").ThreatType != "Normal" {
		t.Error("Expected lower-case benign to resolve through the upper-case key")
	}
	custom := Threat("Slowloris")
	if custom.ThreatType != "Slowloris" || len(custom.CVERefs) != 0 {
		t.Errorf("unexpected fallback %+v", custom)
	}

	// Callers must not be able to mutate the catalog.
	info.CVERefs[0] = "changed"
	if Threat("Heartbleed").CVERefs[0] != "CVE-2014-0160" {
		t.Error("catalog was mutated through a returned slice")
	}
}

func TestInferThreat(t *testing.T) {
	tests := []struct {
		name  string
		r     model.RawFlowRecord
		score float64
		want  string
	}{
		{
			name: "syn probe",
			r:    model.RawFlowRecord{FwdPackets: 1, Duration: 0.001, HasDuration: true, Protocol: "6", DstPort: 8080},
			want: "PortScan",
		},
		{
			name: "ssh guessing",
			r:    model.RawFlowRecord{FwdPackets: 20, BwdPackets: 18, Duration: 30, HasDuration: true, Protocol: "6", DstPort: 22},
			want: "Brute Force",
		},
		{
			name: "packet flood",
			r:    model.RawFlowRecord{FwdPackets: 4000, Duration: 1, HasDuration: true, Protocol: "17", DstPort: 53},
			want: "DDoS",
		},
		{
			name: "bulk http",
			r:    model.RawFlowRecord{FwdPackets: 40, BwdPackets: 40, FwdBytes: 30000, BwdBytes: 5000, Duration: 60, HasDuration: true, Protocol: "TCP", DstPort: 80},
			want: "Web Attack",
		},
		{
			name: "odd port exfil",
			r:    model.RawFlowRecord{FwdPackets: 5, BwdPackets: 5, FwdBytes: 900, Duration: 100, HasDuration: true, Protocol: "6", DstPort: 4444},
			want: "Infiltration",
		},
		{
			name:  "score fallback",
			r:     model.RawFlowRecord{FwdPackets: 10, Duration: 200, HasDuration: true, Protocol: "6", DstPort: 80},
			score: 0.9,
			want:  "DDoS",
		},
		{
			name: "nothing matches",
			r:    model.RawFlowRecord{Protocol: "1"},
			want: "Anomaly",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferThreat(&tt.r, tt.score); got != tt.want {
				t.Errorf("InferThreat() = %s, want %s", got, tt.want)
			}
		})
	}
}
