package clickhouse

import (
	"NetVerdict/internal/model"
	"testing"
	"time"
)

func testResult() *model.BatchResult {
	start := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	flow := model.EnrichedFlow{
		Record:  model.RawFlowRecord{ID: "f1", SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 80, Protocol: "6"},
		Verdict: model.Verdict{FinalClassification: "DDoS", Confidence: 0.9, RiskScore: 0.7, RiskLevel: model.RiskHigh},
		Threat:  model.ThreatInfo{ThreatType: "Denial of Service"},
	}
	res := &model.BatchResult{ID: "b1", Source: "test", StartedAt: start, FinishedAt: start.Add(time.Second)}
	res.Flows = []model.EnrichedFlow{flow}
	res.Summary = model.NewBatchSummary()
	res.Summary.Add(flow)
	res.Failures = []model.FlowFailure{{Index: 1, Kind: model.FailureFeature}}
	return res
}

func TestVerdictRow_MatchesTableColumns(t *testing.T) {
	res := testResult()
	row := verdictRow(res, &res.Flows[0])
	if len(row) != 17 {
		t.Fatalf("Expected 17 columns, got %d", len(row))
	}
	if ts, ok := row[2].(time.Time); !ok || !ts.Equal(res.StartedAt) {
		t.Errorf("Expected missing flow timestamp to fall back to batch start, got %v", row[2])
	}
	if row[7] != "TCP" || row[13] != "High" {
		t.Errorf("unexpected protocol/risk columns %v %v", row[7], row[13])
	}
}

func TestSummaryRow_Counts(t *testing.T) {
	row := summaryRow(testResult())
	if len(row) != 12 {
		t.Fatalf("Expected 12 columns, got %d", len(row))
	}
	if row[4] != uint32(1) || row[5] != uint32(1) {
		t.Errorf("Expected 1 succeeded and 1 failed, got %v %v", row[4], row[5])
	}
	attacks := row[10].(map[string]uint32)
	if attacks["DDoS"] != 1 {
		t.Errorf("unexpected attack distribution %v", attacks)
	}
}
