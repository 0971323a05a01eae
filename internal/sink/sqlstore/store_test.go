package sqlstore

import (
	"NetVerdict/internal/model"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "flows.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func flow(id, label, proto, src string, level model.RiskLevel, ts time.Time) model.EnrichedFlow {
	return model.EnrichedFlow{
		Record: model.RawFlowRecord{
			ID: id, Timestamp: ts, SrcIP: src, DstIP: "10.0.0.9", DstPort: 80, Protocol: proto,
			Duration: 2, HasDuration: true, FwdPackets: 4, FwdBytes: 400,
		},
		Verdict: model.Verdict{FinalClassification: label, Confidence: 0.9, RiskScore: 0.5, RiskLevel: level},
		Threat:  model.ThreatInfo{ThreatType: label, CVERefs: []string{"CVE-1", "CVE-2"}},
	}
}

func testBatch() *model.BatchResult {
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	res := &model.BatchResult{ID: "batch-1", Source: "upload.csv", StartedAt: base, FinishedAt: base.Add(time.Second)}
	res.Flows = []model.EnrichedFlow{
		flow("a", "BENIGN", "6", "192.168.1.10", model.RiskLow, base),
		flow("b", "DDoS", "17", "192.168.1.11", model.RiskHigh, base.Add(time.Minute)),
		flow("c", "DDoS", "TCP", "172.16.0.5", model.RiskCritical, base.Add(2*time.Minute)),
	}
	res.Summary = model.NewBatchSummary()
	for _, f := range res.Flows {
		res.Summary.Add(f)
	}
	res.Failures = []model.FlowFailure{{Index: 3, RecordID: "d", Kind: model.FailureFeature, Reason: "invalid duration"}}
	return res
}

func TestStore_WriteAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Write(ctx, testBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, total, err := s.ListFlows(ctx, FlowFilter{}, 1, 2)
	if err != nil {
		t.Fatalf("ListFlows failed: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("Expected 3 total and a page of 2, got %d and %d", total, len(rows))
	}
	if rows[0].ID != "c" {
		t.Errorf("Expected newest flow first, got %s", rows[0].ID)
	}
	if rows[0].CVERefs != "CVE-1, CVE-2" || !rows[0].FlowBytesPerSec.Valid || rows[0].FlowBytesPerSec.Float64 != 200 {
		t.Errorf("unexpected stored row %+v", rows[0])
	}

	tests := []struct {
		name   string
		filter FlowFilter
		want   int
	}{
		{"classification is case-insensitive", FlowFilter{Classification: "ddos"}, 2},
		{"risk level", FlowFilter{RiskLevel: "critical"}, 1},
		{"src ip substring", FlowFilter{SrcIP: "192.168"}, 2},
		{"protocol name", FlowFilter{Protocol: "tcp"}, 2},
		{"protocol name udp", FlowFilter{Protocol: "UDP"}, 1},
		{"analysis id", FlowFilter{AnalysisID: "other"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := s.ListFlows(ctx, tt.filter, 1, 20)
			if err != nil {
				t.Fatalf("ListFlows failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("Expected %d flows, got %d", tt.want, n)
			}
		})
	}
}

func TestStore_Summary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Write(ctx, testBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rep, err := s.Summary(ctx, "batch-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if rep.SucceededCount != 3 || rep.FailedCount != 1 {
		t.Errorf("Expected 3 succeeded and 1 failed, got %d and %d", rep.SucceededCount, rep.FailedCount)
	}
	if rep.AttackDistribution["DDoS"] != 2 || rep.RiskDistribution[model.RiskCritical] != 1 {
		t.Errorf("unexpected distributions %v %v", rep.AttackDistribution, rep.RiskDistribution)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Kind != model.FailureFeature {
		t.Errorf("unexpected failures %+v", rep.Failures)
	}
	if _, err := s.Summary(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows for an unknown batch, got %v", err)
	}
}

func TestStore_KeepsFlowsSharingAnID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	// CIC-IDS "Flow ID" values repeat when a conversation is split on idle timeout.
	id := "172.16.0.5-192.168.10.50-40000-80-6"
	res := &model.BatchResult{ID: "batch-dup", StartedAt: base, FinishedAt: base}
	res.Flows = []model.EnrichedFlow{
		flow(id, "BENIGN", "6", "172.16.0.5", model.RiskLow, base),
		flow(id, "DDoS", "6", "172.16.0.5", model.RiskCritical, base.Add(time.Minute)),
	}
	res.Summary = model.NewBatchSummary()
	for _, f := range res.Flows {
		res.Summary.Add(f)
	}
	if err := s.Write(ctx, res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, total, err := s.ListFlows(ctx, FlowFilter{AnalysisID: "batch-dup"}, 1, 20)
	if err != nil {
		t.Fatalf("ListFlows failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("Expected both flows stored, got %d", total)
	}
	if rows[0].RiskLevel != string(model.RiskCritical) || rows[0].FlowSeq != 1 || rows[1].FlowSeq != 0 {
		t.Errorf("unexpected rows %+v", rows)
	}
	rep, err := s.Summary(ctx, "batch-dup")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if rep.SucceededCount != total {
		t.Errorf("stored flows %d disagree with succeeded count %d", total, rep.SucceededCount)
	}
}

func TestStore_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.db")
	s, err := Open("sqlite", path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Write(context.Background(), testBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	s.Close()

	s, err = Open("sqlite", path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	_, total, err := s.ListFlows(context.Background(), FlowFilter{}, 1, 20)
	if err != nil || total != 3 {
		t.Fatalf("Expected 3 flows after reopen, got %d (%v)", total, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "", zap.NewNop()); err == nil {
		t.Fatal("Expected unsupported driver to fail")
	}
}
