package orchestrator

import (
	"NetVerdict/internal/artifact"
	"NetVerdict/internal/config"
	"NetVerdict/internal/decision"
	"NetVerdict/internal/features"
	"NetVerdict/internal/model"
	"NetVerdict/internal/scorer"
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

var names = []string{"Flow Duration", "Total Fwd Packets", "Flow Bytes/s"}

// stubClassifier predicts DDoS when the packet feature is large.
type stubClassifier struct{}

func (stubClassifier) NumFeatures() int { return len(names) }
func (stubClassifier) NumClasses() int  { return 2 }
func (stubClassifier) PredictProba(x []float64) ([]float64, error) {
	if x[1] > 100 {
		return []float64{0.1, 0.9}, nil
	}
	return []float64{0.8, 0.2}, nil
}

// stubDetector maps the duration feature straight onto the decision value.
type stubDetector struct{}

func (stubDetector) NumFeatures() int { return len(names) }
func (stubDetector) DecisionFunction(x []float64) (float64, error) {
	return -x[0], nil
}

type recordingWriter struct {
	mu      sync.Mutex
	results []*model.BatchResult
	err     error
	closed  bool
}

func (w *recordingWriter) Write(_ context.Context, res *model.BatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, res)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newBundle(t *testing.T, withClassifier, withDetector bool) *artifact.Bundle {
	t.Helper()
	sc := features.Scaler{Mean: make([]float64, len(names)), Scale: []float64{1, 1, 1}}
	b, err := features.NewBuilder(names, sc, features.Options{})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	var cls *scorer.ClassifierScorer
	if withClassifier {
		cls, err = scorer.NewClassifierScorer(stubClassifier{}, []string{"BENIGN", "DDoS"})
		if err != nil {
			t.Fatalf("NewClassifierScorer failed: %v", err)
		}
	}
	var anom *scorer.AnomalyScorer
	if withDetector {
		anom, err = scorer.NewAnomalyScorer(stubDetector{}, scorer.Calibration{Min: -1, Max: 0})
		if err != nil {
			t.Fatalf("NewAnomalyScorer failed: %v", err)
		}
	}
	bundle, err := artifact.NewBundle(b, cls, anom)
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}
	return bundle
}

func newOrchestrator(t *testing.T, bundle *artifact.Bundle, w model.Writer, workers int) *Orchestrator {
	t.Helper()
	engine, err := decision.New(config.DefaultDecisionConfig())
	if err != nil {
		t.Fatalf("decision.New failed: %v", err)
	}
	o, err := New(bundle, engine, w, Options{NumWorkers: workers, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

// batch builds n records with pre-computed vectors. Every third flow is a
// high-volume DDoS and every fifth has a long (anomalous) duration.
func batch(n int) []model.RawFlowRecord {
	raws := make([]model.RawFlowRecord, n)
	for i := range raws {
		pkts := 10.0
		if i%3 == 0 {
			pkts = 500
		}
		dur := 0.1
		if i%5 == 0 {
			dur = 0.95
		}
		proto := "6"
		if i%2 == 0 {
			proto = "17"
		}
		raws[i] = model.RawFlowRecord{
			ID:       "flow-" + strconv.Itoa(i),
			Protocol: proto,
			Vector:   []float64{dur, pkts, 1000},
		}
	}
	return raws
}

func TestProcess_BatchIsolation(t *testing.T) {
	w := &recordingWriter{}
	o := newOrchestrator(t, newBundle(t, true, true), w, 8)

	raws := batch(1000)
	raws[417].Vector = []float64{1, 2} // wrong dimensionality

	res, err := o.Process(context.Background(), "test", raws)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Succeeded() != 999 || res.Failed() != 1 {
		t.Fatalf("Expected 999 succeeded and 1 failed, got %d and %d", res.Succeeded(), res.Failed())
	}
	f := res.Failures[0]
	if f.Index != 417 || f.RecordID != "flow-417" || f.Kind != model.FailureFeature {
		t.Errorf("unexpected failure %+v", f)
	}
	if len(w.results) != 1 {
		t.Errorf("Expected one write, got %d", len(w.results))
	}
}

func TestProcess_AggregateConsistency(t *testing.T) {
	o := newOrchestrator(t, newBundle(t, true, true), nil, 4)
	res, err := o.Process(context.Background(), "test", batch(300))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var byClass, byLevel int
	for _, n := range res.Summary.ByClassification {
		byClass += n
	}
	for _, n := range res.Summary.ByRiskLevel {
		byLevel += n
	}
	if byClass != res.Succeeded() || byLevel != res.Succeeded() || res.Summary.TotalFlows != res.Succeeded() {
		t.Errorf("summary counts %d/%d/%d do not match succeeded %d", byClass, byLevel, res.Summary.TotalFlows, res.Succeeded())
	}

	var riskSum float64
	anomalies := 0
	for _, f := range res.Flows {
		riskSum += f.Verdict.RiskScore
		if f.Verdict.IsAnomaly {
			anomalies++
		}
	}
	if avg := riskSum / float64(len(res.Flows)); math.Abs(avg-res.Summary.AvgRiskScore()) > 1e-9 {
		t.Errorf("Expected average risk %v, summary reports %v", avg, res.Summary.AvgRiskScore())
	}
	if anomalies != res.Summary.AnomalyCount {
		t.Errorf("Expected %d anomalies, summary reports %d", anomalies, res.Summary.AnomalyCount)
	}
	if res.Summary.ByProtocol["TCP"]+res.Summary.ByProtocol["UDP"] != 300 {
		t.Errorf("unexpected protocol distribution %v", res.Summary.ByProtocol)
	}
	if res.Summary.ByClassification["DDoS"] != 100 {
		t.Errorf("Expected 100 DDoS verdicts, got %d", res.Summary.ByClassification["DDoS"])
	}

	for i, f := range res.Flows {
		if f.Record.ID != "flow-"+strconv.Itoa(i) {
			t.Fatalf("flows are not in input order at %d: %s", i, f.Record.ID)
		}
	}
}

func TestProcess_SummaryIndependentOfWorkerCount(t *testing.T) {
	raws := batch(250)
	one, err := newOrchestrator(t, newBundle(t, true, true), nil, 1).Process(context.Background(), "a", raws)
	if err != nil {
		t.Fatal(err)
	}
	many, err := newOrchestrator(t, newBundle(t, true, true), nil, 16).Process(context.Background(), "b", raws)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range one.Summary.ByClassification {
		if many.Summary.ByClassification[k] != v {
			t.Errorf("class %s: %d vs %d", k, v, many.Summary.ByClassification[k])
		}
	}
	if math.Abs(one.Summary.RiskScoreSum-many.Summary.RiskScoreSum) > 1e-9 {
		t.Errorf("risk sums differ: %v vs %v", one.Summary.RiskScoreSum, many.Summary.RiskScoreSum)
	}
}

func TestProcess_ZeroDurationFlowFails(t *testing.T) {
	o := newOrchestrator(t, newBundle(t, true, true), nil, 2)
	raws := []model.RawFlowRecord{
		{ID: "zero", Duration: 0, HasDuration: true, FwdPackets: 5, BwdPackets: 0, Protocol: "17"},
		{ID: "ok", Duration: 0.5, HasDuration: true, FwdPackets: 5, FwdBytes: 500, Protocol: "17"},
	}
	res, err := o.Process(context.Background(), "test", raws)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Failed() != 1 || res.Failures[0].RecordID != "zero" || res.Failures[0].Kind != model.FailureFeature {
		t.Fatalf("Expected the zero-duration flow to fail, got %+v", res.Failures)
	}
	if res.Succeeded() != 1 {
		t.Errorf("Expected the valid flow to succeed, got %d", res.Succeeded())
	}
}

func TestProcess_DegradedModes(t *testing.T) {
	res, err := newOrchestrator(t, newBundle(t, true, false), nil, 2).Process(context.Background(), "c", batch(30))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range res.Flows {
		if f.Verdict.IsAnomaly || f.Verdict.AnomalyScore != 0 {
			t.Fatalf("classifier-only verdict carries anomaly signal: %+v", f.Verdict)
		}
	}

	res, err = newOrchestrator(t, newBundle(t, false, true), nil, 2).Process(context.Background(), "a", batch(30))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range res.Flows {
		label := f.Verdict.FinalClassification
		if label != "Anomaly" && label != "Benign" {
			t.Fatalf("anomaly-only verdict has label %q", label)
		}
		if label == "Anomaly" && f.SuspectedThreat == "" {
			t.Errorf("anomaly flow %s has no suspected threat", f.Record.ID)
		}
	}
}

func TestProcess_SinkError(t *testing.T) {
	w := &recordingWriter{err: errors.New("disk full")}
	o := newOrchestrator(t, newBundle(t, true, true), w, 2)
	res, err := o.Process(context.Background(), "test", batch(10))
	if !errors.Is(err, ErrSink) {
		t.Fatalf("Expected ErrSink, got %v", err)
	}
	if res == nil || res.Succeeded() != 10 {
		t.Fatalf("Expected the complete result alongside the sink error, got %+v", res)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	w := &recordingWriter{}
	o := newOrchestrator(t, newBundle(t, true, true), w, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Process(ctx, "test", batch(50))
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected an interrupted batch, got %v", err)
	}
	if res.Succeeded() != 0 || res.Failed() != 50 {
		t.Errorf("Expected every flow cancelled, got %d/%d", res.Succeeded(), res.Failed())
	}
	for _, f := range res.Failures {
		if f.Kind != model.FailureCancelled {
			t.Fatalf("unexpected failure kind %s", f.Kind)
		}
	}
	if len(w.results) != 0 {
		t.Error("an interrupted batch must not reach the writer")
	}
}

func TestClose_StopsAdmission(t *testing.T) {
	w := &recordingWriter{}
	o := newOrchestrator(t, newBundle(t, true, true), w, 2)
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !w.closed {
		t.Error("Expected the writer to be closed")
	}
	if _, err := o.Process(context.Background(), "late", batch(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
