package manager

import (
	"NetVerdict/internal/config"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	classifierJSON = `{"n_features":2,"n_classes":2,"trees":[{"nodes":[
		{"feature":1,"threshold":50,"left":1,"right":2},
		{"left":-1,"right":-1,"value":[9,1]},
		{"left":-1,"right":-1,"value":[1,9]}]}]}`
	isolationJSON = `{"n_features":2,"max_samples":256,"offset":-0.5,"trees":[{"nodes":[
		{"feature":1,"threshold":50,"left":1,"right":2},
		{"left":-1,"right":-1,"n_samples":255},
		{"left":-1,"right":-1,"n_samples":1}]}]}`
	flowsCSV = "Flow ID,Flow Duration,Total Fwd Packets,Label\n" +
		"a,1000000,3,BENIGN\n" +
		"b,2000000,400,DDoS\n" +
		"c,-5,3,BENIGN\n"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"models/artifacts/feature_names.json":       `["Flow Duration", "Total Fwd Packets"]`,
		"models/artifacts/scaler.json":              `{"mean": [0, 0], "scale": [1, 1]}`,
		"models/artifacts/label_encoder.json":       `{"classes": ["BENIGN", "DDoS"]}`,
		"models/artifacts/anomaly_calibration.json": `{"min": -0.5, "max": 0.5}`,
		"models/rf.json":                            classifierJSON,
		"models/iforest.json":                       isolationJSON,
		"flows.csv":                                 flowsCSV,
	})
	cfg := config.Default()
	cfg.Models.RootPath = filepath.Join(dir, "models")
	cfg.Models.Classifier = config.ModelDef{Type: "forest", Path: "rf.json"}
	cfg.Models.Anomaly = config.ModelDef{Type: "forest", Path: "iforest.json"}
	cfg.Ingest.PCAPExtractor = "packet"
	cfg.Writers = []config.WriterDef{
		{Type: "file", Enabled: true, File: config.FileConfig{RootPath: filepath.Join(dir, "out")}},
		{Type: "clickhouse", Enabled: false},
	}
	return cfg, dir
}

func TestManager_AnalyzeCSV(t *testing.T) {
	cfg, dir := testConfig(t)
	m, err := NewManager(cfg, zap.NewNop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Stop()

	res, err := m.AnalyzeFile(context.Background(), filepath.Join(dir, "flows.csv"))
	if err != nil {
		t.Fatalf("AnalyzeFile failed: %v", err)
	}
	if res.Source != "flows.csv" || res.Succeeded() != 2 || res.Failed() != 1 {
		t.Fatalf("Expected 2 verdicts and 1 failure from flows.csv, got %d/%d from %s", res.Succeeded(), res.Failed(), res.Source)
	}
	if got := res.Flows[1].Verdict.FinalClassification; got != "DDoS" {
		t.Errorf("Expected second flow classified as DDoS, got %s", got)
	}
	if res.Failures[0].RecordID != "c" {
		t.Errorf("Expected the negative-duration flow to fail, got %+v", res.Failures[0])
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil || len(entries) != 1 {
		t.Errorf("Expected one batch directory from the file writer, got %d (%v)", len(entries), err)
	}
	if m.Store() != nil {
		t.Error("Expected no SQL store")
	}
	if m.Info().Mode != "hybrid" {
		t.Errorf("unexpected mode %s", m.Info().Mode)
	}
}

func TestManager_RejectsUnknownInput(t *testing.T) {
	cfg, _ := testConfig(t)
	m, err := NewManager(cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Stop()
	if _, err := m.AnalyzeFile(context.Background(), "flows.parquet"); err == nil {
		t.Fatal("Expected unsupported extension to fail")
	}
}

func TestNewManager_FailsWithoutModels(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Models.RootPath = t.TempDir()
	if _, err := NewManager(cfg, zap.NewNop(), nil); err == nil {
		t.Fatal("Expected missing artifacts to fail")
	}
}

func TestWithAlerter(t *testing.T) {
	cfg := config.Default()
	if got := withAlerter(cfg); len(got.Writers) != 0 {
		t.Errorf("Expected no alerter when disabled, got %v", got.Writers)
	}
	cfg.Alerter.Enabled = true
	got := withAlerter(cfg)
	if len(got.Writers) != 1 || got.Writers[0].Type != "alerter" {
		t.Errorf("Expected an alerter writer, got %v", got.Writers)
	}
	if len(cfg.Writers) != 0 {
		t.Error("withAlerter must not modify its input")
	}
	if again := withAlerter(got); len(again.Writers) != 1 {
		t.Errorf("Expected no duplicate alerter, got %v", again.Writers)
	}
}
