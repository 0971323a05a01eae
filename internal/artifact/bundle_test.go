package artifact

import (
	"NetVerdict/internal/config"
	_ "NetVerdict/internal/scorer/forest"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const (
	classifierJSON = `{"n_features":2,"n_classes":2,"trees":[{"nodes":[
		{"feature":0,"threshold":0.5,"left":1,"right":2},
		{"left":-1,"right":-1,"value":[9,1]},
		{"left":-1,"right":-1,"value":[1,9]}]}]}`
	isolationJSON = `{"n_features":2,"max_samples":256,"offset":-0.5,"trees":[{"nodes":[
		{"feature":1,"threshold":0.5,"left":1,"right":2},
		{"left":-1,"right":-1,"n_samples":255},
		{"left":-1,"right":-1,"n_samples":1}]}]}`
)

// writeBundle lays out a complete two-feature bundle and returns its config.
func writeBundle(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"artifacts/feature_names.json":       `["Flow Duration", "Total Fwd Packets"]`,
		"artifacts/scaler.json":              `{"mean": [0, 0], "scale": [1, 1]}`,
		"artifacts/label_encoder.json":       `{"classes": ["BENIGN", "DDoS"]}`,
		"artifacts/anomaly_calibration.json": `{"min": -0.5, "max": 0.5}`,
		"rf.json":                            classifierJSON,
		"iforest.json":                       isolationJSON,
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Models.RootPath = dir
	cfg.Models.Classifier = config.ModelDef{Type: "forest", Path: "rf.json"}
	cfg.Models.Anomaly = config.ModelDef{Type: "forest", Path: "iforest.json"}
	return cfg
}

func TestLoad_Hybrid(t *testing.T) {
	cfg := writeBundle(t)
	b, err := Load(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer b.Close()
	if b.Mode() != ModeHybrid {
		t.Errorf("Expected hybrid mode, got %s", b.Mode())
	}
	info := b.Info()
	if len(info.FeatureNames) != 2 || len(info.Labels) != 2 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestLoad_DegradedWhenOneModelMissing(t *testing.T) {
	cfg := writeBundle(t)
	cfg.Models.Anomaly.Path = "missing.json"
	b, err := Load(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b.Mode() != ModeClassifierOnly {
		t.Errorf("Expected classifier-only mode, got %s", b.Mode())
	}

	cfg.Models.RequireAll = true
	if _, err := Load(cfg, zap.NewNop()); err == nil {
		t.Fatal("Expected require_all to refuse a degraded bundle")
	}
}

func TestLoad_FailsWhenBothModelsMissing(t *testing.T) {
	cfg := writeBundle(t)
	cfg.Models.Classifier.Path = "missing-rf.json"
	cfg.Models.Anomaly.Path = "missing-if.json"
	if _, err := Load(cfg, zap.NewNop()); !errors.Is(err, ErrNoModels) {
		t.Fatalf("Expected ErrNoModels, got %v", err)
	}
}

func TestLoad_FailsFastOnMissingFeatureList(t *testing.T) {
	cfg := writeBundle(t)
	cfg.Models.FeatureNames = "nope.json"
	if _, err := Load(cfg, zap.NewNop()); err == nil {
		t.Fatal("Expected a missing feature list to fail")
	}
}

func TestLoad_FailsOnWidthMismatch(t *testing.T) {
	cfg := writeBundle(t)
	p := filepath.Join(cfg.Models.RootPath, "artifacts/feature_names.json")
	if err := os.WriteFile(p, []byte(`["a", "b", "c"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	p = filepath.Join(cfg.Models.RootPath, "artifacts/scaler.json")
	if err := os.WriteFile(p, []byte(`{"mean":[0,0,0],"scale":[1,1,1]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfg, zap.NewNop()); err == nil {
		t.Fatal("Expected a feature list wider than the models to fail")
	}
}

func TestLoad_FailsFastOnMissingSchemaArtifacts(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "missing label encoder", file: "artifacts/label_encoder.json"},
		{name: "corrupt label encoder", file: "artifacts/label_encoder.json", body: `{"classes": [`},
		{name: "missing calibration", file: "artifacts/anomaly_calibration.json"},
		{name: "empty calibration range", file: "artifacts/anomaly_calibration.json", body: `{"min": 1, "max": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeBundle(t)
			p := filepath.Join(cfg.Models.RootPath, tt.file)
			var err error
			if tt.body == "" {
				err = os.Remove(p)
			} else {
				err = os.WriteFile(p, []byte(tt.body), 0o644)
			}
			if err != nil {
				t.Fatal(err)
			}
			if b, err := Load(cfg, zap.NewNop()); err == nil {
				t.Fatalf("Expected Load to fail, got a %s bundle", b.Mode())
			}
		})
	}
}
