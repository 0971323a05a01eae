// Package artifact loads the model bundle written by the offline training
// job and exposes it as an immutable, shareable Bundle.
package artifact

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/features"
	"NetVerdict/internal/scorer"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrNoModels is returned when neither scorer could be loaded.
var ErrNoModels = errors.New("no usable model: classifier and anomaly detector both unavailable")

// Mode describes which scorers a bundle carries.
type Mode string

const (
	ModeHybrid         Mode = "hybrid"
	ModeClassifierOnly Mode = "classifier-only"
	ModeAnomalyOnly    Mode = "anomaly-only"
)

// Bundle is the loaded model context. It is never mutated after Load and is
// shared read-only by every worker.
type Bundle struct {
	Builder    *features.Builder
	Classifier *scorer.ClassifierScorer // nil when unavailable
	Anomaly    *scorer.AnomalyScorer    // nil when unavailable
}

// NewBundle assembles a bundle and checks that every scorer accepts the
// builder's vector width.
func NewBundle(builder *features.Builder, cls *scorer.ClassifierScorer, anom *scorer.AnomalyScorer) (*Bundle, error) {
	if builder == nil {
		return nil, errors.New("bundle needs a feature builder")
	}
	if cls == nil && anom == nil {
		return nil, ErrNoModels
	}
	if cls != nil && cls.NumFeatures() != builder.Dim() {
		return nil, fmt.Errorf("classifier expects %d features, feature list has %d", cls.NumFeatures(), builder.Dim())
	}
	if anom != nil && anom.NumFeatures() != builder.Dim() {
		return nil, fmt.Errorf("anomaly detector expects %d features, feature list has %d", anom.NumFeatures(), builder.Dim())
	}
	return &Bundle{Builder: builder, Classifier: cls, Anomaly: anom}, nil
}

// Mode reports which scorers are available.
func (b *Bundle) Mode() Mode {
	switch {
	case b.Classifier != nil && b.Anomaly != nil:
		return ModeHybrid
	case b.Classifier != nil:
		return ModeClassifierOnly
	default:
		return ModeAnomalyOnly
	}
}

// Info is the JSON description of a bundle served by the ops API.
type Info struct {
	Mode         Mode     `json:"mode"`
	FeatureNames []string `json:"feature_names"`
	Labels       []string `json:"labels,omitempty"`
}

// Info describes the bundle.
func (b *Bundle) Info() Info {
	return Info{Mode: b.Mode(), FeatureNames: b.Builder.Names(), Labels: b.Classifier.Labels()}
}

// Close releases both scorers.
func (b *Bundle) Close() error {
	return errors.Join(b.Classifier.Close(), b.Anomaly.Close())
}

type labelEncoder struct {
	Classes []string `json:"classes"`
}

// Load reads the bundle described by cfg. The feature list and scaler are
// mandatory, as are the label encoder and calibration of each configured
// model. A model file that fails to load is dropped with a warning unless
// RequireAll is set; a model that disagrees with the schema always fails.
func Load(cfg *config.Config, logger *zap.Logger) (*Bundle, error) {
	mc := &cfg.Models
	path := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(mc.RootPath, p)
	}

	var names []string
	if err := readJSON(path(mc.FeatureNames), &names); err != nil {
		return nil, fmt.Errorf("feature list: %w", err)
	}
	var sc features.Scaler
	if err := readJSON(path(mc.Scaler), &sc); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	builder, err := features.NewBuilder(names, sc, features.Options{
		MissingDefault: cfg.Features.MissingDefault,
		ScaleFloor:     cfg.Features.ScaleFloor,
	})
	if err != nil {
		return nil, fmt.Errorf("feature builder: %w", err)
	}

	// The label encoder and calibration are part of the schema: when their
	// model is configured they must load, even if the model file itself may not.
	var (
		enc labelEncoder
		cal scorer.Calibration
	)
	if mc.Classifier.Configured() {
		if err := readJSON(path(mc.LabelEncoder), &enc); err != nil {
			return nil, fmt.Errorf("label encoder: %w", err)
		}
	}
	if mc.Anomaly.Configured() {
		if err := readJSON(path(mc.Calibration), &cal); err != nil {
			return nil, fmt.Errorf("anomaly calibration: %w", err)
		}
		if err := cal.Validate(); err != nil {
			return nil, fmt.Errorf("anomaly calibration: %w", err)
		}
	}

	var cls *scorer.ClassifierScorer
	if mc.Classifier.Configured() {
		m, err := factory.LoadClassifier(mc.Classifier, mc)
		switch {
		case err == nil:
			if cls, err = scorer.NewClassifierScorer(m, enc.Classes); err != nil {
				closeModel(m)
				return nil, fmt.Errorf("classifier: %w", err)
			}
		case mc.RequireAll:
			return nil, fmt.Errorf("classifier: %w", err)
		default:
			logger.Warn("classifier unavailable, running without it", zap.Error(err))
		}
	}

	var anom *scorer.AnomalyScorer
	if mc.Anomaly.Configured() {
		m, err := factory.LoadAnomaly(mc.Anomaly, mc)
		switch {
		case err == nil:
			if anom, err = scorer.NewAnomalyScorer(m, cal); err != nil {
				closeModel(m)
				_ = cls.Close()
				return nil, fmt.Errorf("anomaly detector: %w", err)
			}
		case mc.RequireAll:
			_ = cls.Close()
			return nil, fmt.Errorf("anomaly detector: %w", err)
		default:
			logger.Warn("anomaly detector unavailable, running without it", zap.Error(err))
		}
	}

	b, err := NewBundle(builder, cls, anom)
	if err != nil {
		_ = cls.Close()
		_ = anom.Close()
		return nil, err
	}
	logger.Info("model bundle loaded",
		zap.String("mode", string(b.Mode())),
		zap.Int("features", builder.Dim()),
		zap.Strings("labels", cls.Labels()),
	)
	return b, nil
}

func closeModel(m any) {
	if c, ok := m.(io.Closer); ok {
		_ = c.Close()
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
