// Package scorer wraps trained models behind two narrow prediction
// capabilities: ClassifierScorer and AnomalyScorer. The concrete algorithm
// is a pluggable strategy, so the decision engine never sees it.
package scorer

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrModelNotLoaded is returned when a scorer has no trained model behind it.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrDimension is returned when a vector does not match the model input width.
	ErrDimension = errors.New("feature dimension does not match model")
)

// Kind names a scorer variant.
type Kind string

const (
	KindClassifier Kind = "classifier"
	KindAnomaly    Kind = "anomaly"
)

// Scorer is implemented only by ClassifierScorer and AnomalyScorer.
type Scorer interface {
	Kind() Kind
	// NumFeatures is the input width of the underlying model.
	NumFeatures() int
	io.Closer
	sealed()
}

// ProbabilityModel is a trained multi-class classifier.
type ProbabilityModel interface {
	PredictProba(x []float64) ([]float64, error)
	NumFeatures() int
	NumClasses() int
}

// DecisionModel is a trained outlier detector. Lower decision values are
// more anomalous, following the scikit-learn convention.
type DecisionModel interface {
	DecisionFunction(x []float64) (float64, error)
	NumFeatures() int
}

func closeModel(m any) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func checkDim(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: vector has %d values, model expects %d", ErrDimension, got, want)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
