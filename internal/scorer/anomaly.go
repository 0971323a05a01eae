package scorer

import (
	"NetVerdict/internal/model"
	"fmt"
	"math"
)

// Calibration is the decision-function range observed on the training set.
type Calibration struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate checks that the range is finite and non-empty.
func (c Calibration) Validate() error {
	if !finite(c.Min) || !finite(c.Max) || c.Max <= c.Min {
		return fmt.Errorf("invalid anomaly calibration range [%v, %v]", c.Min, c.Max)
	}
	return nil
}

// Normalize maps a raw decision value into [0,1], 1 being most anomalous.
func (c Calibration) Normalize(raw float64) float64 {
	s := (c.Max - raw) / (c.Max - c.Min)
	return math.Min(1, math.Max(0, s))
}

// AnomalyScorer turns detector decision values into normalised anomaly scores.
// A nil *AnomalyScorer is valid and reports ErrModelNotLoaded.
type AnomalyScorer struct {
	model DecisionModel
	cal   Calibration
}

// NewAnomalyScorer binds a detector to its training-time calibration.
func NewAnomalyScorer(m DecisionModel, cal Calibration) (*AnomalyScorer, error) {
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &AnomalyScorer{model: m, cal: cal}, nil
}

func (a *AnomalyScorer) Kind() Kind { return KindAnomaly }
func (a *AnomalyScorer) sealed()    {}

// NumFeatures returns the model input width, 0 when no model is loaded.
func (a *AnomalyScorer) NumFeatures() int {
	if a == nil || a.model == nil {
		return 0
	}
	return a.model.NumFeatures()
}

// Score returns the calibrated anomaly score of vec.
func (a *AnomalyScorer) Score(vec model.FeatureVector) (model.AnomalyOutput, error) {
	if a == nil || a.model == nil {
		return model.AnomalyOutput{}, ErrModelNotLoaded
	}
	if err := checkDim(vec.Len(), a.model.NumFeatures()); err != nil {
		return model.AnomalyOutput{}, err
	}
	raw, err := a.model.DecisionFunction(vec.Values)
	if err != nil {
		return model.AnomalyOutput{}, fmt.Errorf("anomaly decision function: %w", err)
	}
	if math.IsNaN(raw) {
		return model.AnomalyOutput{}, fmt.Errorf("anomaly detector returned NaN")
	}
	return model.AnomalyOutput{Score: a.cal.Normalize(raw), Raw: raw}, nil
}

// Close releases the underlying model.
func (a *AnomalyScorer) Close() error {
	if a == nil {
		return nil
	}
	return closeModel(a.model)
}
