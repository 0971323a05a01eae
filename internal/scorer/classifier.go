package scorer

import (
	"NetVerdict/internal/model"
	"fmt"
)

// ClassifierScorer turns class probabilities into a labelled prediction.
// A nil *ClassifierScorer is valid and reports ErrModelNotLoaded.
type ClassifierScorer struct {
	model  ProbabilityModel
	labels []string
}

// NewClassifierScorer binds a probability model to the training-time label order.
func NewClassifierScorer(m ProbabilityModel, labels []string) (*ClassifierScorer, error) {
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("classifier has no labels")
	}
	if m.NumClasses() != len(labels) {
		return nil, fmt.Errorf("classifier emits %d classes, label encoder has %d", m.NumClasses(), len(labels))
	}
	return &ClassifierScorer{model: m, labels: append([]string(nil), labels...)}, nil
}

func (c *ClassifierScorer) Kind() Kind { return KindClassifier }
func (c *ClassifierScorer) sealed()    {}

// NumFeatures returns the model input width, 0 when no model is loaded.
func (c *ClassifierScorer) NumFeatures() int {
	if c == nil || c.model == nil {
		return 0
	}
	return c.model.NumFeatures()
}

// Labels returns the label order of the probability vector.
func (c *ClassifierScorer) Labels() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.labels...)
}

// Predict returns the most probable label and the normalised distribution.
// Ties go to the label with the lowest index.
func (c *ClassifierScorer) Predict(vec model.FeatureVector) (model.ClassifierOutput, error) {
	if c == nil || c.model == nil {
		return model.ClassifierOutput{}, ErrModelNotLoaded
	}
	if err := checkDim(vec.Len(), c.model.NumFeatures()); err != nil {
		return model.ClassifierOutput{}, err
	}

	proba, err := c.model.PredictProba(vec.Values)
	if err != nil {
		return model.ClassifierOutput{}, fmt.Errorf("classifier predict: %w", err)
	}
	if len(proba) != len(c.labels) {
		return model.ClassifierOutput{}, fmt.Errorf("classifier returned %d probabilities for %d labels", len(proba), len(c.labels))
	}

	probs := make([]float64, len(proba))
	var sum float64
	for i, p := range proba {
		if !finite(p) || p < 0 {
			p = 0
		}
		probs[i] = p
		sum += p
	}
	if sum <= 0 {
		return model.ClassifierOutput{}, fmt.Errorf("classifier returned no probability mass")
	}

	best := 0
	for i := range probs {
		probs[i] /= sum
		if probs[i] > probs[best] {
			best = i
		}
	}

	return model.ClassifierOutput{
		Label:         c.labels[best],
		Labels:        c.Labels(),
		Probabilities: probs,
		Confidence:    probs[best],
	}, nil
}

// Close releases the underlying model.
func (c *ClassifierScorer) Close() error {
	if c == nil {
		return nil
	}
	return closeModel(c.model)
}
