package features

import (
	"fmt"
	"math"
)

// Scaler is a fitted z-score transform, one mean and scale per feature.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Validate checks that the scaler covers exactly n features with finite parameters.
func (s Scaler) Validate(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler has %d means and %d scales, feature list has %d names", len(s.Mean), len(s.Scale), n)
	}
	for i := range s.Mean {
		if !finite(s.Mean[i]) || !finite(s.Scale[i]) {
			return fmt.Errorf("scaler parameter %d is not finite", i)
		}
	}
	return nil
}

// transform scales v as feature i. A scale below floor counts as a constant
// feature and is treated as 1.
func (s Scaler) transform(i int, v, floor float64) float64 {
	scale := s.Scale[i]
	if math.Abs(scale) < floor {
		scale = 1
	}
	out := (v - s.Mean[i]) / scale
	if !finite(out) {
		return 0
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clean(v float64) float64 {
	if finite(v) {
		return v
	}
	return 0
}
