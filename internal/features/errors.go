package features

import (
	"errors"
	"fmt"
)

// Kind is the category of a feature building failure.
type Kind string

const (
	KindInvalidDuration   Kind = "InvalidDuration"
	KindDimensionMismatch Kind = "DimensionMismatch"
	KindMissingRequired   Kind = "MissingRequired"
)

var (
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrMissingRequired   = errors.New("missing required feature")
)

// Error is returned by Builder.Build for records that cannot be turned into
// a feature vector. The record is excluded from its batch.
type Error struct {
	Kind    Kind
	Feature string
	Detail  string
}

func (e *Error) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("feature error %s on %q: %s", e.Kind, e.Feature, e.Detail)
	}
	return fmt.Sprintf("feature error %s: %s", e.Kind, e.Detail)
}

// Is lets errors.Is match an *Error against the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidDuration:
		return e.Kind == KindInvalidDuration
	case ErrDimensionMismatch:
		return e.Kind == KindDimensionMismatch
	case ErrMissingRequired:
		return e.Kind == KindMissingRequired
	}
	return false
}
