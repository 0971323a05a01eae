// Package sink holds the writer fan-out. Concrete writers live in the
// subpackages and register with the factory.
package sink

import (
	"NetVerdict/internal/model"
	"context"
	"errors"
	"fmt"
)

// Multi delivers every batch to all of its writers.
type Multi struct {
	writers []model.Writer
}

// NewMulti wraps writers. A single writer is returned as is.
func NewMulti(writers ...model.Writer) model.Writer {
	if len(writers) == 1 {
		return writers[0]
	}
	return &Multi{writers: writers}
}

// Write hands the batch to every writer and joins their errors. A failing
// writer does not stop the others.
func (m *Multi) Write(ctx context.Context, result *model.BatchResult) error {
	var errs []error
	for i, w := range m.writers {
		if err := w.Write(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("writer %d (%T): %w", i, w, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer.
func (m *Multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every batch. It stands in when no writer is enabled.
type Discard struct{}

func (Discard) Write(context.Context, *model.BatchResult) error { return nil }
func (Discard) Close() error                                    { return nil }
