package model

import "context"

// Writer defines a generic interface for delivering batch results to a sink.
type Writer interface {
	// Write persists or forwards one completed batch. A batch is written whole or not at all.
	Write(ctx context.Context, result *BatchResult) error

	// Close releases the sink's resources.
	Close() error
}
