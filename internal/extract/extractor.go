// Package extract turns packet captures into flow records, either by
// delegating to CICFlowMeter or with the built-in packet aggregator.
package extract

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Extractor converts a capture file into flow records.
type Extractor interface {
	Extract(ctx context.Context, pcapPath string) ([]model.RawFlowRecord, error)
}

// New returns the extractor selected by cfg.PCAPExtractor.
func New(cfg config.IngestConfig, logger *zap.Logger) (Extractor, error) {
	switch cfg.PCAPExtractor {
	case "", "cicflowmeter":
		return &CICFlowMeter{Path: cfg.CICFlowMeterPath, TempDir: cfg.TempDir, Logger: logger}, nil
	case "packet":
		return &PacketExtractor{Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown pcap extractor %q", cfg.PCAPExtractor)
}
