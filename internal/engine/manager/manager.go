// Package manager assembles the verdict pipeline from the configuration:
// model bundle, decision engine, writers and the batch orchestrator.
package manager

import (
	_ "NetVerdict/internal/alerter" // Registers the alerter writer
	"NetVerdict/internal/artifact"
	"NetVerdict/internal/config"
	"NetVerdict/internal/decision"
	"NetVerdict/internal/extract"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/ingest"
	"NetVerdict/internal/model"
	"NetVerdict/internal/orchestrator"
	_ "NetVerdict/internal/scorer/forest" // Registers forest scorers
	_ "NetVerdict/internal/scorer/onnx"   // Registers onnx scorers
	"NetVerdict/internal/sink"
	_ "NetVerdict/internal/sink/clickhouse" // Registers the clickhouse writer
	_ "NetVerdict/internal/sink/file"       // Registers the file writer
	_ "NetVerdict/internal/sink/natspub"    // Registers the nats writer
	"NetVerdict/internal/sink/sqlstore"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager owns the pipeline for the lifetime of a process.
type Manager struct {
	cfg       *config.Config
	bundle    *artifact.Bundle
	writers   []model.Writer
	orch      *orchestrator.Orchestrator
	extractor extract.Extractor
	logger    *zap.Logger
}

// NewManager loads the models and builds every enabled writer. Any failure
// here is fatal for the process.
func NewManager(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Manager, error) {
	bundle, err := artifact.Load(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	engine, err := decision.New(cfg.Decision)
	if err != nil {
		bundle.Close()
		return nil, fmt.Errorf("invalid decision config: %w", err)
	}
	extractor, err := extract.New(cfg.Ingest, logger)
	if err != nil {
		bundle.Close()
		return nil, err
	}

	writers, err := factory.CreateWriters(withAlerter(cfg), logger)
	if err != nil {
		bundle.Close()
		return nil, err
	}
	var out model.Writer = sink.Discard{}
	if len(writers) > 0 {
		out = sink.NewMulti(writers...)
	} else {
		logger.Warn("no writers enabled, batch results are only returned to the caller")
	}

	orch, err := orchestrator.New(bundle, engine, out, orchestrator.Options{
		NumWorkers: cfg.Orchestrator.NumWorkers,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		out.Close()
		bundle.Close()
		return nil, err
	}

	info := bundle.Info()
	logger.Info("manager initialized",
		zap.String("mode", string(info.Mode)),
		zap.Int("features", len(info.FeatureNames)),
		zap.Int("writers", len(writers)),
		zap.Int("workers", cfg.Orchestrator.NumWorkers))
	return &Manager{cfg: cfg, bundle: bundle, writers: writers, orch: orch, extractor: extractor, logger: logger}, nil
}

// withAlerter adds an alerter writer when alerting is enabled and the writer
// list does not already name one.
func withAlerter(cfg *config.Config) *config.Config {
	if !cfg.Alerter.Enabled {
		return cfg
	}
	for _, def := range cfg.Writers {
		if def.Type == "alerter" {
			return cfg
		}
	}
	c := *cfg
	c.Writers = append(append([]config.WriterDef(nil), cfg.Writers...), config.WriterDef{Type: "alerter", Enabled: true})
	return &c
}

// Process scores one batch of flow records.
func (m *Manager) Process(ctx context.Context, source string, raws []model.RawFlowRecord) (*model.BatchResult, error) {
	return m.orch.Process(ctx, source, raws)
}

// AnalyzeFile reads a CSV flow export or a packet capture and scores it as
// one batch.
func (m *Manager) AnalyzeFile(ctx context.Context, path string) (*model.BatchResult, error) {
	raws, err := m.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return m.Process(ctx, filepath.Base(path), raws)
}

// ReadFile loads flow records from path, choosing the reader by extension.
func (m *Manager) ReadFile(ctx context.Context, path string) ([]model.RawFlowRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ingest.ReadCSVFile(path, ingest.Options{DurationUnit: m.cfg.Ingest.DurationUnit})
	case ".pcap", ".pcapng", ".cap":
		return m.extractor.Extract(ctx, path)
	}
	return nil, fmt.Errorf("unsupported input file %q: expected .csv, .pcap or .pcapng", path)
}

// Info describes the loaded models.
func (m *Manager) Info() artifact.Info {
	return m.bundle.Info()
}

// Store returns the first SQL writer, or nil.
func (m *Manager) Store() *sqlstore.Store {
	for _, w := range m.writers {
		if s, ok := w.(*sqlstore.Store); ok {
			return s
		}
	}
	return nil
}

// Stop waits for in-flight batches, then closes the writers and models.
func (m *Manager) Stop() error {
	m.logger.Info("manager stopping...")
	err := errors.Join(m.orch.Close(), m.bundle.Close())
	m.logger.Info("manager stopped")
	return err
}
