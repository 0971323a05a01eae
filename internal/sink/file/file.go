// Package file writes each batch to its own directory on disk.
package file

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/model"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	flowsFile    = "flows.gob"
	summaryFile  = "summary.json"
	failuresFile = "failures.json"
)

func init() {
	factory.RegisterWriter("file", func(def config.WriterDef, _ *config.Config, logger *zap.Logger) (model.Writer, error) {
		return NewWriter(def.File.RootPath, logger)
	})
}

// Writer stores a batch as <root>/<started>_<id>/{flows.gob,summary.json,failures.json}.
type Writer struct {
	rootPath string
	logger   *zap.Logger
}

// NewWriter creates the root directory if needed.
func NewWriter(rootPath string, logger *zap.Logger) (*Writer, error) {
	if rootPath == "" {
		return nil, fmt.Errorf("file writer needs a root_path")
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{rootPath: rootPath, logger: logger}, nil
}

// Dir returns the directory a batch is written to.
func (w *Writer) Dir(result *model.BatchResult) string {
	return filepath.Join(w.rootPath, result.StartedAt.UTC().Format("2006-01-02_15-04-05")+"_"+result.ID)
}

// Write fills a staging directory and renames it into place, so a batch
// directory is either complete or absent.
func (w *Writer) Write(ctx context.Context, result *model.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(w.rootPath, ".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := writeGob(filepath.Join(staging, flowsFile), result.Flows); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(staging, summaryFile), result.Report()); err != nil {
		return err
	}
	failures := result.Failures
	if failures == nil {
		failures = []model.FlowFailure{}
	}
	if err := writeJSON(filepath.Join(staging, failuresFile), failures); err != nil {
		return err
	}

	dir := w.Dir(result)
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("failed to move batch into '%s': %w", dir, err)
	}
	w.logger.Info("wrote batch to disk", zap.String("batch_id", result.ID), zap.String("dir", dir))
	return nil
}

// Close is a no-op.
func (w *Writer) Close() error {
	return nil
}

// ReadFlows decodes the flows of a batch directory.
func ReadFlows(dir string) ([]model.EnrichedFlow, error) {
	f, err := os.Open(filepath.Join(dir, flowsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var flows []model.EnrichedFlow
	if err := gob.NewDecoder(f).Decode(&flows); err != nil {
		return nil, fmt.Errorf("failed to decode flows in '%s': %w", dir, err)
	}
	return flows, nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode gob to '%s': %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json to '%s': %w", path, err)
	}
	return f.Close()
}
