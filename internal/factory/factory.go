// Package factory holds the registries that turn config entries into
// scorer strategies and writers. Implementations register themselves in init.
package factory

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"NetVerdict/internal/scorer"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ClassifierLoader loads a trained classifier from path.
type ClassifierLoader func(path string, cfg *config.ModelsConfig) (scorer.ProbabilityModel, error)

// AnomalyLoader loads a trained anomaly detector from path.
type AnomalyLoader func(path string, cfg *config.ModelsConfig) (scorer.DecisionModel, error)

// WriterFactory creates a writer from its config entry.
type WriterFactory func(def config.WriterDef, cfg *config.Config, logger *zap.Logger) (model.Writer, error)

var (
	mu                sync.RWMutex
	classifierLoaders = make(map[string]ClassifierLoader)
	anomalyLoaders    = make(map[string]AnomalyLoader)
	writerFactories   = make(map[string]WriterFactory)
)

// RegisterClassifier registers a classifier strategy under a model type name.
func RegisterClassifier(name string, loader ClassifierLoader) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := classifierLoaders[name]; exists {
		panic(fmt.Sprintf("classifier type '%s' already registered", name))
	}
	classifierLoaders[name] = loader
}

// RegisterAnomaly registers an anomaly detector strategy under a model type name.
func RegisterAnomaly(name string, loader AnomalyLoader) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := anomalyLoaders[name]; exists {
		panic(fmt.Sprintf("anomaly type '%s' already registered", name))
	}
	anomalyLoaders[name] = loader
}

// RegisterWriter registers a writer type.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := writerFactories[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	writerFactories[name] = factory
}

// LoadClassifier loads the classifier described by def.
func LoadClassifier(def config.ModelDef, cfg *config.ModelsConfig) (scorer.ProbabilityModel, error) {
	mu.RLock()
	loader, ok := classifierLoaders[def.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown classifier type: '%s'", def.Type)
	}
	return loader(resolve(cfg.RootPath, def.Path), cfg)
}

// LoadAnomaly loads the anomaly detector described by def.
func LoadAnomaly(def config.ModelDef, cfg *config.ModelsConfig) (scorer.DecisionModel, error) {
	mu.RLock()
	loader, ok := anomalyLoaders[def.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown anomaly type: '%s'", def.Type)
	}
	return loader(resolve(cfg.RootPath, def.Path), cfg)
}

// CreateWriters builds every enabled writer from the config. On error the
// writers built so far are closed.
func CreateWriters(cfg *config.Config, logger *zap.Logger) ([]model.Writer, error) {
	var writers []model.Writer
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		mu.RLock()
		factory, ok := writerFactories[def.Type]
		mu.RUnlock()
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}
		w, err := factory(def, cfg, logger)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer '%s': %w", def.Type, err)
		}
		logger.Info("writer created", zap.String("type", def.Type))
		writers = append(writers, w)
	}
	return writers, nil
}

// WriterTypes returns the registered writer names, sorted.
func WriterTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(writerFactories))
	for name := range writerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		_ = w.Close()
	}
}

// resolve joins relative paths onto the model root.
func resolve(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}
