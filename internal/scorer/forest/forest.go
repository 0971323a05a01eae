// Package forest evaluates tree ensembles exported to JSON by the training
// job: random forest class probabilities and isolation forest decision values.
package forest

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/scorer"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const TypeName = "forest"

func init() {
	factory.RegisterClassifier(TypeName, func(path string, _ *config.ModelsConfig) (scorer.ProbabilityModel, error) {
		return LoadClassifier(path)
	})
	factory.RegisterAnomaly(TypeName, func(path string, _ *config.ModelsConfig) (scorer.DecisionModel, error) {
		return LoadIsolation(path)
	})
}

// Node is one tree node. Leaves have Left == -1.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`     // class weights at a classifier leaf
	NSamples  int       `json:"n_samples,omitempty"` // training samples reaching an isolation leaf
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// leaf walks x down the tree: x[feature] <= threshold goes left.
func (t *Tree) leaf(x []float64) (*Node, int, error) {
	i, depth := 0, 0
	for {
		if i < 0 || i >= len(t.Nodes) {
			return nil, 0, fmt.Errorf("node index %d out of range", i)
		}
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n, depth, nil
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
		if depth > len(t.Nodes) {
			return nil, 0, errors.New("tree contains a cycle")
		}
	}
}

func (t *Tree) validate(nFeatures, nClasses int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			if nClasses > 0 && len(n.Value) != nClasses {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), nClasses)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, nFeatures)
		}
		if n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children out of range", i)
		}
	}
	return nil
}

// Classifier is a random forest averaging per-tree leaf distributions.
type Classifier struct {
	Features int    `json:"n_features"`
	Classes  int    `json:"n_classes"`
	Trees    []Tree `json:"trees"`
}

// LoadClassifier reads a classifier export.
func LoadClassifier(path string) (*Classifier, error) {
	var c Classifier
	if err := readJSON(path, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the ensemble shape.
func (c *Classifier) Validate() error {
	if c.Features <= 0 || c.Classes <= 0 || len(c.Trees) == 0 {
		return fmt.Errorf("need features, classes and trees, got %d/%d/%d", c.Features, c.Classes, len(c.Trees))
	}
	for i := range c.Trees {
		if err := c.Trees[i].validate(c.Features, c.Classes); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (c *Classifier) NumFeatures() int { return c.Features }
func (c *Classifier) NumClasses() int  { return c.Classes }

// PredictProba averages the normalised leaf distributions of every tree.
func (c *Classifier) PredictProba(x []float64) ([]float64, error) {
	if len(x) != c.Features {
		return nil, scorer.ErrDimension
	}
	out := make([]float64, c.Classes)
	for i := range c.Trees {
		leaf, _, err := c.Trees[i].leaf(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		var total float64
		for _, v := range leaf.Value {
			total += v
		}
		if total <= 0 {
			continue
		}
		for k, v := range leaf.Value {
			out[k] += v / total
		}
	}
	for k := range out {
		out[k] /= float64(len(c.Trees))
	}
	return out, nil
}

// Isolation is an isolation forest. DecisionFunction matches scikit-learn:
// negative values are outliers.
type Isolation struct {
	Features   int     `json:"n_features"`
	MaxSamples int     `json:"max_samples"`
	Offset     float64 `json:"offset"`
	Trees      []Tree  `json:"trees"`
}

// LoadIsolation reads an isolation forest export.
func LoadIsolation(path string) (*Isolation, error) {
	var f Isolation
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid isolation forest %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks the ensemble shape.
func (f *Isolation) Validate() error {
	if f.Features <= 0 || f.MaxSamples <= 1 || len(f.Trees) == 0 {
		return fmt.Errorf("need features, max_samples > 1 and trees, got %d/%d/%d", f.Features, f.MaxSamples, len(f.Trees))
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features, 0); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *Isolation) NumFeatures() int { return f.Features }

// DecisionFunction returns score_samples(x) - offset.
func (f *Isolation) DecisionFunction(x []float64) (float64, error) {
	if len(x) != f.Features {
		return 0, scorer.ErrDimension
	}
	var sum float64
	for i := range f.Trees {
		leaf, depth, err := f.Trees[i].leaf(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += float64(depth) + averagePathLength(leaf.NSamples)
	}
	mean := sum / float64(len(f.Trees))
	score := -math.Pow(2, -mean/averagePathLength(f.MaxSamples))
	return score - f.Offset, nil
}

const eulerGamma = 0.5772156649015329

// averagePathLength is c(n), the mean unsuccessful search length of a BST on n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode model file %s: %w", path, err)
	}
	return nil
}
