// Package onnx runs scikit-learn models exported with skl2onnx through
// ONNX Runtime. Classifiers must be exported with zipmap disabled so that
// probabilities come back as a plain [batch, classes] tensor.
package onnx

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/scorer"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const TypeName = "onnx"

// Output tensor names skl2onnx gives classifiers and isolation forests.
const (
	probabilityOutput = "output_probability"
	scoresOutput      = "scores"
)

func init() {
	factory.RegisterClassifier(TypeName, func(path string, cfg *config.ModelsConfig) (scorer.ProbabilityModel, error) {
		return NewClassifier(path, libraryPath(path, cfg))
	})
	factory.RegisterAnomaly(TypeName, func(path string, cfg *config.ModelsConfig) (scorer.DecisionModel, error) {
		return NewIsolation(path, libraryPath(path, cfg))
	})
}

// ortEnv is the process-wide ONNX Runtime environment.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// libraryPath defaults to the runtime shipped next to the model.
func libraryPath(modelPath string, cfg *config.ModelsConfig) string {
	if cfg != nil && cfg.ONNXLibraryPath != "" {
		return cfg.ONNXLibraryPath
	}
	return filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
}

// session wraps a single-input, single-output float model.
type session struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	nFeatures  int64
	outWidth   int64
}

func newSession(modelPath, libPath, outputName string) (*session, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected a single input tensor, got %d", len(inputs))
	}
	in := inputs[0]
	if len(in.Dimensions) != 2 || in.Dimensions[1] <= 0 {
		return nil, fmt.Errorf("onnx: expected input shape [batch, features], got %v", in.Dimensions)
	}

	var out *ort.InputOutputInfo
	for i := range outputs {
		if outputs[i].Name == outputName {
			out = &outputs[i]
		}
	}
	if out == nil {
		return nil, fmt.Errorf("onnx: model has no %q output", outputName)
	}
	if len(out.Dimensions) != 2 || out.Dimensions[1] <= 0 {
		return nil, fmt.Errorf("onnx: expected output %q shape [batch, n], got %v", outputName, out.Dimensions)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	s, err := ort.NewDynamicAdvancedSession(modelPath, []string{in.Name}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	return &session{
		session:    s,
		inputName:  in.Name,
		outputName: outputName,
		nFeatures:  in.Dimensions[1],
		outWidth:   out.Dimensions[1],
	}, nil
}

// run scores one row. The session is safe for concurrent Run calls.
func (s *session) run(x []float64) ([]float32, error) {
	if int64(len(x)) != s.nFeatures {
		return nil, scorer.ErrDimension
	}
	row := make([]float32, len(x))
	for i, v := range x {
		row[i] = float32(v)
	}

	tIn, err := ort.NewTensor(ort.NewShape(1, s.nFeatures), row)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.outWidth))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}
	src := tOut.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (s *session) close() error {
	return s.session.Destroy()
}

// Classifier is a probability model backed by an ONNX session.
type Classifier struct {
	s *session
}

// NewClassifier loads a classifier export.
func NewClassifier(modelPath, libPath string) (*Classifier, error) {
	s, err := newSession(modelPath, libPath, probabilityOutput)
	if err != nil {
		return nil, err
	}
	return &Classifier{s: s}, nil
}

func (c *Classifier) NumFeatures() int { return int(c.s.nFeatures) }
func (c *Classifier) NumClasses() int  { return int(c.s.outWidth) }

func (c *Classifier) PredictProba(x []float64) ([]float64, error) {
	out, err := c.s.run(x)
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(out))
	for i, v := range out {
		p[i] = float64(v)
	}
	return p, nil
}

func (c *Classifier) Close() error { return c.s.close() }

// Isolation is an isolation forest backed by an ONNX session.
type Isolation struct {
	s *session
}

// NewIsolation loads an isolation forest export.
func NewIsolation(modelPath, libPath string) (*Isolation, error) {
	s, err := newSession(modelPath, libPath, scoresOutput)
	if err != nil {
		return nil, err
	}
	if s.outWidth != 1 {
		_ = s.close()
		return nil, fmt.Errorf("onnx: expected a single score column, got %d", s.outWidth)
	}
	return &Isolation{s: s}, nil
}

func (f *Isolation) NumFeatures() int { return int(f.s.nFeatures) }

func (f *Isolation) DecisionFunction(x []float64) (float64, error) {
	out, err := f.s.run(x)
	if err != nil {
		return 0, err
	}
	return float64(out[0]), nil
}

func (f *Isolation) Close() error { return f.s.close() }
