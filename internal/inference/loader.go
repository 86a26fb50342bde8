package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Engine kinds accepted by Load.
const (
	KindONNX   = "onnx"
	KindLinear = "linear"
	KindForest = "forest"
	KindMock   = "mock"
)

// ErrTaskMismatch is returned when an artifact does not do what its app expects.
var ErrTaskMismatch = errors.New("model task mismatch")

// Spec names a model artifact and the contract it must meet.
type Spec struct {
	Kind string `yaml:"kind" json:"kind"`
	Path string `yaml:"path" json:"path"`

	// ONNX tensor names; defaults follow skl2onnx.
	InputName   string   `yaml:"input_name,omitempty" json:"input_name,omitempty"`
	OutputNames []string `yaml:"output_names,omitempty" json:"output_names,omitempty"`

	// Filled in from the app, not the file.
	Task          Task   `yaml:"-" json:"task"`
	Features      int    `yaml:"-" json:"features"`
	Classes       int    `yaml:"-" json:"classes,omitempty"`
	SharedLibrary string `yaml:"-" json:"-"`
}

// featureCounter is implemented by engines that know their input width.
type featureCounter interface {
	Features() int
}

// Load opens the artifact described by spec and checks it against the app's
// task and vector length.
func Load(spec Spec) (InferenceEngine, error) {
	var (
		engine InferenceEngine
		err    error
	)
	switch spec.Kind {
	case KindONNX:
		engine, err = New(spec)
	case KindLinear:
		engine, err = LoadLinear(spec.Path)
	case KindForest:
		engine, err = LoadForest(spec.Path)
	case KindMock:
		engine = mockFor(spec)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}

	if engine.Task() != spec.Task {
		engine.Close()
		return nil, fmt.Errorf("%w: artifact is %s, app expects %s", ErrTaskMismatch, engine.Task(), spec.Task)
	}
	if fc, ok := engine.(featureCounter); ok && spec.Features > 0 && fc.Features() != spec.Features {
		engine.Close()
		return nil, fmt.Errorf("%w: artifact takes %d features, schema has %d", ErrShapeMismatch, fc.Features(), spec.Features)
	}
	return engine, nil
}

// Identity names the artifact spec points at by content, so a retrained
// model at the same path gets a new identity. Mock engines share one identity.
func Identity(spec Spec) (string, error) {
	if spec.Kind == KindMock {
		return KindMock, nil
	}
	f, err := os.Open(spec.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", spec.Path, err)
	}
	return spec.Kind + "-" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// mockFor builds a stand-in engine honoring spec's shape, for running the
// service without artifacts.
func mockFor(spec Spec) *MockInference {
	m := NewMock()
	m.TaskKind = spec.Task
	m.Features = spec.Features
	if spec.Task == Classification {
		n := spec.Classes
		if n < 2 {
			n = 2
		}
		probs := make([]float64, n)
		probs[0] = 0.8
		for i := 1; i < n; i++ {
			probs[i] = 0.2 / float64(n-1)
		}
		m.DefaultOutput = Output{Label: 0, Probabilities: probs}
	}
	return m
}
