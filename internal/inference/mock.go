// internal/inference/mock.go
package inference

import (
	"fmt"
	"sync"
)

// MockInference is a mock implementation of InferenceEngine for testing.
// It returns deterministic outputs without requiring a model artifact or the
// ONNX shared library.
type MockInference struct {
	mu sync.Mutex

	// TaskKind is reported by Task
	TaskKind Task
	// Features, when positive, is the row length Predict insists on
	Features int
	// DefaultOutput is returned for each row in the batch
	DefaultOutput Output
	// ShouldError if true, Predict will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// PanicMessage, when set, makes Predict panic like a misbehaving runtime
	PanicMessage string
	// CallCount tracks the number of times Predict was called
	CallCount int
	// LastBatch is the batch passed to the most recent Predict call
	LastBatch [][]float64
}

// NewMock creates a regression mock returning 150 for every row
func NewMock() *MockInference {
	return &MockInference{
		TaskKind:      Regression,
		DefaultOutput: Output{Value: 150},
	}
}

// NewMockWithOutput creates a MockInference with a custom output
func NewMockWithOutput(task Task, out Output) *MockInference {
	return &MockInference{
		TaskKind:      task,
		DefaultOutput: out,
	}
}

// Task implements InferenceEngine.
func (m *MockInference) Task() Task { return m.TaskKind }

// Predict returns DefaultOutput repeated for each row in the batch.
func (m *MockInference) Predict(batch [][]float64) ([]Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastBatch = batch

	if m.PanicMessage != "" {
		panic(m.PanicMessage)
	}
	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	if m.Features > 0 {
		for i, row := range batch {
			if len(row) != m.Features {
				return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), m.Features)
			}
		}
	}

	result := make([]Output, len(batch))
	for i := range result {
		out := m.DefaultOutput
		if out.Probabilities != nil {
			out.Probabilities = append([]float64(nil), out.Probabilities...)
		}
		result[i] = out
	}
	return result, nil
}

// Calls returns CallCount under the lock, for use from concurrent tests
func (m *MockInference) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Close is a no-op for the mock implementation
func (m *MockInference) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next Predict call
func (m *MockInference) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockInference) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure MockInference implements InferenceEngine at compile time
var _ InferenceEngine = (*MockInference)(nil)
