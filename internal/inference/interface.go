// internal/inference/interface.go
package inference

import "errors"

// Task is what a model predicts.
type Task string

const (
	Regression     Task = "regression"
	Classification Task = "classification"
)

// Output is the model's answer for one feature vector.
type Output struct {
	// Value is the regression result.
	Value float64 `json:"value"`
	// Label is the predicted class for classification models.
	Label int64 `json:"label"`
	// Probabilities holds one entry per class, in the model's class order.
	Probabilities []float64 `json:"probabilities,omitempty"`
}

// InferenceEngine defines the interface for running batch inference.
// This abstraction allows for easy mocking in tests and swapping implementations.
type InferenceEngine interface {
	// Predict runs a batch of feature vectors and returns one Output per row.
	// Every row must have the length the model was trained on.
	Predict(batch [][]float64) ([]Output, error)

	// Task reports whether the engine regresses or classifies.
	Task() Task

	// Close releases any resources held by the inference engine.
	Close() error
}

var (
	// ErrEmptyBatch is returned when Predict receives no rows.
	ErrEmptyBatch = errors.New("empty feature batch")
	// ErrShapeMismatch is returned when a row does not have the expected length.
	ErrShapeMismatch = errors.New("feature vector has wrong size")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("inference session is closed")
	// ErrInvalidArtifact is returned when a model file cannot be used.
	ErrInvalidArtifact = errors.New("invalid model artifact")
)
