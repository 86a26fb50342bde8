package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearModel is the JSON artifact of a fitted linear or logistic regression.
// Coef has one row for regression and binary classification, one row per
// class otherwise.
type LinearModel struct {
	Task      Task        `json:"task"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Classes   []int64     `json:"classes,omitempty"`
}

// Linear evaluates a LinearModel. It holds no mutable state and is safe for
// concurrent use.
type Linear struct {
	model LinearModel
}

// LoadLinear reads a LinearModel from a JSON file.
func LoadLinear(path string) (*Linear, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model LinearModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return NewLinear(model)
}

// NewLinear validates model and wraps it in an engine.
func NewLinear(model LinearModel) (*Linear, error) {
	if len(model.Coef) == 0 || len(model.Coef[0]) == 0 {
		return nil, fmt.Errorf("%w: empty coefficients", ErrInvalidArtifact)
	}
	width := len(model.Coef[0])
	for i, row := range model.Coef {
		if len(row) != width {
			return nil, fmt.Errorf("%w: coefficient row %d has %d values, expected %d", ErrInvalidArtifact, i, len(row), width)
		}
	}
	if len(model.Intercept) != len(model.Coef) {
		return nil, fmt.Errorf("%w: %d intercepts for %d coefficient rows", ErrInvalidArtifact, len(model.Intercept), len(model.Coef))
	}

	switch model.Task {
	case Regression:
		if len(model.Coef) != 1 {
			return nil, fmt.Errorf("%w: regression needs one coefficient row", ErrInvalidArtifact)
		}
	case Classification:
		if len(model.Classes) == 0 {
			n := len(model.Coef)
			if n == 1 {
				n = 2
			}
			model.Classes = make([]int64, n)
			for i := range model.Classes {
				model.Classes[i] = int64(i)
			}
		}
		binary := len(model.Coef) == 1 && len(model.Classes) == 2
		multi := len(model.Coef) == len(model.Classes) && len(model.Classes) > 2
		if !binary && !multi {
			return nil, fmt.Errorf("%w: %d coefficient rows do not fit %d classes", ErrInvalidArtifact, len(model.Coef), len(model.Classes))
		}
	default:
		return nil, fmt.Errorf("%w: unknown task %q", ErrInvalidArtifact, model.Task)
	}

	return &Linear{model: model}, nil
}

// Task implements InferenceEngine.
func (l *Linear) Task() Task { return l.model.Task }

// Features is the vector length the model was fitted on.
func (l *Linear) Features() int { return len(l.model.Coef[0]) }

// Predict implements InferenceEngine.
func (l *Linear) Predict(batch [][]float64) ([]Output, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	outputs := make([]Output, len(batch))
	for i, row := range batch {
		if len(row) != l.Features() {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), l.Features())
		}
		outputs[i] = l.predictRow(row)
	}
	return outputs, nil
}

func (l *Linear) predictRow(row []float64) Output {
	scores := make([]float64, len(l.model.Coef))
	for k, coef := range l.model.Coef {
		z := l.model.Intercept[k]
		for j, w := range coef {
			z += w * row[j]
		}
		scores[k] = z
	}

	if l.model.Task == Regression {
		return Output{Value: scores[0]}
	}

	var probs []float64
	if len(scores) == 1 {
		p := sigmoid(scores[0])
		probs = []float64{1 - p, p}
	} else {
		probs = softmax(scores)
	}
	return Output{Label: l.model.Classes[argmax(probs)], Probabilities: probs}
}

// Close implements InferenceEngine.
func (l *Linear) Close() error { return nil }

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softmax(scores []float64) []float64 {
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the first index holding the largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

var _ InferenceEngine = (*Linear)(nil)
