package inference

import (
	"encoding/json"
	"fmt"
	"os"
)

// TreeNode is one node of a fitted decision tree. Leaves have Left and Right
// set to -1 and carry Value: the prediction for regression, per-class weights
// for classification.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n TreeNode) leaf() bool { return n.Left < 0 && n.Right < 0 }

// ForestModel is the JSON artifact of a tree ensemble (a random forest, or a
// single tree as a forest of one).
type ForestModel struct {
	Task     Task         `json:"task"`
	Features int          `json:"n_features"`
	Classes  []int64      `json:"classes,omitempty"`
	Trees    [][]TreeNode `json:"trees"`
}

// Forest evaluates a ForestModel by averaging its trees.
type Forest struct {
	model ForestModel
}

// LoadForest reads a ForestModel from a JSON file.
func LoadForest(path string) (*Forest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model ForestModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return NewForest(model)
}

// NewForest validates every tree so that prediction cannot index out of range
// or loop: children always sit after their parent.
func NewForest(model ForestModel) (*Forest, error) {
	if model.Features <= 0 {
		return nil, fmt.Errorf("%w: n_features must be positive", ErrInvalidArtifact)
	}
	if len(model.Trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrInvalidArtifact)
	}

	leafWidth := 1
	switch model.Task {
	case Regression:
	case Classification:
		if len(model.Classes) < 2 {
			return nil, fmt.Errorf("%w: classifier needs at least 2 classes", ErrInvalidArtifact)
		}
		leafWidth = len(model.Classes)
	default:
		return nil, fmt.Errorf("%w: unknown task %q", ErrInvalidArtifact, model.Task)
	}

	for t, nodes := range model.Trees {
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrInvalidArtifact, t)
		}
		for i, n := range nodes {
			if n.leaf() {
				if len(n.Value) != leafWidth {
					return nil, fmt.Errorf("%w: tree %d leaf %d has %d values, expected %d", ErrInvalidArtifact, t, i, len(n.Value), leafWidth)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= model.Features {
				return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidArtifact, t, i, n.Feature)
			}
			if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
				return nil, fmt.Errorf("%w: tree %d node %d has invalid children", ErrInvalidArtifact, t, i)
			}
		}
	}
	return &Forest{model: model}, nil
}

// Task implements InferenceEngine.
func (f *Forest) Task() Task { return f.model.Task }

// Features is the vector length the forest was fitted on.
func (f *Forest) Features() int { return f.model.Features }

// Predict implements InferenceEngine.
func (f *Forest) Predict(batch [][]float64) ([]Output, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	outputs := make([]Output, len(batch))
	for i, row := range batch {
		if len(row) != f.model.Features {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), f.model.Features)
		}
		outputs[i] = f.predictRow(row)
	}
	return outputs, nil
}

func (f *Forest) predictRow(row []float64) Output {
	if f.model.Task == Regression {
		sum := 0.0
		for _, nodes := range f.model.Trees {
			sum += walk(nodes, row).Value[0]
		}
		return Output{Value: sum / float64(len(f.model.Trees))}
	}

	probs := make([]float64, len(f.model.Classes))
	for _, nodes := range f.model.Trees {
		leaf := walk(nodes, row)
		total := 0.0
		for _, w := range leaf.Value {
			total += w
		}
		if total == 0 {
			continue
		}
		for k, w := range leaf.Value {
			probs[k] += w / total
		}
	}
	for k := range probs {
		probs[k] /= float64(len(f.model.Trees))
	}
	return Output{Label: f.model.Classes[argmax(probs)], Probabilities: probs}
}

func walk(nodes []TreeNode, row []float64) TreeNode {
	idx := 0
	for {
		n := nodes[idx]
		if n.leaf() {
			return n
		}
		if row[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Close implements InferenceEngine.
func (f *Forest) Close() error { return nil }

var _ InferenceEngine = (*Forest)(nil)
