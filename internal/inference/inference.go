// internal/inference/inference.go
package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Default tensor names produced by skl2onnx with zipmap disabled.
const (
	DefaultInputName         = "float_input"
	DefaultRegressionOutput  = "variable"
	DefaultLabelOutput       = "output_label"
	DefaultProbabilityOutput = "output_probability"
)

// The ONNX runtime environment is process-wide; every session holds a reference.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// Inference wraps an ONNX runtime session for thread-safe inference.
// It implements the InferenceEngine interface.
type Inference struct {
	mu       sync.Mutex
	session  *ort.DynamicAdvancedSession
	task     Task
	features int64
	classes  int64
}

// New creates a new Inference instance by loading the ONNX model named by spec.
// Regression models emit a [batch, 1] float tensor; classifiers emit an int64
// label tensor and a [batch, classes] probability tensor.
func New(spec Spec) (*Inference, error) {
	if spec.Features <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive", ErrInvalidArtifact)
	}
	if spec.Task == Classification && spec.Classes < 2 {
		return nil, fmt.Errorf("%w: classifier needs at least 2 classes", ErrInvalidArtifact)
	}

	inputName := spec.InputName
	if inputName == "" {
		inputName = DefaultInputName
	}
	outputNames := spec.OutputNames
	if len(outputNames) == 0 {
		outputNames = []string{DefaultRegressionOutput}
		if spec.Task == Classification {
			outputNames = []string{DefaultLabelOutput, DefaultProbabilityOutput}
		}
	}
	want := 1
	if spec.Task == Classification {
		want = 2
	}
	if len(outputNames) != want {
		return nil, fmt.Errorf("%w: %s model needs %d outputs, got %d", ErrInvalidArtifact, spec.Task, want, len(outputNames))
	}

	if err := acquireEnvironment(spec.SharedLibrary); err != nil {
		return nil, err
	}

	// Dynamic sessions accept any batch size
	session, err := ort.NewDynamicAdvancedSession(
		spec.Path,
		[]string{inputName},
		outputNames,
		nil, // Use default session options
	)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Inference{
		session:  session,
		task:     spec.Task,
		features: int64(spec.Features),
		classes:  int64(spec.Classes),
	}, nil
}

// Task implements InferenceEngine.
func (inf *Inference) Task() Task { return inf.task }

// Predict runs batch inference on feature vectors.
func (inf *Inference) Predict(batch [][]float64) ([]Output, error) {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	if inf.session == nil {
		return nil, ErrSessionClosed
	}

	n := int64(len(batch))
	if n == 0 {
		return nil, ErrEmptyBatch
	}

	// Pack batch into a single tensor [batch, features]
	tensorData := make([]float32, 0, n*inf.features)
	for i, row := range batch {
		if int64(len(row)) != inf.features {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), inf.features)
		}
		for _, v := range row {
			tensorData = append(tensorData, float32(v))
		}
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(n, inf.features), tensorData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	if inf.task == Classification {
		return inf.classify(inputTensor, n)
	}
	return inf.regress(inputTensor, n)
}

func (inf *Inference) regress(input *ort.Tensor[float32], n int64) ([]Output, error) {
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = inf.session.Run(
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	values := outputTensor.GetData()
	outputs := make([]Output, n)
	for i := range outputs {
		outputs[i] = Output{Value: float64(values[i])}
	}
	return outputs, nil
}

func (inf *Inference) classify(input *ort.Tensor[float32], n int64) ([]Output, error) {
	labelTensor, err := ort.NewEmptyTensor[int64](ort.NewShape(n))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer labelTensor.Destroy()

	probTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, inf.classes))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer probTensor.Destroy()

	err = inf.session.Run(
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{labelTensor, probTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	labels := labelTensor.GetData()
	probs := probTensor.GetData()
	outputs := make([]Output, n)
	for i := range outputs {
		row := make([]float64, inf.classes)
		for j := range row {
			row[j] = float64(probs[int64(i)*inf.classes+int64(j)])
		}
		outputs[i] = Output{Label: labels[i], Probabilities: row}
	}
	return outputs, nil
}

// Close releases the ONNX session resources
func (inf *Inference) Close() error {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	if inf.session == nil {
		return nil
	}
	err := inf.session.Destroy()
	inf.session = nil
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return releaseEnvironment()
}

// Ensure Inference implements InferenceEngine at compile time
var _ InferenceEngine = (*Inference)(nil)
