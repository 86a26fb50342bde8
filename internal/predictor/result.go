package predictor

import (
	"fmt"
	"math"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/inference"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

// Result is a display-ready prediction.
type Result struct {
	App     string         `json:"app"`
	Task    inference.Task `json:"task"`
	Heading string         `json:"heading"`

	// Value is the regression output.
	Value float64 `json:"value"`
	// Label, ClassName and Confidence describe a classification.
	Label         int64     `json:"label,omitempty"`
	ClassName     string    `json:"class_name,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`

	// Text is the headline, e.g. "215 miles" or "High Risk".
	Text           string `json:"text"`
	ConfidenceText string `json:"confidence_text,omitempty"`
	Level          string `json:"level,omitempty"`
	Message        string `json:"message,omitempty"`

	Inputs  []schema.Input        `json:"inputs,omitempty"`
	Metrics []catalog.MetricValue `json:"metrics,omitempty"`
	Cached  bool                  `json:"cached"`
}

// present normalizes a raw model output for app.
func present(app *catalog.App, out inference.Output) (*Result, error) {
	r := &Result{
		App:     app.Name,
		Task:    app.Task,
		Heading: app.Result.Heading,
	}

	switch app.Task {
	case inference.Regression:
		if math.IsNaN(out.Value) || math.IsInf(out.Value, 0) {
			return nil, fmt.Errorf("%w: non-finite prediction", ErrInferenceFailure)
		}
		r.Value = out.Value
		r.Text = app.FormatValue(out.Value)
		if tier, ok := app.TierFor(out.Value); ok {
			r.Level = tier.Level
			r.Message = tier.Message
		}

	case inference.Classification:
		idx := app.ClassIndex(out.Label)
		if idx < 0 {
			return nil, fmt.Errorf("%w: label %d is not a class of %s", ErrInferenceFailure, out.Label, app.Name)
		}
		if len(out.Probabilities) != len(app.Classes) {
			return nil, fmt.Errorf("%w: got %d probabilities for %d classes", ErrInferenceFailure, len(out.Probabilities), len(app.Classes))
		}
		class := app.Classes[idx]
		r.Label = out.Label
		r.ClassName = class.Name
		r.Confidence = out.Probabilities[idx]
		r.Probabilities = out.Probabilities
		r.Text = class.Name
		r.ConfidenceText = app.FormatConfidence(r.Confidence)
		r.Level = class.Level
		r.Message = class.Message
	}
	return r, nil
}
