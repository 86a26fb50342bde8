// Package catalog holds the prediction apps the service exposes: each app pairs
// a feature schema with a model artifact and the rules for presenting its output.
package catalog

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/SyedDaiam9101/predict-service/internal/inference"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

const defaultConfidenceFormat = "Confidence: %.1f%%"

var printer = message.NewPrinter(language.English)

// App is one single-page predictor.
type App struct {
	Name        string         `yaml:"name" json:"name"`
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Task        inference.Task `yaml:"task" json:"task"`
	Model       inference.Spec `yaml:"model" json:"-"`
	Result      ResultFormat   `yaml:"result" json:"result"`
	Tiers       []Tier         `yaml:"tiers,omitempty" json:"tiers,omitempty"`
	Classes     []Class        `yaml:"classes,omitempty" json:"classes,omitempty"`
	Metrics     []*Metric      `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Disclaimer  string         `yaml:"disclaimer,omitempty" json:"disclaimer,omitempty"`
	Schema      schema.Schema  `yaml:"schema" json:"schema"`
}

// ResultFormat controls how the model output is rendered.
type ResultFormat struct {
	Heading string `yaml:"heading" json:"heading"`
	// Format is a printf verb applied to a regression value, e.g. "%.0f miles".
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	// ConfidenceFormat is applied to a class probability in percent.
	ConfidenceFormat string `yaml:"confidence_format,omitempty" json:"confidence_format,omitempty"`
}

// Tier is a message band for regression values. Tiers are tried in order; a
// tier with neither bound always matches.
type Tier struct {
	GT      *float64 `yaml:"gt,omitempty" json:"gt,omitempty"`
	GTE     *float64 `yaml:"gte,omitempty" json:"gte,omitempty"`
	Level   string   `yaml:"level" json:"level"`
	Message string   `yaml:"message" json:"message"`
}

// Matches reports whether v falls in the tier.
func (t Tier) Matches(v float64) bool {
	switch {
	case t.GT != nil:
		return v > *t.GT
	case t.GTE != nil:
		return v >= *t.GTE
	}
	return true
}

// Class names one output label of a classifier. Classes are listed in the
// model's class order, which is also the order of its probabilities.
type Class struct {
	ID      int64  `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Level   string `yaml:"level" json:"level"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Validate checks the app and compiles its metric expressions.
func (a *App) Validate() error {
	if a.Name == "" {
		return errors.New("app name is required")
	}
	if err := a.Schema.Validate(); err != nil {
		return fmt.Errorf("app %s: %w", a.Name, err)
	}
	if a.Model.Kind == "" {
		return fmt.Errorf("app %s: model kind is required", a.Name)
	}

	switch a.Task {
	case inference.Regression:
		if a.Result.Format == "" {
			return fmt.Errorf("app %s: regression result needs a format", a.Name)
		}
		for i, t := range a.Tiers {
			if t.GT != nil && t.GTE != nil {
				return fmt.Errorf("app %s: tier %d sets both gt and gte", a.Name, i)
			}
		}
	case inference.Classification:
		if len(a.Classes) < 2 {
			return fmt.Errorf("app %s: classifier needs at least 2 classes", a.Name)
		}
		seen := make(map[int64]bool, len(a.Classes))
		for _, c := range a.Classes {
			if seen[c.ID] {
				return fmt.Errorf("app %s: duplicate class id %d", a.Name, c.ID)
			}
			seen[c.ID] = true
		}
	default:
		return fmt.Errorf("app %s: unknown task %q", a.Name, a.Task)
	}

	names := make(map[string]bool, len(a.Metrics))
	for _, m := range a.Metrics {
		if names[m.Name] {
			return fmt.Errorf("app %s: duplicate metric %q", a.Name, m.Name)
		}
		names[m.Name] = true
		if err := m.compile(&a.Schema); err != nil {
			return fmt.Errorf("app %s: %w", a.Name, err)
		}
	}
	return nil
}

// ModelSpec returns the artifact spec with the contract the schema imposes.
func (a *App) ModelSpec() inference.Spec {
	spec := a.Model
	spec.Task = a.Task
	spec.Features = a.Schema.Length
	spec.Classes = len(a.Classes)
	return spec
}

// TierFor returns the first tier matching v.
func (a *App) TierFor(v float64) (Tier, bool) {
	for _, t := range a.Tiers {
		if t.Matches(v) {
			return t, true
		}
	}
	return Tier{}, false
}

// ClassIndex returns the position of label in the class list, or -1.
func (a *App) ClassIndex(label int64) int {
	for i, c := range a.Classes {
		if c.ID == label {
			return i
		}
	}
	return -1
}

// FormatValue renders a regression value.
func (a *App) FormatValue(v float64) string {
	return printer.Sprintf(a.Result.Format, v)
}

// FormatConfidence renders a probability in [0, 1].
func (a *App) FormatConfidence(p float64) string {
	format := a.Result.ConfidenceFormat
	if format == "" {
		format = defaultConfidenceFormat
	}
	return printer.Sprintf(format, p*100)
}
