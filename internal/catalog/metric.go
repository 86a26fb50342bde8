package catalog

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

// ErrNonFinite is returned when a metric evaluates to NaN or an infinity,
// for example a ratio over a zero input.
var ErrNonFinite = errors.New("metric is not a finite number")

// Metric is a display-only figure derived from the numeric inputs, such as an
// economy rate. It never feeds the model.
type Metric struct {
	Name   string `yaml:"name" json:"name"`
	Label  string `yaml:"label" json:"label"`
	Expr   string `yaml:"expr" json:"expr"`
	Format string `yaml:"format" json:"format"`

	program cel.Program
}

// MetricValue is an evaluated Metric.
type MetricValue struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

// compile declares every numeric field of s as a double variable and compiles
// the expression against them, so typos fail at load rather than at request time.
func (m *Metric) compile(s *schema.Schema) error {
	if m.Name == "" || m.Expr == "" {
		return fmt.Errorf("metric needs a name and an expression")
	}
	if m.Format == "" {
		m.Format = "%.2f"
	}

	var opts []cel.EnvOption
	for _, f := range s.Fields {
		if f.Kind == schema.KindNumeric {
			opts = append(opts, cel.Variable(f.Name, cel.DoubleType))
		}
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return fmt.Errorf("metric %s: error creating CEL environment: %v", m.Name, err)
	}

	ast, issues := env.Compile(m.Expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("metric %s: error compiling CEL expression: %v", m.Name, issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("metric %s: error creating Program: %v", m.Name, err)
	}
	m.program = p
	return nil
}

// Evaluate computes the metric from numeric field values.
func (m *Metric) Evaluate(values map[string]float64) (MetricValue, error) {
	if m.program == nil {
		return MetricValue{}, fmt.Errorf("metric %s is not compiled", m.Name)
	}
	vars := make(map[string]any, len(values))
	for k, v := range values {
		vars[k] = v
	}

	out, _, err := m.program.Eval(vars)
	if err != nil {
		return MetricValue{}, fmt.Errorf("metric %s: error evaluating CEL expression: %v", m.Name, err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(float64(0)))
	if err != nil {
		return MetricValue{}, fmt.Errorf("metric %s: result is not a number: %v", m.Name, err)
	}
	v := nv.(float64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return MetricValue{}, fmt.Errorf("metric %s: %w", m.Name, ErrNonFinite)
	}

	return MetricValue{
		Name:    m.Name,
		Label:   m.Label,
		Value:   v,
		Display: printer.Sprintf(m.Format, v),
	}, nil
}

// EvaluateMetrics resolves sel against the schema and evaluates every metric.
func (a *App) EvaluateMetrics(sel schema.Selections) ([]MetricValue, error) {
	if len(a.Metrics) == 0 {
		return nil, nil
	}
	values, err := a.Schema.Numeric(sel)
	if err != nil {
		return nil, err
	}
	out := make([]MetricValue, 0, len(a.Metrics))
	for _, m := range a.Metrics {
		mv, err := m.Evaluate(values)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}
