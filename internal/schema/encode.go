package schema

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Selections maps field names to user input. Numeric fields accept numbers or
// numeric strings; categorical fields accept a label string. Missing fields
// take the field default.
type Selections map[string]any

// Input is a resolved selection.
type Input struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
	// Value is the number written for the field: the numeric value, the
	// label index, or the mapped number.
	Value float64 `json:"value"`
	// Choice is the selected label of a categorical field.
	Choice string `json:"choice,omitempty"`
}

// Display renders the selection the way the user entered it.
func (in Input) Display() string {
	if in.Choice != "" {
		return in.Choice
	}
	return strconv.FormatFloat(in.Value, 'f', -1, 64)
}

// Inputs resolves every field of the schema against sel, in field order.
// All selections are checked before anything is returned.
func (s *Schema) Inputs(sel Selections) ([]Input, error) {
	if err := s.checkNames(sel); err != nil {
		return nil, err
	}

	inputs := make([]Input, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		raw, ok := sel[f.Name]
		in, err := f.resolve(raw, ok)
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}
	return inputs, nil
}

// Encode turns sel into the model's feature vector. The vector is assembled
// only after every selection resolved; a bad selection never reaches it.
func (s *Schema) Encode(sel Selections) (FeatureVector, error) {
	_, vec, err := s.Resolve(sel)
	return vec, err
}

// Resolve returns both the resolved inputs and the vector built from them.
func (s *Schema) Resolve(sel Selections) ([]Input, FeatureVector, error) {
	inputs, err := s.Inputs(sel)
	if err != nil {
		return nil, nil, err
	}
	return inputs, s.encodeInputs(inputs), nil
}

// encodeInputs expects inputs as returned by Inputs, in field order.
func (s *Schema) encodeInputs(inputs []Input) FeatureVector {
	vec := make(FeatureVector, s.Length)
	copy(vec, s.Base)
	for i, in := range inputs {
		f := &s.Fields[i]
		if f.Kind == KindOneHot {
			for j := 0; j < f.Width(); j++ {
				vec[f.Position+j] = 0
			}
			vec[f.Position+int(in.Value)] = 1
			continue
		}
		vec[f.Position] = in.Value
	}
	return vec
}

// Numeric returns the resolved value of every numeric field keyed by name.
func (s *Schema) Numeric(sel Selections) (map[string]float64, error) {
	inputs, err := s.Inputs(sel)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, in := range inputs {
		if in.Kind == KindNumeric {
			out[in.Name] = in.Value
		}
	}
	return out, nil
}

func (s *Schema) checkNames(sel Selections) error {
	var unknown []string
	for name := range sel {
		if s.Field(name) == nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &FieldError{Field: unknown[0], Err: ErrUnknownField}
}

func (f *Field) resolve(raw any, present bool) (Input, error) {
	in := Input{Name: f.Name, Label: f.Label, Kind: f.Kind}

	if !f.Categorical() {
		v := f.DefaultValue()
		if present {
			var err error
			if v, err = toFloat(raw); err != nil {
				return in, &FieldError{Field: f.Name, Value: raw, Err: ErrInvalidValue}
			}
		}
		if !f.inBounds(v) {
			return in, &FieldError{Field: f.Name, Value: v, Err: ErrOutOfRange}
		}
		in.Value = v
		return in, nil
	}

	choice := f.DefaultChoice()
	if present {
		label, ok := raw.(string)
		if !ok {
			return in, &FieldError{Field: f.Name, Value: raw, Err: ErrInvalidValue}
		}
		choice = strings.TrimSpace(label)
	}
	idx := f.IndexOf(choice)
	if idx < 0 {
		return in, &FieldError{Field: f.Name, Value: choice, Err: ErrUnknownCategory}
	}

	in.Choice = choice
	if f.Kind == KindMapped {
		in.Value = f.Values[idx]
	} else {
		in.Value = float64(idx)
	}
	return in, nil
}

func toFloat(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
		v = f
	default:
		return 0, ErrInvalidValue
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidValue
	}
	return v, nil
}
