// Package schema describes the positional feature layout a trained model expects
// and encodes form selections into that layout.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Kind selects how a field's value is written into the feature vector.
type Kind string

const (
	// KindNumeric copies the value verbatim, in its original units.
	KindNumeric Kind = "numeric"
	// KindBinary writes 0 for the first label and 1 for the second.
	KindBinary Kind = "binary"
	// KindOrdinal writes the index of the label within its ordered list.
	KindOrdinal Kind = "ordinal"
	// KindOneHot writes a sub-vector with a single 1 at the label's index.
	KindOneHot Kind = "onehot"
	// KindMapped writes the number paired with the label.
	KindMapped Kind = "mapped"
)

// FeatureVector is the fixed-order numeric input of a model.
type FeatureVector []float64

// Field is one form control and the slice of the vector it owns.
type Field struct {
	Name     string    `yaml:"name" json:"name"`
	Label    string    `yaml:"label" json:"label"`
	Kind     Kind      `yaml:"kind" json:"kind"`
	Position int       `yaml:"position" json:"position"`
	Labels   []string  `yaml:"labels,omitempty" json:"labels,omitempty"`
	Values   []float64 `yaml:"values,omitempty" json:"values,omitempty"`

	// Numeric bounds and slider step. Nil bounds are open.
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Step    float64  `yaml:"step,omitempty" json:"step,omitempty"`
	Default *float64 `yaml:"default,omitempty" json:"default,omitempty"`

	// DefaultLabel is the preselected option; empty means the first label.
	DefaultLabel string `yaml:"default_label,omitempty" json:"default_label,omitempty"`
}

// Width is the number of vector positions the field writes.
func (f *Field) Width() int {
	if f.Kind == KindOneHot {
		return len(f.Labels)
	}
	return 1
}

// Categorical reports whether the field takes a label rather than a number.
func (f *Field) Categorical() bool {
	return f.Kind != KindNumeric
}

// DefaultValue returns the numeric default: Default, else Min, else zero.
func (f *Field) DefaultValue() float64 {
	switch {
	case f.Default != nil:
		return *f.Default
	case f.Min != nil:
		return *f.Min
	}
	return 0
}

// DefaultChoice returns the preselected label of a categorical field.
func (f *Field) DefaultChoice() string {
	if f.DefaultLabel != "" {
		return f.DefaultLabel
	}
	if len(f.Labels) > 0 {
		return f.Labels[0]
	}
	return ""
}

// IndexOf returns the position of label in the field's label set, or -1.
func (f *Field) IndexOf(label string) int {
	for i, l := range f.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Schema is a named, versioned feature layout.
type Schema struct {
	Name    string    `yaml:"name" json:"name"`
	Version int       `yaml:"version" json:"version"`
	Length  int       `yaml:"length" json:"length"`
	Base    []float64 `yaml:"base,omitempty" json:"base,omitempty"`
	Fields  []Field   `yaml:"fields" json:"fields"`
}

// Field returns the field with the given name, or nil.
func (s *Schema) Field(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Fingerprint is a short content hash of the layout. Two schemas with the same
// fingerprint encode identical selections identically.
func (s *Schema) Fingerprint() string {
	payload, err := json.Marshal(s)
	if err != nil {
		// Schema holds only plain data; Marshal cannot fail on it.
		panic(fmt.Sprintf("schema: fingerprint %s: %v", s.Name, err))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// String identifies the schema in logs and cache keys.
func (s *Schema) String() string {
	return fmt.Sprintf("%s@v%d", s.Name, s.Version)
}
