package schema

import (
	"errors"
	"math"
)

// Validate checks the layout is self-consistent: every field fits inside the
// vector, no two fields write the same position, label sets are closed and
// unique, and defaults are members of their own domain.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return invalidf("name is required")
	}
	if s.Length <= 0 {
		return invalidf("%s: length must be positive, got %d", s.Name, s.Length)
	}
	if len(s.Base) != 0 && len(s.Base) != s.Length {
		return invalidf("%s: base has %d values, length is %d", s.Name, len(s.Base), s.Length)
	}
	for i, v := range s.Base {
		if !finite(v) {
			return invalidf("%s: base[%d] is not a finite number", s.Name, i)
		}
	}
	if len(s.Fields) == 0 {
		return invalidf("%s: no fields", s.Name)
	}

	owner := make([]string, s.Length)
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return invalidf("%s: field %d has no name", s.Name, i)
		}
		if seen[f.Name] {
			return invalidf("%s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true

		if err := f.validate(); err != nil {
			return invalidf("%s: field %q: %v", s.Name, f.Name, err)
		}

		end := f.Position + f.Width()
		if f.Position < 0 || end > s.Length {
			return invalidf("%s: field %q spans [%d,%d) outside length %d", s.Name, f.Name, f.Position, end, s.Length)
		}
		for p := f.Position; p < end; p++ {
			if owner[p] != "" {
				return invalidf("%s: fields %q and %q both write position %d", s.Name, owner[p], f.Name, p)
			}
			owner[p] = f.Name
		}
	}
	return nil
}

func (f *Field) validate() error {
	switch f.Kind {
	case KindNumeric:
		if len(f.Labels) != 0 || len(f.Values) != 0 {
			return errors.New("numeric field cannot declare labels")
		}
		for name, p := range map[string]*float64{"min": f.Min, "max": f.Max, "default": f.Default} {
			if p != nil && !finite(*p) {
				return errors.New(name + " is not a finite number")
			}
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return errors.New("min exceeds max")
		}
		if f.Step < 0 || math.IsNaN(f.Step) {
			return errors.New("step must be non-negative")
		}
		if !f.inBounds(f.DefaultValue()) {
			return errors.New("default outside [min, max]")
		}
		return nil
	case KindBinary:
		if len(f.Labels) != 2 {
			return errors.New("binary field needs exactly 2 labels")
		}
	case KindOrdinal, KindOneHot:
		if len(f.Labels) < 2 {
			return errors.New("needs at least 2 labels")
		}
	case KindMapped:
		if len(f.Labels) == 0 {
			return errors.New("mapped field needs labels")
		}
		if len(f.Values) != len(f.Labels) {
			return errors.New("mapped field needs one value per label")
		}
		for _, v := range f.Values {
			if !finite(v) {
				return errors.New("mapped values must be finite numbers")
			}
		}
	default:
		return errors.New("unknown kind " + string(f.Kind))
	}

	if f.Kind != KindMapped && len(f.Values) != 0 {
		return errors.New("only mapped fields declare values")
	}
	labels := make(map[string]bool, len(f.Labels))
	for _, l := range f.Labels {
		if l == "" {
			return errors.New("empty label")
		}
		if labels[l] {
			return errors.New("duplicate label " + l)
		}
		labels[l] = true
	}
	if f.IndexOf(f.DefaultChoice()) < 0 {
		return errors.New("default label not in label set")
	}
	return nil
}

func (f *Field) inBounds(v float64) bool {
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
