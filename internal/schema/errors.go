package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCategory is returned when a label is outside the field's declared set.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownField is returned when a selection names no field of the schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidValue is returned when a value has the wrong type or does not parse.
	ErrInvalidValue = errors.New("invalid value")
	// ErrOutOfRange is returned when a numeric value falls outside [min, max].
	ErrOutOfRange = errors.New("value out of range")
	// ErrInvalidSchema is returned by Validate.
	ErrInvalidSchema = errors.New("invalid schema")
)

// FieldError ties a validation failure to the field that caused it.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %q: %v: %v", e.Field, e.Err, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// IsValidation reports whether err was caused by bad selections rather than
// by the schema or the model.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrOutOfRange)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchema, fmt.Sprintf(format, args...))
}
