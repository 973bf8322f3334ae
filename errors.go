package qsim

// errors.go holds the error types surfaced to callers before a
// simulation is built.

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// A FieldError names one configuration field that violates its bound.
// Flow is the zero-based index of the offending flow, or -1 when the field
// belongs to the simulation as a whole.
type FieldError struct {
	Flow  int
	Field string
	Value any
	Rule  string
}

func (fe *FieldError) Error() string {
	if fe.Flow < 0 {
		return fmt.Sprintf("%s=%v: %s", fe.Field, fe.Value, fe.Rule)
	}
	return fmt.Sprintf("flow %d: %s=%v: %s", fe.Flow, fe.Field, fe.Value, fe.Rule)
}

// ValidationError reports a malformed or incomplete configuration.  It carries
// every violation found, not just the first, and is returned before any
// simulation state has been created.
type ValidationError struct {
	errs *multierror.Error
}

func (ve *ValidationError) Error() string {
	if ve.errs == nil || len(ve.errs.Errors) == 0 {
		return "invalid configuration"
	}
	msgs := make([]string, 0, len(ve.errs.Errors))
	for _, err := range ve.errs.Errors {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual violations to errors.Is and errors.As
func (ve *ValidationError) Unwrap() []error {
	if ve.errs == nil {
		return nil
	}
	return ve.errs.Errors
}

// Violations returns the individual field errors in the order they were found
func (ve *ValidationError) Violations() []*FieldError {
	var fes []*FieldError
	for _, err := range ve.Unwrap() {
		if fe, ok := err.(*FieldError); ok {
			fes = append(fes, fe)
		}
	}
	return fes
}

// validator accumulates field errors while a configuration is checked
type validator struct {
	errs *multierror.Error
}

func (v *validator) add(flow int, field string, value any, rule string) {
	v.errs = multierror.Append(v.errs, &FieldError{Flow: flow, Field: field, Value: value, Rule: rule})
}

// err returns nil when nothing was recorded, otherwise a *ValidationError
func (v *validator) err() error {
	if v.errs == nil || len(v.errs.Errors) == 0 {
		return nil
	}
	return &ValidationError{errs: v.errs}
}
