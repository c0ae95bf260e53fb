package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAttribute is matched by every [UnknownAttributeError].
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrRecordNotFound is returned by [Store] lookups that match nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrAlreadyExtended is returned by [Model.Extend] when an extension is
	// already registered.
	ErrAlreadyExtended = errors.New("model already has an attribute extension")

	errNameRequired       = errors.New("model name is required")
	errPrimaryKeyRequired = errors.New("schema has no primary key")
	errReadOnlyAttribute  = errors.New("primary key is read-only")
	errModelMismatch      = errors.New("record belongs to another model")
)

// UnknownAttributeError is returned when a name resolves to no attribute of
// the record.
type UnknownAttributeError struct {
	Model     string
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("%s: unknown attribute %q", e.Model, e.Attribute)
}

// Is makes errors.Is(err, ErrUnknownAttribute) succeed.
func (e *UnknownAttributeError) Is(target error) bool {
	return target == ErrUnknownAttribute
}

// MultiparameterError reports a composite "name(Ni)" group that could not be
// assembled.
type MultiparameterError struct {
	Attribute string
	Err       error
}

func (e *MultiparameterError) Error() string {
	return fmt.Sprintf("multiparameter attribute %q: %v", e.Attribute, e.Err)
}

func (e *MultiparameterError) Unwrap() error {
	return e.Err
}
