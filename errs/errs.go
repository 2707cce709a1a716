// Package errs defines the error taxonomy shared by the reference table
// engine and the attribute mapper.
//
// Callers classify failures with errors.Is against the sentinels below and
// use errors.As to get at the typed errors for details.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for nil or empty required input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when an operation references a table that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a table whose name is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConversion is matched by every *ConversionError.
	ErrConversion = errors.New("conversion failed")
	// ErrMissingProperty is matched by every *MissingPropertyError.
	ErrMissingProperty = errors.New("missing property")
	// ErrMaxDepthExceeded is returned when nested mapping goes deeper than configured.
	ErrMaxDepthExceeded = errors.New("max depth exceeded")
)

// InvalidArgument wraps ErrInvalidArgument with the offending argument name.
func InvalidArgument(op, arg, reason string) error {
	return fmt.Errorf("%s: %w: %s %s", op, ErrInvalidArgument, arg, reason)
}

// TableNotFound wraps ErrNotFound for the given table.
func TableNotFound(op, table string) error {
	return fmt.Errorf("%s: %w: reference table %q", op, ErrNotFound, table)
}

// TableExists wraps ErrAlreadyExists for the given table.
func TableExists(op, table string) error {
	return fmt.Errorf("%s: %w: reference table %q", op, ErrAlreadyExists, table)
}

// ConversionError reports a value that cannot be represented in the
// destination type.
type ConversionError struct {
	Property string
	From     string
	To       string
	Value    any
	Err      error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("convert %v from %s to %s", e.Value, e.From, e.To)
	if e.Property != "" {
		msg = fmt.Sprintf("property %q: %s", e.Property, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// MissingPropertyError reports a property that does not exist on a type.
type MissingPropertyError struct {
	Type     string
	Property string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("type %s has no property %q", e.Type, e.Property)
}

func (e *MissingPropertyError) Is(target error) bool {
	return target == ErrMissingProperty || target == ErrInvalidArgument
}
