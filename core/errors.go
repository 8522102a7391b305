package core

import "github.com/pkg/errors"

// ErrUnauthorized is returned when the caller's identity cannot be resolved
// or its role does not allow the requested operation.
var ErrUnauthorized = errors.New("unauthorized")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError reports a uniqueness violation on Field.
type ConflictError struct {
	Err   error
	Field string
}

func NewConflictError(err error, field string) error {
	return &ConflictError{Err: err, Field: field}
}

func (err ConflictError) Error() string {
	return err.Err.Error()
}

func (err ConflictError) Unwrap() error { return err.Err }

// IsConflict reports whether the cause of err is a ConflictError.
func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
