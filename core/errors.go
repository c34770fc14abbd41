package core

import "github.com/pkg/errors"

// ErrPermissionDenied is returned when an actor's role or membership does not
// allow the attempted operation.
var ErrPermissionDenied = errors.New("permission denied")

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

// IOError wraps a storage or archive failure so the request boundary can
// classify it without losing the cause.
type IOError struct {
	Err error
}

func NewIOError(err error, msg string) error {
	return &IOError{Err: errors.Wrap(err, msg)}
}

func (err IOError) Error() string {
	if err.Err == nil {
		return "storage unavailable"
	}
	return err.Err.Error()
}

func (err IOError) Unwrap() error { return err.Err }

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
