// Package apperr defines the coded error type returned by the attendance and
// certificate services so callers can choose a message or status per failure.
package apperr

import "errors"

// Code is a machine-readable failure category.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeConflict          Code = "CONFLICT"
	CodeDependencyFailure Code = "DEPENDENCY_FAILURE"
	CodeValidationFailure Code = "VALIDATION_FAILURE"
)

// Error is a domain failure with a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(message string) *Error          { return New(CodeNotFound, message) }
func InvalidTransition(message string) *Error { return New(CodeInvalidTransition, message) }
func Conflict(message string) *Error          { return New(CodeConflict, message) }
func Validation(message string) *Error        { return New(CodeValidationFailure, message) }

// Dependency wraps a failure of an external collaborator (renderer, mailer, storage).
func Dependency(message string, cause error) *Error {
	return Wrap(CodeDependencyFailure, message, cause)
}

// CodeOf extracts the code from any error; CodeUnknown if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
