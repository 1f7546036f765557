// Package errors defines the application error type shared by the auth
// adapters, the synchronizer, and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
	// ErrCodeNetwork means the auth backend or profile store could not be reached.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeAuthBackend is a structured rejection returned by the auth backend.
	ErrCodeAuthBackend ErrorCode = "auth_backend"
	// ErrCodeUnauthorized means credentials were missing or invalid.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeUnexpected fits no other category.
	ErrCodeUnexpected ErrorCode = "unexpected"
)

// AppError carries a code, a caller-facing message, and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation errors.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound creates a NotFound error.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a Conflict error.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

// Validation creates a Validation error.
func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// ValidationField creates a Validation error for one input field.
func ValidationField(field, message string) *AppError {
	e := newError(ErrCodeValidation, message)
	e.Field = field
	return e
}

// Internal creates an Internal error.
func Internal(message string) *AppError { return newError(ErrCodeInternal, message) }

// AuthBackend creates an AuthBackend error.
func AuthBackend(message string) *AppError { return newError(ErrCodeAuthBackend, message) }

// Unauthorized creates an Unauthorized error.
func Unauthorized(message string) *AppError { return newError(ErrCodeUnauthorized, message) }

// Network creates a Network error wrapping cause.
func Network(cause error, message string) *AppError {
	return Wrap(cause, ErrCodeNetwork, message)
}

// Wrap wraps err with an AppError. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

func IsNotFound(err error) bool     { return GetCode(err) == ErrCodeNotFound }
func IsConflict(err error) bool     { return GetCode(err) == ErrCodeConflict }
func IsValidation(err error) bool   { return GetCode(err) == ErrCodeValidation }
func IsNetwork(err error) bool      { return GetCode(err) == ErrCodeNetwork }
func IsAuthBackend(err error) bool  { return GetCode(err) == ErrCodeAuthBackend }
func IsUnauthorized(err error) bool { return GetCode(err) == ErrCodeUnauthorized }
