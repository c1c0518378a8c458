package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrInvalidTransition
	ErrInvalidCertificate
	ErrConflict
	ErrIntegrity
	ErrUnauthorized
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "validation"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrInvalidCertificate:
		return "invalid_certificate"
	case ErrConflict:
		return "conflict"
	case ErrIntegrity:
		return "integrity"
	case ErrUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// FieldViolation describes one invalid input field or line item.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v FieldViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// AppError represents an application error
type AppError struct {
	Code       ErrorCode        `json:"code"`
	Message    string           `json:"message"`
	Violations []FieldViolation `json:"violations,omitempty"`
	Err        error            `json:"-"`
}

func (e *AppError) Error() string {
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status for the error middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrInvalidCertificate:
		return http.StatusUnprocessableEntity
	case ErrInvalidTransition, ErrConflict:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, violations ...FieldViolation) *AppError {
	return &AppError{
		Code:       ErrValidation,
		Message:    message,
		Violations: violations,
	}
}

// InvalidTransition reports a command that is not legal from the entity's
// current state.
func InvalidTransition(entity, command, state string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot %s a %s %s", command, state, entity),
	}
}

func InvalidCertificate(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidCertificate,
		Message: message,
	}
}

// Conflict reports a concurrent modification: the entity changed between
// read and write and the caller must re-fetch and retry.
func Conflict(entity string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("%s was modified concurrently", entity),
	}
}

// Integrity reports a non-recoverable invariant failure (e.g. a report
// number collision). Never retried transparently.
func Integrity(message string, err error) *AppError {
	return &AppError{
		Code:    ErrIntegrity,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// From returns err as an *AppError, wrapping unknown errors as internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsCode reports whether err is an *AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
