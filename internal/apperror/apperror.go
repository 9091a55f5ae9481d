// Package apperror defines the error kinds shared by the server, the client and the CLI.
//
// Every error that crosses a layer boundary is an *AppError wrapping one of the
// sentinel kinds below. Callers test the kind with errors.Is and read the
// machine-readable Code when they need to branch on a specific failure
// (for example "cannot_fork_own_package").
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemote is any other failure reported by the registry.
	ErrRemote = errors.New("remote error")
)

// Well-known error codes. They travel over the wire as "error_code".
const (
	CodeNotFound             = "not_found"
	CodeValidation           = "validation_error"
	CodeInvalidQueryParams   = "invalid_query_params"
	CodeConflict             = "conflict"
	CodeForbidden            = "forbidden"
	CodeUnauthorized         = "unauthorized"
	CodeCannotForkOwnPackage = "cannot_fork_own_package"
	CodeInternal             = "internal_error"
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Machine-readable code, e.g. "package_not_found"
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
		Code:    resource + "_not_found",
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Code:    CodeValidation,
	}
}

// InvalidQuery is a ValidationFailed raised while parsing query parameters.
func InvalidQuery(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Code:    CodeInvalidQueryParams,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
		Code:    CodeConflict,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
		Code:    CodeForbidden,
	}
}

// Unauthorized means the caller has no valid session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
		Code:    CodeUnauthorized,
	}
}

// WithCode returns a copy of e carrying a more specific error code.
func (e *AppError) WithCode(code string) *AppError {
	cp := *e
	cp.Code = code
	return &cp
}

// HasCode reports whether err (or anything it wraps) is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// FromStatus rebuilds an AppError from a decoded error body so that clients
// can use errors.Is on the kind. Statuses the server never maps from a kind
// wrap ErrRemote.
func FromStatus(status int, code, message, field string) *AppError {
	var kind error
	switch status {
	case 400:
		kind = ErrValidation
	case 401:
		kind = ErrUnauthorized
	case 403:
		kind = ErrForbidden
	case 404:
		kind = ErrNotFound
	case 409:
		kind = ErrConflict
	default:
		kind = ErrRemote
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &AppError{Err: kind, Message: message, Field: field, Code: code}
}
