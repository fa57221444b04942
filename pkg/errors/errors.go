package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound, ErrNoProviders:
		return http.StatusNotFound
	case ErrAllBusy, ErrConflict, ErrAlreadyMissed, ErrInvalidTransition:
		return http.StatusConflict
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrNoProviders
	ErrAllBusy
	ErrConflict
	ErrAlreadyMissed
	ErrInvalidTransition
	ErrDependencyFailure
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:          "not_found",
	ErrBadRequest:        "bad_request",
	ErrUnauthorized:      "unauthorized",
	ErrForbidden:         "forbidden",
	ErrInternal:          "internal",
	ErrNoProviders:       "no_providers",
	ErrAllBusy:           "all_busy",
	ErrConflict:          "conflict",
	ErrAlreadyMissed:     "already_missed",
	ErrInvalidTransition: "invalid_transition",
	ErrDependencyFailure: "dependency_failure",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func NoProviders(specialization string) *AppError {
	return &AppError{
		Code:    ErrNoProviders,
		Message: fmt.Sprintf("no providers available for specialization %q", specialization),
	}
}

func AllBusy(specialization string) *AppError {
	return &AppError{
		Code:    ErrAllBusy,
		Message: fmt.Sprintf("all %s providers are busy at the requested time", specialization),
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func AlreadyMissed() *AppError {
	return &AppError{
		Code:    ErrAlreadyMissed,
		Message: "consultation is already marked as missed",
	}
}

func InvalidTransition(from, event string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot %s a consultation in status %s", event, from),
	}
}

func DependencyFailure(dependency string, err error) *AppError {
	return &AppError{
		Code:    ErrDependencyFailure,
		Message: fmt.Sprintf("%s failed", dependency),
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
