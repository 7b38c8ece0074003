// Package apperror defines the application's error taxonomy.
//
// Every error that crosses a package boundary is either one of the sentinel
// errors below or an *AppError wrapping one. Handlers use errors.Is to map
// the sentinel to an HTTP status, and the AppError message to the body.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstream        = errors.New("upstream error")
	ErrConfiguration   = errors.New("configuration error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// WaitSeconds is set on rate-limit errors: how long the caller must wait
	// before trying again.
	WaitSeconds int
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
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned when an operation needs an Identity and the
// request carries none.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// RateLimited carries the number of seconds the gateway asked us to wait.
func RateLimited(waitSeconds int) *AppError {
	return &AppError{
		Err:         ErrRateLimited,
		Message:     fmt.Sprintf("Email rate limit exceeded. Please wait %d seconds before requesting another code.", waitSeconds),
		WaitSeconds: waitSeconds,
	}
}

// Upstream wraps a failure reported by the gateway or the commerce API.
func Upstream(service, message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: fmt.Sprintf("%s error: %s", service, message),
	}
}

// Configuration reports missing configuration keys. It is kept distinct from
// Forbidden so operators can tell "misconfigured" apart from "denied".
func Configuration(missing ...string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: fmt.Sprintf("missing configuration: %s", strings.Join(missing, ", ")),
	}
}
