package main

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of application error.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrTooLarge       ErrorCode = "TOO_LARGE"       // 413
	ErrRateLimited    ErrorCode = "RATE_LIMITED"    // 429
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrUnavailable    ErrorCode = "UNAVAILABLE"     // 503
)

// AppError is an error with a code, an HTTP status and optional details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewInvalidRequest(msg string) *AppError {
	return &AppError{Code: ErrInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{Code: ErrUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(kind, identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

func NewConflict(msg string) *AppError {
	return &AppError{Code: ErrConflict, Status: http.StatusConflict, Message: msg}
}

// NewTooLarge creates a 413 error when a payload exceeds its limit.
func NewTooLarge(what string, max, actual int) *AppError {
	return &AppError{
		Code:    ErrTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("%s too large: %d bytes (max %d)", what, actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

func NewRateLimited() *AppError {
	return &AppError{Code: ErrRateLimited, Status: http.StatusTooManyRequests, Message: "too many requests, try again later"}
}

func NewUnavailable(msg string) *AppError {
	return &AppError{Code: ErrUnavailable, Status: http.StatusServiceUnavailable, Message: msg}
}

// NewInternal wraps an unexpected error. The message is never sent to clients.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{Code: ErrInternal, Status: http.StatusInternalServerError, Message: msg, cause: err}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// asAppError converts any error into an AppError, defaulting to INTERNAL.
func asAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}
