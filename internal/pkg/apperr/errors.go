package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the API error envelope
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeForbidden    = "FORBIDDEN"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is an error that knows how it is rendered to API callers
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error carrying extra details
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(status int, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func Validation(message string) *AppError {
	return newError(http.StatusBadRequest, CodeValidation, message, nil)
}

func NotFound(resource string) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, resource+" not found", nil)
}

func Conflict(message string) *AppError {
	return newError(http.StatusConflict, CodeConflict, message, nil)
}

func Forbidden(message string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, message, nil)
}

func Unauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func RateLimited() *AppError {
	return newError(http.StatusTooManyRequests, CodeRateLimited, "Too many requests", nil)
}

// Internal hides err from the caller while keeping it for logs
func Internal(err error) *AppError {
	return newError(http.StatusInternalServerError, CodeInternal, "An internal error occurred", err)
}

// From converts any error into an AppError, treating unknown errors as internal
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
