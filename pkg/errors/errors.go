package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

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

// Is matches another *AppError by code so sentinel comparisons work
// regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode maps the error code to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidToken, ErrExpired, ErrAlreadyUsed, ErrAlreadyActivated, ErrAlreadyCompleted, ErrValidation, ErrBadRequest:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	case ErrForbidden:
		return http.StatusForbidden
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrInternal         ErrorCode = "INTERNAL"
	ErrInvalidToken     ErrorCode = "INVALID_TOKEN"
	ErrExpired          ErrorCode = "EXPIRED"
	ErrAlreadyUsed      ErrorCode = "ALREADY_USED"
	ErrAlreadyActivated ErrorCode = "ALREADY_ACTIVATED"
	ErrAlreadyCompleted ErrorCode = "ALREADY_COMPLETED"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrStorage          ErrorCode = "STORAGE_ERROR"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
)

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

func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func InvalidToken(message string, err error) *AppError {
	return &AppError{Code: ErrInvalidToken, Message: message, Err: err}
}

func Expired(message string) *AppError {
	return &AppError{Code: ErrExpired, Message: message}
}

func AlreadyUsed(message string) *AppError {
	return &AppError{Code: ErrAlreadyUsed, Message: message}
}

func AlreadyActivated(message string) *AppError {
	return &AppError{Code: ErrAlreadyActivated, Message: message}
}

func AlreadyCompleted(message string) *AppError {
	return &AppError{Code: ErrAlreadyCompleted, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Code: ErrConflict, Message: message}
}

func Validation(message string) *AppError {
	return &AppError{Code: ErrValidation, Message: message}
}

// Storage wraps a persistence failure. The message stays generic; the cause
// is kept for logs only.
func Storage(op string, err error) *AppError {
	return &AppError{Code: ErrStorage, Message: op + " failed", Err: err}
}

// CodeOf returns the code carried by err, or ErrInternal when err is not an
// *AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// HasCode reports whether err (or anything it wraps) is an *AppError with code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// As is re-exported so callers don't need both errors packages.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is is re-exported so callers don't need both errors packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
