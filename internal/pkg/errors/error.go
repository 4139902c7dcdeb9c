package errors

import (
	"errors"
	"fmt"
)

// AppError is the structured error flowing from biz code to HTTP handlers.
// Message is safe to show to callers; Err keeps the cause for logs.
type AppError struct {
	Code    int
	Message string
	Err     error
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

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// New creates an AppError; an optional message overrides the default one
func New(code int, message ...string) *AppError {
	msg := GetMessage(code)
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &AppError{Code: code, Message: msg}
}

// Newf creates an AppError with a formatted message
func Newf(code int, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to err. An existing AppError keeps its own code.
func Wrap(err error, code int, message ...string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	e := New(code, message...)
	e.Err = err
	return e
}

// Is reports whether err carries code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ExtractCode returns the code carried by err, ErrInternal otherwise
func ExtractCode(err error) int {
	if err == nil {
		return Success
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// PublicMessage returns the caller-facing message of err
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return GetMessage(ErrInternal)
}

// 常用构造函数

func NewValidationError(message string) *AppError { return New(ErrValidation, message) }
func NewAuthError(message string) *AppError       { return New(ErrAuth, message) }
func NewNotFoundError(message string) *AppError   { return New(ErrNotFound, message) }

// NewSandboxError wraps a file system or shell failure inside the sandbox
func NewSandboxError(err error, message string) *AppError {
	return Wrap(err, ErrSandbox, message)
}

// NewPersistenceError wraps a storage backend failure
func NewPersistenceError(err error) *AppError {
	return Wrap(err, ErrPersistence)
}
