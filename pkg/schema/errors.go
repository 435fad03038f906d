package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodePolicyDenied    = "POLICY_DENIED"
	ErrCodeStore           = "STORE_ERROR"
)

// QuillError is the structured error type for all quill operations.
type QuillError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Action  string         `json:"action,omitempty"`
	Cause   error          `json:"-"`
}

func (e *QuillError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *QuillError) Unwrap() error {
	return e.Cause
}

// NewError creates a new QuillError.
func NewError(code, message string) *QuillError {
	return &QuillError{Code: code, Message: message}
}

// NewErrorf creates a new QuillError with a formatted message.
func NewErrorf(code, format string, args ...any) *QuillError {
	return &QuillError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches an action name to the error.
func (e *QuillError) WithAction(name string) *QuillError {
	e.Action = name
	return e
}

// WithCause attaches an underlying cause.
func (e *QuillError) WithCause(err error) *QuillError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *QuillError) WithDetails(details map[string]any) *QuillError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from an error chain, defaulting to
// ErrCodeExecution for untyped errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuillError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ErrCodeExecution
}
