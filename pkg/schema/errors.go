package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidXML        = "INVALID_XML"
	ErrCodeInvalidGraph      = "INVALID_GRAPH"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeStore             = "STORE_ERROR"
)

// MactaError is the structured error type returned by the analysis core.
type MactaError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *MactaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *MactaError) Unwrap() error {
	return e.Cause
}

// NewError creates a new MactaError.
func NewError(code, message string) *MactaError {
	return &MactaError{Code: code, Message: message}
}

// NewErrorf creates a new MactaError with a formatted message.
func NewErrorf(code, format string, args ...any) *MactaError {
	return &MactaError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *MactaError) WithCause(err error) *MactaError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *MactaError) WithDetails(details map[string]any) *MactaError {
	e.Details = details
	return e
}

// ErrorCode returns the code of the first MactaError in err's chain, or "".
func ErrorCode(err error) string {
	var me *MactaError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsCode reports whether err carries the given MactaError code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
