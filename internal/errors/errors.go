package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured pipeline error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context, keeping the code of the
// innermost AppError if there is one.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode attaches a code to an error, wrapping it as the cause
func WithCode(code string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// GetCode returns the code of the outermost AppError in the chain, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code
func HasCode(err error, code string) bool {
	return err != nil && GetCode(err) == code
}

// Error codes
const (
	CodeInputLoad            = "INPUT_LOAD"
	CodeMalformedFiber       = "MALFORMED_FIBER"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeModelLoad            = "MODEL_LOAD"
	CodeFeatureShapeMismatch = "FEATURE_SHAPE_MISMATCH"
	CodeOutputWrite          = "OUTPUT_WRITE"
	CodeIncompleteResult     = "INCOMPLETE_RESULT"
	CodeInternalError        = "INTERNAL_ERROR"
)

func InputLoad(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeInputLoad,
		Message: fmt.Sprintf("failed to load %s", path),
		Cause:   cause,
	}
}

func MalformedFiber(format string, args ...interface{}) *AppError {
	return Newf(CodeMalformedFiber, format, args...)
}

func InvalidConfiguration(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidConfiguration, format, args...)
}

func ModelLoad(format string, args ...interface{}) *AppError {
	return Newf(CodeModelLoad, format, args...)
}

func FeatureShapeMismatch(context string, expected, actual int) *AppError {
	return Newf(CodeFeatureShapeMismatch, "%s: expected %d features, got %d", context, expected, actual)
}

func OutputWrite(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeOutputWrite,
		Message: fmt.Sprintf("failed to write %s", path),
		Cause:   cause,
	}
}

func IncompleteResult(format string, args ...interface{}) *AppError {
	return Newf(CodeIncompleteResult, format, args...)
}
