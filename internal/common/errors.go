package common

import (
	"errors"
	"fmt"
)

// Codes carried by AppError. The pipeline codes double as the tag callers switch on.
const (
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeConversion        = "CONVERSION_FAILED"
	CodeExtraction        = "EXTRACTION_FAILED"
	CodeParse             = "PARSE_FAILED"
	CodeValidation        = "VALIDATION_FAILED"
	CodeConflict          = "RECONCILIATION_CONFLICT"

	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodePrecondition = "PRECONDITION_FAILED"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
	Fields  []ValidationError
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrDatabase       = errors.New("database error")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrPrecondition   = errors.New("precondition failed")
	ErrAuthentication = errors.New("credential rejected")
	ErrNotConfigured  = errors.New("not configured")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationFailure wraps collected field errors.
func NewValidationFailure(message string, fields []ValidationError) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Cause:   ErrValidation,
		Fields:  fields,
	}
}

func NotFound(format string, args ...any) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

func Forbidden(format string, args ...any) *AppError {
	return NewAppError(CodeForbidden, fmt.Sprintf(format, args...), ErrForbidden)
}

func Conflict(format string, args ...any) *AppError {
	return NewAppError(CodeConflict, fmt.Sprintf(format, args...), ErrConflict)
}

func Precondition(format string, args ...any) *AppError {
	return NewAppError(CodePrecondition, fmt.Sprintf(format, args...), ErrPrecondition)
}

func InvalidInput(format string, args ...any) *AppError {
	return NewAppError(CodeInvalidInput, fmt.Sprintf(format, args...), ErrInvalidInput)
}

func Unauthorized(format string, args ...any) *AppError {
	return NewAppError(CodeUnauthorized, fmt.Sprintf(format, args...), ErrUnauthorized)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the code of the outermost AppError in err's chain, or "" if none.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// FieldErrors returns the validation field errors carried by err, if any.
func FieldErrors(err error) []ValidationError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// MessageOf returns the human message of an AppError, falling back to err.Error().
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
