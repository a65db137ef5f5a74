// Package errors provides the unified error type and factory functions for
// ChemPredict.  Every layer (domain, application, infrastructure, interfaces)
// uses AppError as the single carrier for structured error information, so the
// CLI, the terminal form and the HTTP API can all render failures the same way.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used throughout ChemPredict.
// It satisfies the standard error interface and supports errors.Is / errors.As
// / errors.Unwrap across all layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeArtifactMissing, "model not found at models/m.json")
//	return errors.Wrap(err, errors.ErrCodeStorageError, "failed to read blob")
//	return errors.UnknownCategory("Nucleophile", "Br-", []string{"CN-", "H2O"})
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error.
	Message string

	// Detail carries supplementary context (file paths, column names, etc.).
	Detail string

	// Field names the input field the error refers to, when there is one.
	Field string

	// Accepted lists the values a categorical field accepts.  It is populated
	// for ErrCodeUnknownCategory so that callers can show the valid choices.
	Accepted []string

	// Cause is the underlying error that triggered this AppError.
	Cause error

	// Stack contains the call-stack captured at the point of error creation.
	// It is not part of Error() output.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"
// The detail segment is omitted when Detail is empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ─────────────────────────────────────────────────────────────────────────────
// Fluent builder methods
// ─────────────────────────────────────────────────────────────────────────────

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// WithField returns a shallow copy of the receiver with Field set.
func (e *AppError) WithField(field string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Field = field
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Primary factory functions
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf is New with a format string.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil so it can be used inline.
//
// When err is already an *AppError and code is CodeUnknown the original code
// is preserved.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if code == CodeUnknown && errors.As(err, &ae) {
		code = ae.Code
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain factories
// ─────────────────────────────────────────────────────────────────────────────

// ArtifactMissing reports that a persisted model or encoder blob could not be
// located.
func ArtifactMissing(name string) *AppError {
	return &AppError{
		Code:    ErrCodeArtifactMissing,
		Message: "model artifact not found",
		Detail:  name,
		Stack:   captureStack(1),
	}
}

// UnknownCategory reports a categorical value outside the accepted set.
func UnknownCategory(field, value string, accepted []string) *AppError {
	acc := make([]string, len(accepted))
	copy(acc, accepted)
	return &AppError{
		Code:     ErrCodeUnknownCategory,
		Message:  fmt.Sprintf("invalid value for %s: %q", field, value),
		Detail:   "expected one of: " + strings.Join(acc, ", "),
		Field:    field,
		Accepted: acc,
		Stack:    captureStack(1),
	}
}

// InvalidInput reports a malformed or out-of-range reaction input.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: message,
		Stack:   captureStack(1),
	}
}

// DatasetInvalid reports a malformed training table.
func DatasetInvalid(message string) *AppError {
	return &AppError{
		Code:    ErrCodeDatasetInvalid,
		Message: message,
		Stack:   captureStack(1),
	}
}

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs a CodeInternal AppError.
func Internal(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error-chain inspection helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain.  If no *AppError is present, CodeUnknown is returned.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsArtifactMissing reports whether err is an ErrCodeArtifactMissing error.
func IsArtifactMissing(err error) bool { return IsCode(err, ErrCodeArtifactMissing) }

// IsUnknownCategory reports whether err is an ErrCodeUnknownCategory error.
func IsUnknownCategory(err error) bool { return IsCode(err, ErrCodeUnknownCategory) }

// IsInvalidInput reports whether err is an ErrCodeInvalidInput error.
func IsInvalidInput(err error) bool { return IsCode(err, ErrCodeInvalidInput) }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound) || IsCode(err, ErrCodeArtifactMissing)
}

// Is, As and Unwrap re-export the standard library helpers so callers only
// need one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
