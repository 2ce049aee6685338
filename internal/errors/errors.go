// Package errors provides a lightweight structured error type (DocGenError)
// for category-based classification and retry semantics across pipeline stages and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a DocGen error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig ErrorCategory = "config"
	CategoryInput  ErrorCategory = "input"

	// External system integration errors
	CategoryNetwork ErrorCategory = "network"
	CategoryGit     ErrorCategory = "git"

	// Pipeline stage errors
	CategoryExtraction ErrorCategory = "extraction"
	CategoryTransform  ErrorCategory = "transform"
	CategoryTemplate   ErrorCategory = "template"
	CategoryValidation ErrorCategory = "validation"
	CategoryGeneration ErrorCategory = "generation"

	// Runtime and infrastructure errors
	CategoryCheckpoint ErrorCategory = "checkpoint"
	CategoryStorage    ErrorCategory = "storage"
	CategoryEventStore ErrorCategory = "eventstore"
	CategoryRuntime    ErrorCategory = "runtime"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DocGenError is a structured error with category, retryability, and context
type DocGenError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocGenError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocGenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocGenError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocGenError) WithContext(key string, value any) *DocGenError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DocGenError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocGenError {
	return &DocGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new DocGenError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocGenError {
	return &DocGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable DocGenError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *DocGenError {
	return &DocGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable DocGenError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocGenError {
	return &DocGenError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dge, ok := err.(*DocGenError); ok {
		return dge.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable. Retryability is what the retry
// wrapper keys on: only errors marked retryable are re-attempted.
func IsRetryable(err error) bool {
	if dge, ok := err.(*DocGenError); ok {
		return dge.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a DocGenError
func GetCategory(err error) ErrorCategory {
	if dge, ok := err.(*DocGenError); ok {
		return dge.Category
	}
	return CategoryInternal
}

// ConfigError creates a new configuration error, rejected before any stage executes.
func ConfigError(message string) *DocGenError {
	return &DocGenError{
		Category:  CategoryConfig,
		Severity:  SeverityFatal,
		Message:   message,
		Retryable: false,
	}
}

// InputError creates a new input error (file missing, unsupported format).
func InputError(message string) *DocGenError {
	return &DocGenError{
		Category:  CategoryInput,
		Severity:  SeverityError,
		Message:   message,
		Retryable: false,
	}
}

// WrapError wraps an existing error with a new DocGenError
func WrapError(err error, category ErrorCategory, message string) *DocGenError {
	return &DocGenError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
