// Package errors provides the error taxonomy used by the dispatch pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient represents infrastructure errors worth retrying
	// (connection refused, timeouts).
	CategoryTransient ErrorCategory = "transient"
	// CategoryData represents data errors recovered by skipping the unit of
	// work (missing event fields, user not found, config not found).
	CategoryData ErrorCategory = "data"
	// CategoryProviderRejected represents a non-success response from the
	// upstream subscription provider.
	CategoryProviderRejected ErrorCategory = "provider_rejected"
	// CategoryConflict represents idempotent-conflict errors that are
	// swallowed during provisioning ("database already exists").
	CategoryConflict ErrorCategory = "conflict"
	// CategorySystem represents everything else.
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error carrying a dispatch category
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a retryable infrastructure error
func NewTransientError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "TRANSIENT",
		Message:  message,
		Cause:    cause,
	}
}

// NewDataError creates a skip-this-unit data error
func NewDataError(code, message string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryData,
		Code:     code,
		Message:  message,
	}
}

// NewProviderRejectedError creates an upstream rejection error
func NewProviderRejectedError(statusCode int, body string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProviderRejected,
		Code:     "PROVIDER_REJECTED",
		Message:  fmt.Sprintf("provider returned status %d: %s", statusCode, body),
	}
}

// NewConflictError creates an idempotent-conflict error
func NewConflictError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConflict,
		Code:     "CONFLICT",
		Message:  message,
		Cause:    cause,
	}
}

// CategoryOf returns the category of err, or CategorySystem for plain errors.
func CategoryOf(err error) ErrorCategory {
	var cerr *CategorizedError
	if stderrors.As(err, &cerr) {
		return cerr.Category
	}
	return CategorySystem
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	return CategoryOf(err) == CategoryTransient
}

// IsData reports whether err is recovered by skipping the unit of work
func IsData(err error) bool {
	return CategoryOf(err) == CategoryData
}

// IsProviderRejected reports whether err is an upstream rejection
func IsProviderRejected(err error) bool {
	return CategoryOf(err) == CategoryProviderRejected
}

// IsConflict reports whether err is an idempotent conflict
func IsConflict(err error) bool {
	return CategoryOf(err) == CategoryConflict
}
