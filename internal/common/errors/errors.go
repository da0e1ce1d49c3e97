// Package errors provides standardized error handling for the lead delivery pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeCRMNotConfigured ErrorCode = "CRM_NOT_CONFIGURED"
	ErrCodeCRMAPIError      ErrorCode = "CRM_API_ERROR"
	ErrCodeCRMTimeout       ErrorCode = "CRM_TIMEOUT"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeQueueUnavailable ErrorCode = "QUEUE_UNAVAILABLE"
	ErrCodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
)

// StandardError represents a structured application error. Retryable drives
// the queue's retry-or-dead-letter decision; ValidationErrors carries remote
// field-level errors, which are never retried.
type StandardError struct {
	Code             ErrorCode              `json:"code"`
	Message          string                 `json:"message"`
	Details          string                 `json:"details,omitempty"`
	Retryable        bool                   `json:"retryable"`
	ValidationErrors []string               `json:"validationErrors,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationFailedError creates a non-retryable validation error carrying
// the offending fields.
func NewValidationFailedError(fieldErrors []string) *StandardError {
	return &StandardError{
		Code:             ErrCodeValidationFailed,
		Message:          "Input data validation failed",
		Details:          strings.Join(fieldErrors, "; "),
		Retryable:        false,
		ValidationErrors: fieldErrors,
		Timestamp:        time.Now().UTC(),
	}
}

// NewCRMNotConfiguredError creates a non-retryable configuration error.
func NewCRMNotConfiguredError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCRMNotConfigured,
		Message:   "CRM provider is not configured",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCRMAPIError creates a retryable CRM transport/API error.
func NewCRMAPIError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCRMAPIError,
		Message:   "CRM API request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCRMTimeoutError creates a retryable CRM timeout error.
func NewCRMTimeoutError(timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeCRMTimeout,
		Message:   "CRM API call timed out",
		Details:   fmt.Sprintf("timeout: %s", timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueueUnavailableError creates an error for a backing store that refuses
// the enqueue. Not retryable from the request path: the orchestrator reports
// the gap instead of blocking the response.
func NewQueueUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueUnavailable,
		Message:   "Job queue is unavailable",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownOperationError creates a non-retryable error for a job whose
// operation has no registered handler.
func NewUnknownOperationError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownOperation,
		Message:   "No handler registered for operation",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err should be retried by the queue. Errors that
// are not StandardError are treated as transient.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return true
}

// ValidationErrorsOf extracts field-level validation errors, if any.
func ValidationErrorsOf(err error) []string {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.ValidationErrors
	}
	return nil
}
