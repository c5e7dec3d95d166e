// Package errors provides typed errors for the nimmit briefing engine.
//
// The engine surfaces a small taxonomy to its callers: identity problems
// (unauthorized/forbidden), request validation failures, missing resources and
// internal failures. Collaborator failures (AI providers, the store, maintenance
// tasks) have their own types so they can be logged with structure and, where it
// makes sense, retried. All types support errors.Is() and errors.As() from the
// standard library and cockroachdb/errors.
package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for the outer API surface.
type Kind string

// Error kinds surfaced by the briefing and maintenance operations.
const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// BriefingError is returned by the exposed engine operations.
type BriefingError struct {
	Kind      Kind
	Operation string // e.g., "SendMessage", "RunTask"
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *BriefingError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s %s: %s", e.Operation, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *BriefingError) Unwrap() error {
	return e.Cause
}

// NewUnauthorized reports a missing or invalid identity.
func NewUnauthorized(operation, message string) *BriefingError {
	return &BriefingError{Kind: KindUnauthorized, Operation: operation, Message: message}
}

// NewForbidden reports an identity without the required privilege.
func NewForbidden(operation, message string) *BriefingError {
	return &BriefingError{Kind: KindForbidden, Operation: operation, Message: message}
}

// NewValidation reports malformed input the caller can correct.
func NewValidation(operation, message string) *BriefingError {
	return &BriefingError{Kind: KindValidation, Operation: operation, Message: message}
}

// NewNotFound reports a resource that does not exist or is not visible to the caller.
func NewNotFound(operation, message string) *BriefingError {
	return &BriefingError{Kind: KindNotFound, Operation: operation, Message: message}
}

// NewInternal wraps an unrecoverable failure.
func NewInternal(operation, message string, cause error) *BriefingError {
	return &BriefingError{Kind: KindInternal, Operation: operation, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first BriefingError in err's chain.
// Errors without one are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *BriefingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Field   string // Which config field has the issue
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with an underlying cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// AIError represents text-generation provider errors.
type AIError struct {
	Provider   string // e.g., "anthropic", "ollama"
	Operation  string // e.g., "Chat", "Extract"
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ai %s %s failed (HTTP %d): %s", e.Provider, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ai %s %s failed: %s", e.Provider, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// NewAIError creates a new AIError.
func NewAIError(provider, operation, message string) *AIError {
	return &AIError{Provider: provider, Operation: operation, Message: message}
}

// NewAIErrorWithStatus creates a new AIError with HTTP status code.
func NewAIErrorWithStatus(provider, operation string, statusCode int, message string) *AIError {
	return &AIError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewAIErrorWithCause creates a new AIError with an underlying cause.
func NewAIErrorWithCause(provider, operation, message string, cause error) *AIError {
	return &AIError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// StoreError represents persistence failures.
type StoreError struct {
	Operation string // e.g., "SaveSession", "ListWorkers"
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store %s failed: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("store %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, message string, cause error) *StoreError {
	return &StoreError{Operation: operation, Message: message, Cause: cause}
}

// TaskError represents a failed maintenance task run.
type TaskError struct {
	Task    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("maintenance task %s failed: %s", e.Task, e.Message)
	}
	return "maintenance task failed: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewTaskError creates a new TaskError.
func NewTaskError(task, message string, cause error) *TaskError {
	return &TaskError{Task: task, Message: message, Cause: cause}
}

// IsRetryable reports whether err's chain holds an AIError marked retryable.
// Store and task failures are never retried.
func IsRetryable(err error) bool {
	var aiErr *AIError
	return errors.As(err, &aiErr) && aiErr.Retryable
}

func hasType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// IsConfigError reports whether err's chain holds a ConfigError.
func IsConfigError(err error) bool { return hasType[*ConfigError](err) }

// IsAIError reports whether err's chain holds an AIError.
func IsAIError(err error) bool { return hasType[*AIError](err) }

// IsStoreError reports whether err's chain holds a StoreError.
func IsStoreError(err error) bool { return hasType[*StoreError](err) }

// IsTaskError reports whether err's chain holds a TaskError.
func IsTaskError(err error) bool { return hasType[*TaskError](err) }

// Provider responses worth another attempt: timeouts, throttling and
// server-side failures other than 501.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= http.StatusInternalServerError && statusCode != http.StatusNotImplemented
}

// cockroachdb/errors helpers, so callers need only this package.
var (
	New   = errors.New
	Newf  = errors.Newf
	Wrap  = errors.Wrap
	Wrapf = errors.Wrapf
	Is    = errors.Is
	As    = errors.As
)
