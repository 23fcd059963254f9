// Package errors provides the error taxonomy used across enrollment-sync.
// Typed errors carry the context a caller needs to decide how to react,
// and each one matches its sentinel through errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// Re-exported helpers so callers only need one errors import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

// Sentinel errors
var (
	// ErrNotFound indicates that a requested record or queue item does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that required input was missing or malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNetwork indicates that fetching remote content failed
	ErrNetwork = errors.New("network error")

	// ErrStore indicates that a record or queue store operation failed
	ErrStore = errors.New("store error")

	// ErrQueueEmpty indicates there is no queued item to process
	ErrQueueEmpty = errors.New("queue empty")

	// ErrConflict indicates a queue item was not in the state a transition requires
	ErrConflict = errors.New("conflict")
)

// NetworkError represents a failed fetch of remote content.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP error status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s failed", e.URL)
}

// Unwrap implements errors.Unwrap
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Retryable reports whether the failure is worth another attempt.
// Transport failures and 429/5xx statuses are retryable.
func (e *NetworkError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NewNetworkError creates a new NetworkError
func NewNetworkError(url string, statusCode int, err error) *NetworkError {
	return &NetworkError{URL: url, StatusCode: statusCode, Err: err}
}

// StoreError represents a failed store operation (network, auth or validation
// failure reported by the backend).
type StoreError struct {
	Backend    string
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s store: %s failed (status %d): %v", e.Backend, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s store: %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Retryable reports whether the backend signalled a transient failure.
func (e *StoreError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NewStoreError creates a new StoreError
func NewStoreError(backend, op string, err error) *StoreError {
	return &StoreError{Backend: backend, Op: op, Err: err}
}

// ValidationError represents missing or malformed input at the boundary.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError represents a lookup by id that matched nothing.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsRetryable reports whether err (or anything it wraps) is marked retryable.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
