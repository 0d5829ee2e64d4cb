package services

import "fmt"

// The service layer reports failures as one of four error kinds. They are
// transport-agnostic; handlers map each kind to an HTTP status.

// ValidationError signals invalid caller input: a missing or malformed
// field, an out-of-range number, an unknown enum value or a duplicate
// unique key. The caller can recover by correcting the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError signals that a referenced id does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// InsufficientCopiesError rejects a borrow whose quantity exceeds the
// book's current copies. A business-rule rejection, not a system fault.
type InsufficientCopiesError struct{}

func (e *InsufficientCopiesError) Error() string {
	return "Not enough copies available"
}

// TransientStoreError signals that a store-level conflict persisted past
// the retry budget. The operation left no partial state and may be retried.
type TransientStoreError struct {
	Cause error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store conflict persisted past retry budget: %v", e.Cause)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Cause
}
