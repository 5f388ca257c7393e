package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errClosed is returned by operations on a closed backend.
var errClosed = errors.New("backend is closed")

// Decision is one recorded admission outcome.
type Decision struct {
	// Timestamp is when the decision was made.
	Timestamp time.Time

	// Provider is the provider the request was admitted against.
	Provider string

	// RequestID is the caller-assigned request id.
	RequestID string

	// UserID is the request owner, when known.
	UserID string

	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Reason explains the rejection (empty when allowed).
	Reason string

	// EstimatedTokens is the request's cost estimate at admission time.
	EstimatedTokens int
}

// Backend persists admission decisions. Implementations must be thread-safe.
type Backend interface {
	// Record appends one decision.
	Record(ctx context.Context, decision *Decision) error

	// List returns decisions for a provider made at or after since, newest
	// first. An empty provider matches all providers.
	List(ctx context.Context, provider string, since time.Time) ([]*Decision, error)

	// Cleanup deletes decisions older than olderThan. Returns the number
	// of deleted records.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases backend resources. The backend must not be used
	// afterwards.
	Close() error
}

// StorageError reports a backend failure with the operation that failed.
type StorageError struct {
	Backend   string // Backend kind ("memory", "sqlite")
	Operation string // Operation that failed ("record", "list", "cleanup")
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("history storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// newStorageError creates a StorageError.
func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}
