package queue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned when an enqueue arrives against a full
	// queue. The caller should retry later or reduce its submission rate.
	ErrQueueFull = errors.New("request queue full")

	// ErrQueueCleared is the sentinel carried by requests rejected by
	// Clear.
	ErrQueueCleared = errors.New("request queue cleared")

	// ErrTimeout is the sentinel all queue wait timeouts unwrap to.
	ErrTimeout = errors.New("request timed out in queue")

	// ErrDropped is the sentinel all backpressure evictions unwrap to.
	ErrDropped = errors.New("request dropped under backpressure")

	// ErrMaxRetries is the sentinel all retry exhaustions unwrap to.
	ErrMaxRetries = errors.New("request exceeded max retries")
)

// TimeoutError reports that a request waited longer than the configured
// timeout without being dispatched. Terminal unless the caller re-submits.
type TimeoutError struct {
	// RequestID identifies the timed-out request.
	RequestID string

	// Waited is how long the request sat in the queue.
	Waited time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out in queue after %s", e.RequestID, e.Waited)
}

// Unwrap returns ErrTimeout so errors.Is matching works.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// DroppedError reports that an already-queued request was evicted to make
// room under backpressure. Terminal for that request.
type DroppedError struct {
	// RequestID identifies the evicted request.
	RequestID string

	// Level is the priority bucket the request was evicted from.
	Level int
}

// Error implements the error interface.
func (e *DroppedError) Error() string {
	return fmt.Sprintf("request %s dropped from priority level %d under backpressure", e.RequestID, e.Level)
}

// Unwrap returns ErrDropped so errors.Is matching works.
func (e *DroppedError) Unwrap() error {
	return ErrDropped
}

// RetriesExceededError reports that a request was rejected by the admitter
// more than MaxRetries times. It carries the last rejection.
type RetriesExceededError struct {
	// RequestID identifies the failed request.
	RequestID string

	// Attempts is the number of admission attempts made.
	Attempts int

	// Err is the admitter's last rejection.
	Err error
}

// Error implements the error interface.
func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("request %s failed after %d attempts: %v", e.RequestID, e.Attempts, e.Err)
}

// Unwrap returns the last rejection. Matching ErrMaxRetries also works via
// Is.
func (e *RetriesExceededError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrMaxRetries in addition to the wrapped chain.
func (e *RetriesExceededError) Is(target error) bool {
	return target == ErrMaxRetries
}
