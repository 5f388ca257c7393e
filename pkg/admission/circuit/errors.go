package circuit

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpen is the sentinel all fast-fail rejections unwrap to.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError reports a fast-fail rejection while the circuit is open. The
// call is retryable once RetryAfter has elapsed.
type OpenError struct {
	// RetryAfter is how long until the breaker will admit a trial call.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open: retry after %s", e.RetryAfter)
}

// Unwrap returns ErrOpen so errors.Is matching works.
func (e *OpenError) Unwrap() error {
	return ErrOpen
}
