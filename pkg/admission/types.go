package admission

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// RequestInfo describes a unit of work seeking admission. Aliased from the
// ratelimit package so callers can stay on this package's surface.
type RequestInfo = ratelimit.RequestInfo

// NewRequestInfo builds a RequestInfo with a generated unique id.
func NewRequestInfo(estimatedTokens, priority int, userID string) RequestInfo {
	return RequestInfo{
		ID:              uuid.NewString(),
		EstimatedTokens: estimatedTokens,
		Priority:        priority,
		UserID:          userID,
	}
}

// ErrUnknownProvider is the sentinel for acquisitions against an
// unregistered provider. This is a configuration error, not a retryable
// condition.
var ErrUnknownProvider = errors.New("unknown provider")

// UnknownProviderError reports an acquisition against a provider id that
// was never registered.
type UnknownProviderError struct {
	// Provider is the unregistered provider id.
	Provider string
}

// Error implements the error interface.
func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q: no rate limits registered", e.Provider)
}

// Unwrap returns ErrUnknownProvider so errors.Is matching works.
func (e *UnknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}

// Events receives admission decision notifications. Implementations must be
// fast and must not call back into the Manager. Use NopEvents to listen to
// nothing.
type Events interface {
	// AdmissionAllowed fires after a successful acquisition.
	AdmissionAllowed(provider string, info RequestInfo)

	// AdmissionRejected fires after a failed acquisition. scope is
	// "global" or "provider"; dimension is the exhausted dimension.
	AdmissionRejected(provider string, info RequestInfo, scope string, dimension ratelimit.Dimension)
}

// NopEvents is an Events implementation that discards everything.
type NopEvents struct{}

func (NopEvents) AdmissionAllowed(string, RequestInfo)                              {}
func (NopEvents) AdmissionRejected(string, RequestInfo, string, ratelimit.Dimension) {}
