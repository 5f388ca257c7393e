package admission

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/admission/history"
	"mercator-hq/ganymede/pkg/admission/queue"
	"mercator-hq/ganymede/pkg/admission/ratelimit"
)

// Recorder persists admission decisions for audit. Implementations are
// expected to be fast; failures are logged and never affect admission.
type Recorder interface {
	Record(ctx context.Context, decision *history.Decision) error
}

// Manager owns one rate limiter per registered provider plus an optional
// global limiter, and enforces global-then-provider ordering on every
// acquisition.
//
// The Manager is an explicit registry owned by the caller's composition
// root; construct one and pass it where needed.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*ratelimit.Limiter
	global    *ratelimit.Limiter

	events   Events
	logger   *slog.Logger
	recorder Recorder
}

// NewManager creates an empty manager. Register providers before acquiring.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]*ratelimit.Limiter),
		events:    NopEvents{},
		logger:    slog.Default().With("component", "admission.manager"),
	}
}

// SetEvents installs an event listener. Call before the manager is in use.
func (m *Manager) SetEvents(ev Events) {
	if ev != nil {
		m.events = ev
	}
}

// SetLogger replaces the manager's logger. Call before the manager is in use.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetRecorder installs a decision recorder (see pkg/admission/history).
func (m *Manager) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

// RegisterProvider creates (or replaces) the limiter for a provider id.
func (m *Manager) RegisterProvider(providerID string, config ratelimit.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[providerID] = ratelimit.NewProviderLimiter(providerID, config)
	m.logger.Info("provider registered",
		"provider", providerID,
		"requests_per_minute", config.RequestsPerMinute,
		"tokens_per_minute", config.TokensPerMinute,
	)
}

// SetGlobalLimits installs (or replaces) the global limiter checked before
// every provider limiter.
func (m *Manager) SetGlobalLimits(config ratelimit.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.global = ratelimit.NewProviderLimiter("global", config)
	m.logger.Info("global limits set",
		"requests_per_minute", config.RequestsPerMinute,
		"tokens_per_minute", config.TokensPerMinute,
	)
}

// Providers returns the registered provider ids, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Acquire admits info against the global limiter (if configured) and then
// the provider limiter, committing consumption on both. A global rejection
// short-circuits before any provider-side consumption occurs. An unknown
// provider id fails with *UnknownProviderError; it never silently admits.
func (m *Manager) Acquire(ctx context.Context, providerID string, info RequestInfo) error {
	global, provider, err := m.limitersFor(providerID)
	if err != nil {
		m.logger.Error("acquire against unregistered provider", "provider", providerID)
		return err
	}

	if global != nil {
		if err := global.Acquire(ctx, info); err != nil {
			m.rejected(ctx, providerID, info, "global", err)
			return err
		}
	}

	if err := provider.Acquire(ctx, info); err != nil {
		m.rejected(ctx, providerID, info, "provider", err)
		return err
	}

	m.events.AdmissionAllowed(providerID, info)
	m.record(ctx, providerID, info, true, "")
	return nil
}

// Check reports whether info would be admitted, without consuming capacity.
// Ordering mirrors Acquire: global first, then provider.
func (m *Manager) Check(providerID string, info RequestInfo) (ratelimit.CheckResult, error) {
	global, provider, err := m.limitersFor(providerID)
	if err != nil {
		return ratelimit.CheckResult{}, err
	}

	if global != nil {
		if result := global.Check(info); !result.Allowed {
			return result, nil
		}
	}
	return provider.Check(info), nil
}

// AdmitterFor returns an AdmitFunc bound to one provider, suitable as a
// queue's admitter.
func (m *Manager) AdmitterFor(providerID string) queue.AdmitFunc {
	return func(ctx context.Context, info RequestInfo) error {
		return m.Acquire(ctx, providerID, info)
	}
}

// ProviderStatus reports the remaining capacity for one provider.
func (m *Manager) ProviderStatus(providerID string) (ratelimit.Status, error) {
	m.mu.RLock()
	limiter, ok := m.providers[providerID]
	m.mu.RUnlock()

	if !ok {
		return ratelimit.Status{}, &UnknownProviderError{Provider: providerID}
	}
	return limiter.Status(), nil
}

// GlobalStatus reports the global limiter's remaining capacity. The second
// return is false when no global limits are configured.
func (m *Manager) GlobalStatus() (ratelimit.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.global == nil {
		return ratelimit.Status{}, false
	}
	return m.global.Status(), true
}

// AllStatuses reports remaining capacity for every registered provider.
func (m *Manager) AllStatuses() map[string]ratelimit.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]ratelimit.Status, len(m.providers))
	for id, limiter := range m.providers {
		statuses[id] = limiter.Status()
	}
	return statuses
}

// limitersFor snapshots the limiters involved in one acquisition.
func (m *Manager) limitersFor(providerID string) (global, provider *ratelimit.Limiter, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	provider, ok := m.providers[providerID]
	if !ok {
		return nil, nil, &UnknownProviderError{Provider: providerID}
	}
	return m.global, provider, nil
}

// rejected emits the rejection side channel and audit record.
func (m *Manager) rejected(ctx context.Context, providerID string, info RequestInfo, scope string, err error) {
	var dimension ratelimit.Dimension
	var rlErr *ratelimit.RateLimitError
	if errors.As(err, &rlErr) {
		dimension = rlErr.Dimension
	}

	m.events.AdmissionRejected(providerID, info, scope, dimension)
	m.logger.Debug("admission rejected",
		"provider", providerID,
		"request_id", info.ID,
		"scope", scope,
		"error", err,
	)
	m.record(ctx, providerID, info, false, err.Error())
}

// record persists the decision when a recorder is installed. Best effort.
func (m *Manager) record(ctx context.Context, providerID string, info RequestInfo, allowed bool, reason string) {
	if m.recorder == nil {
		return
	}

	decision := &history.Decision{
		Timestamp:       time.Now(),
		Provider:        providerID,
		RequestID:       info.ID,
		UserID:          info.UserID,
		Allowed:         allowed,
		Reason:          reason,
		EstimatedTokens: info.EstimatedTokens,
	}
	if err := m.recorder.Record(ctx, decision); err != nil {
		m.logger.Warn("failed to record admission decision",
			"provider", providerID,
			"request_id", info.ID,
			"error", err,
		)
	}
}
