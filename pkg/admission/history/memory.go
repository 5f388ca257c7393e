package history

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements Backend with a bounded in-memory ring. This is
// the default backend: fast, no persistence, all data lost at process exit.
//
// When the ring is full the oldest decision is overwritten.
//
// MemoryBackend is thread-safe using sync.RWMutex.
type MemoryBackend struct {
	mu        sync.RWMutex
	decisions []*Decision // ring buffer, nil slots unused
	head      int         // next write position
	size      int         // live entries
	closed    bool
}

// DefaultMemoryCapacity is the ring size used by NewMemoryBackend.
const DefaultMemoryCapacity = 10000

// NewMemoryBackend creates a memory backend with the default capacity.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithCapacity(DefaultMemoryCapacity)
}

// NewMemoryBackendWithCapacity creates a memory backend holding at most
// capacity decisions.
func NewMemoryBackendWithCapacity(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryBackend{
		decisions: make([]*Decision, capacity),
	}
}

// Record implements Backend.
func (m *MemoryBackend) Record(ctx context.Context, decision *Decision) error {
	if err := ctx.Err(); err != nil {
		return newStorageError("memory", "record", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return newStorageError("memory", "record", errClosed)
	}

	m.decisions[m.head] = decision
	m.head = (m.head + 1) % len(m.decisions)
	if m.size < len(m.decisions) {
		m.size++
	}
	return nil
}

// List implements Backend.
func (m *MemoryBackend) List(ctx context.Context, provider string, since time.Time) ([]*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, newStorageError("memory", "list", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, newStorageError("memory", "list", errClosed)
	}

	var out []*Decision
	// Walk backwards from the newest entry so results come newest first.
	for i := 0; i < m.size; i++ {
		idx := (m.head - 1 - i + len(m.decisions)) % len(m.decisions)
		d := m.decisions[idx]
		if d == nil || d.Timestamp.Before(since) {
			continue
		}
		if provider != "" && d.Provider != provider {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Cleanup implements Backend.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, newStorageError("memory", "cleanup", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, newStorageError("memory", "cleanup", errClosed)
	}

	deleted := 0
	kept := make([]*Decision, 0, m.size)
	for i := 0; i < m.size; i++ {
		idx := (m.head - m.size + i + len(m.decisions)) % len(m.decisions)
		d := m.decisions[idx]
		if d == nil {
			continue
		}
		if d.Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}

	// Rebuild the ring from the survivors, oldest first.
	m.decisions = make([]*Decision, cap(m.decisions))
	copy(m.decisions, kept)
	m.size = len(kept)
	m.head = len(kept) % len(m.decisions)

	return deleted, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
