package keycache

import (
	"context"
	"sync"
	"time"
)

// Clock provides time for expiry checks.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

type memoryEntry struct {
	sessionKey string
	expiresAt  time.Time
}

// Memory is an in-process cache for tests and single-instance runs.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]memoryEntry
	clock Clock
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithClock overrides the clock.
func WithClock(clock Clock) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemory constructs an in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	cache := &Memory{
		data:  make(map[string]memoryEntry),
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Get returns the cached session key for serial, if present and unexpired.
func (m *Memory) Get(ctx context.Context, serial string) (string, bool, error) {
	_ = ctx
	if serial == "" {
		return "", false, nil
	}
	m.mu.RLock()
	entry, ok := m.data[serial]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !m.clock.Now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.data, serial)
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.sessionKey, true, nil
}

// Set stores the session key for serial.
func (m *Memory) Set(ctx context.Context, serial, sessionKey string, ttl time.Duration) error {
	_ = ctx
	if serial == "" || sessionKey == "" {
		return nil
	}
	entry := memoryEntry{sessionKey: sessionKey}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[serial] = entry
	m.mu.Unlock()
	return nil
}
