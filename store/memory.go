package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Compile-time interface checks.
var (
	_ Store    = (*MemoryStore)(nil)
	_ Consumer = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Counters are lost on process restart.
// Expired keys are dropped lazily when touched.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// lookup returns the live entry for key. Caller must hold m.mu.
func (m *MemoryStore) lookup(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

// Get returns the value stored at key.
func (m *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	return e.value, ok, nil
}

// Put stores value at key with the given ttl (zero for no expiry).
func (m *MemoryStore) Put(_ context.Context, key string, value int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Has reports whether key holds a live value.
func (m *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}

// Increment atomically adds one to the value at key.
func (m *MemoryStore) Increment(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.add(key, 1)
	return v, ok, nil
}

// Decrement atomically subtracts one from the value at key.
func (m *MemoryStore) Decrement(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.add(key, -1)
	return v, ok, nil
}

// add applies delta to a live key keeping its expiry. Caller must hold m.mu.
func (m *MemoryStore) add(key string, delta int64) (int64, bool) {
	e, ok := m.lookup(key)
	if !ok {
		return 0, false
	}
	e.value += delta
	m.entries[key] = e
	return e.value, true
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Consume checks and updates all counters under a single lock.
func (m *MemoryStore) Consume(_ context.Context, counters []Counter) (Consumed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Consumed{Remaining: make([]int64, len(counters)), Blocked: -1}
	for i, c := range counters {
		_, hasUsed := m.lookup(c.UsedKey)
		e, hasRemaining := m.lookup(c.RemainingKey)
		res.Remaining[i] = e.value
		if res.Blocked >= 0 {
			continue
		}
		switch {
		case !hasUsed || !hasRemaining:
			res.Blocked, res.Missing = i, true
		case e.value <= 0:
			res.Blocked = i
		}
	}
	if !res.Applied() {
		return res, nil
	}

	for i, c := range counters {
		m.add(c.UsedKey, 1)
		res.Remaining[i], _ = m.add(c.RemainingKey, -1)
	}
	return res, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
