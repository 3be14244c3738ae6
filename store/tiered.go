package store

import (
	"context"
	"time"
)

// DefaultCacheTTL bounds how long a TieredStore serves a value from memory
// before going back to the persistent store.
const DefaultCacheTTL = time.Second

// Compile-time interface check.
var _ Store = (*TieredStore)(nil)

// TieredStore wraps an in-memory store (fast path) with a persistent backend
// (durable path). Puts go to both stores (write-through); Get checks memory
// first and falls back to the persistent store on a miss. Cached values live
// for at most the cache TTL, so other writers to the persistent store become
// visible to Get after that delay. Has and the counter operations always go
// to the persistent store.
type TieredStore struct {
	memory     *MemoryStore
	persistent Store
	cacheTTL   time.Duration
}

// NewTieredStore creates a TieredStore backed by the given persistent store.
// An internal MemoryStore is created automatically. A cacheTTL of zero
// selects DefaultCacheTTL.
func NewTieredStore(persistent Store, cacheTTL time.Duration) *TieredStore {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &TieredStore{
		memory:     NewMemoryStore(),
		persistent: persistent,
		cacheTTL:   cacheTTL,
	}
}

// SetClock replaces the time source of the cache tier.
func (t *TieredStore) SetClock(now func() time.Time) {
	t.memory.SetClock(now)
}

// cacheFor caps ttl at the cache TTL.
func (t *TieredStore) cacheFor(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > t.cacheTTL {
		return t.cacheTTL
	}
	return ttl
}

// Get reads from memory first. On a miss it falls back to the persistent
// store and backfills memory.
func (t *TieredStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if v, ok, _ := t.memory.Get(ctx, key); ok {
		return v, true, nil
	}

	v, ok, err := t.persistent.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	t.memory.Put(ctx, key, v, t.cacheTTL)
	return v, true, nil
}

// Put writes through to the persistent backend, then caches the value.
func (t *TieredStore) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := t.persistent.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	t.memory.Put(ctx, key, value, t.cacheFor(ttl))
	return nil
}

// Has asks the persistent store. A cached copy may outlive the persistent
// key by up to the cache TTL, and presence is what decides whether a window
// is rebuilt.
func (t *TieredStore) Has(ctx context.Context, key string) (bool, error) {
	ok, err := t.persistent.Has(ctx, key)
	if err != nil || !ok {
		t.memory.Delete(ctx, key)
	}
	return ok, err
}

// Increment is applied by the persistent store. The cached copy is dropped
// rather than refreshed because its expiry is unknown here.
func (t *TieredStore) Increment(ctx context.Context, key string) (int64, bool, error) {
	t.memory.Delete(ctx, key)
	return t.persistent.Increment(ctx, key)
}

// Decrement is the counterpart of Increment.
func (t *TieredStore) Decrement(ctx context.Context, key string) (int64, bool, error) {
	t.memory.Delete(ctx, key)
	return t.persistent.Decrement(ctx, key)
}

// Delete removes the key from both stores.
func (t *TieredStore) Delete(ctx context.Context, key string) error {
	t.memory.Delete(ctx, key)
	return t.persistent.Delete(ctx, key)
}

// Close closes the persistent backend. The in-memory store needs no cleanup.
func (t *TieredStore) Close() error {
	return t.persistent.Close()
}
