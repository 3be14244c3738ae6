package store

import (
	"context"
	"testing"
	"time"
)

func newTestTieredStore(t *testing.T) *TieredStore {
	t.Helper()
	persistent, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ts := NewTieredStore(persistent, 0)
	t.Cleanup(func() { ts.Close() })
	return ts
}

func TestTieredStorePersistentFallback(t *testing.T) {
	persistent, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer persistent.Close()

	ctx := context.Background()

	// Write data through a tiered store.
	ts1 := NewTieredStore(persistent, time.Minute)
	ts1.Put(ctx, "key", 0, time.Hour)
	ts1.Increment(ctx, "key")
	ts1.Increment(ctx, "key")
	ts1.Increment(ctx, "key")

	// Simulate memory loss by creating a new tiered store with the same
	// persistent backend but a fresh MemoryStore.
	ts2 := NewTieredStore(persistent, time.Minute)

	got, ok, err := ts2.Get(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != 3 {
		t.Errorf("persistent fallback: got %d ok=%v, want 3", got, ok)
	}
}

func TestTieredStoreCacheExpires(t *testing.T) {
	persistent := NewMemoryStore()
	ctx := context.Background()

	ts := NewTieredStore(persistent, time.Second)
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	ts.memory.now = func() time.Time { return now }

	ts.Put(ctx, "key", 1, time.Hour)

	// Another writer changes the persistent value behind the cache.
	persistent.Put(ctx, "key", 9, time.Hour)
	if got, _, _ := ts.Get(ctx, "key"); got != 1 {
		t.Errorf("cached read: got %d, want 1", got)
	}

	now = now.Add(2 * time.Second)
	if got, _, _ := ts.Get(ctx, "key"); got != 9 {
		t.Errorf("read after cache ttl: got %d, want 9", got)
	}
}

func TestTieredStoreDeleteBothTiers(t *testing.T) {
	persistent := NewMemoryStore()
	ctx := context.Background()
	ts := NewTieredStore(persistent, time.Minute)

	ts.Put(ctx, "key", 1, 0)
	ts.Delete(ctx, "key")

	if ok, _ := ts.Has(ctx, "key"); ok {
		t.Error("tiered Has = true after Delete")
	}
	if ok, _ := persistent.Has(ctx, "key"); ok {
		t.Error("persistent Has = true after Delete")
	}
}

func TestTieredStoreFollowsPersistentExpiry(t *testing.T) {
	persistent := NewMemoryStore()
	ctx := context.Background()
	ts := NewTieredStore(persistent, time.Minute)

	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	persistent.now, ts.memory.now = clock, clock

	ts.Put(ctx, "remaining", 5, 10*time.Second)
	now = now.Add(9 * time.Second)
	if got, ok, _ := ts.Decrement(ctx, "remaining"); !ok || got != 4 {
		t.Fatalf("Decrement = %d ok=%v, want 4", got, ok)
	}
	// Backfills the cache for the full cache TTL.
	if got, _, _ := ts.Get(ctx, "remaining"); got != 4 {
		t.Fatalf("Get = %d, want 4", got)
	}

	now = now.Add(2 * time.Second)
	if ok, _ := ts.Has(ctx, "remaining"); ok {
		t.Error("Has = true after the persistent key expired")
	}
	if _, ok, _ := ts.Decrement(ctx, "remaining"); ok {
		t.Error("Decrement reported a value for an expired key")
	}
	if ok, _ := persistent.Has(ctx, "remaining"); ok {
		t.Error("Decrement recreated the expired key without a TTL")
	}
}
