package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is wrapped by store implementations when the backend fails
// to answer (I/O error, timeout, closed connection).
var ErrUnavailable = errors.New("quota/store: unavailable")

// Store defines the key/value counter backend used by the quota tracker.
// Every method operates on a single key and must be atomic for that key.
// Multi-key atomicity is not part of the contract; see [Consumer].
type Store interface {
	// Get returns the integer stored at key. ok is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)

	// Put stores value at key. A zero ttl means the key never expires.
	Put(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Has reports whether key is present and not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Increment atomically adds one to an existing key and returns the new
	// value, keeping the key's TTL. An absent or expired key is left absent
	// and ok is false, so a counter is never recreated without its TTL.
	Increment(ctx context.Context, key string) (value int64, ok bool, err error)

	// Decrement atomically subtracts one from an existing key. Same rules
	// as Increment.
	Decrement(ctx context.Context, key string) (value int64, ok bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Counter names the pair of keys that make up one consumable quota.
type Counter struct {
	UsedKey      string
	RemainingKey string
}

// Consumed is the result of Consumer.Consume.
type Consumed struct {
	// Remaining holds, per counter, the value after the update when it was
	// applied, or the value as read when it was not (0 for a missing key).
	Remaining []int64
	// Blocked is the index of the first counter that prevented the update,
	// or -1 when it was applied.
	Blocked int
	// Missing is true when the blocking counter has an absent used or
	// remaining key, as opposed to a remaining value that is not positive.
	Missing bool
}

// Applied reports whether every counter was consumed.
func (c Consumed) Applied() bool {
	return c.Blocked < 0
}

// Consumer is implemented by stores that can consume one unit from several
// counters in a single atomic step.
//
// Consume checks the counters in order. The first one whose used or
// remaining key is absent, or whose remaining value is not positive, blocks
// the update and nothing is written. Otherwise every used key is
// incremented and every remaining key decremented, keeping their TTLs.
type Consumer interface {
	Consume(ctx context.Context, counters []Counter) (Consumed, error)
}

// EventStore holds raw usage events and their aggregations for a subject.
// The tracker only ever clears it.
type EventStore interface {
	DeleteAllForSubject(ctx context.Context, subject string) error
}
