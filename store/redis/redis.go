// Package redis provides a Redis-backed quota counter store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/quota/store"
)

// Compile-time interface checks.
var (
	_ store.Store    = (*Store)(nil)
	_ store.Consumer = (*Store)(nil)
)

// Store is a Store backed by Redis. Each quota entry is a plain Redis
// integer; TTLs map onto Redis key expiry so windows roll over server-side.
type Store struct {
	client redis.Cmdable
	prefix string
}

// New creates a new Redis-backed store. Keys are written under prefix
// (for example "quota:"); an empty prefix stores them verbatim.
func New(client redis.Cmdable, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", store.ErrUnavailable, op, err)
}

// Get returns the integer stored at key.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get", err)
	}
	return v, true, nil
}

// Put stores value at key. A zero ttl keeps the key forever.
func (s *Store) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// addScript applies INCRBY only to an existing key, so an expired counter
// is never recreated without its TTL. INCRBY keeps the existing TTL.
var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return false
end
return redis.call("INCRBY", KEYS[1], ARGV[1])
`)

func (s *Store) add(ctx context.Context, op, key string, delta int64) (int64, bool, error) {
	v, err := addScript.Run(ctx, s.client, []string{s.key(key)}, delta).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(op, err)
	}
	return v, true, nil
}

// Increment adds one to an existing key.
func (s *Store) Increment(ctx context.Context, key string) (int64, bool, error) {
	return s.add(ctx, "incr", key, 1)
}

// Decrement subtracts one from an existing key.
func (s *Store) Decrement(ctx context.Context, key string) (int64, bool, error) {
	return s.add(ctx, "decr", key, -1)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// consumeScript checks every counter in order and, only when all are
// present with a positive remaining value, increments the used keys and
// decrements the remaining keys.
//
// KEYS = used1, remaining1, used2, remaining2, ...
// Returns {blocked (1-based, 0 when applied), missing (0 or 1), value1, value2, ...}
var consumeScript = redis.NewScript(`
local n = #KEYS / 2
local values = {}
local blocked = 0
local missing = 0
for i = 1, n do
    local used = redis.call("EXISTS", KEYS[2 * i - 1])
    local v = redis.call("GET", KEYS[2 * i])
    if v == false then
        v = 0
        if blocked == 0 then blocked = i; missing = 1 end
    else
        v = tonumber(v)
        if blocked == 0 then
            if used == 0 then
                blocked = i; missing = 1
            elseif v <= 0 then
                blocked = i
            end
        end
    end
    values[i] = v
end
if blocked == 0 then
    for i = 1, n do
        redis.call("INCR", KEYS[2 * i - 1])
        values[i] = redis.call("DECR", KEYS[2 * i])
    end
end
local out = {blocked, missing}
for i = 1, n do
    out[i + 2] = values[i]
end
return out
`)

// Consume applies one unit to every counter atomically via a Lua script.
func (s *Store) Consume(ctx context.Context, counters []store.Counter) (store.Consumed, error) {
	keys := make([]string, 0, 2*len(counters))
	for _, c := range counters {
		keys = append(keys, s.key(c.UsedKey), s.key(c.RemainingKey))
	}

	out, err := consumeScript.Run(ctx, s.client, keys).Int64Slice()
	if err != nil {
		return store.Consumed{}, unavailable("consume", err)
	}
	if len(out) != len(counters)+2 {
		return store.Consumed{}, fmt.Errorf("quota/store/redis: consume returned %d values, want %d", len(out), len(counters)+2)
	}

	return store.Consumed{
		Remaining: out[2:],
		Blocked:   int(out[0]) - 1,
		Missing:   out[1] == 1,
	}, nil
}

// Close closes the underlying client when it owns a connection pool.
func (s *Store) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
