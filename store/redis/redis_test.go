package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ryhazerus/quota"
	"github.com/ryhazerus/quota/store"
)

func newTestRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, "quota:")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStoreGetPut(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("initial get: ok=%v err=%v, want absent", ok, err)
	}
	if err := s.Put(ctx, "k", 42, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || got != 42 {
		t.Errorf("get = %d ok=%v err=%v, want 42", got, ok, err)
	}

	// Keys are namespaced by the prefix.
	if !mr.Exists("quota:k") {
		t.Error("expected key quota:k in redis")
	}
	if ttl := mr.TTL("quota:k"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	s.Put(ctx, "ttl", 5, time.Minute)
	s.Put(ctx, "forever", 5, 0)
	s.Increment(ctx, "ttl")

	mr.FastForward(59 * time.Second)
	if got, ok, _ := s.Get(ctx, "ttl"); !ok || got != 6 {
		t.Fatalf("before expiry: got %d ok=%v, want 6", got, ok)
	}

	mr.FastForward(time.Second)
	if ok, _ := s.Has(ctx, "ttl"); ok {
		t.Error("key still present after ttl")
	}
	if ok, _ := s.Has(ctx, "forever"); !ok {
		t.Error("key without ttl expired")
	}
}

func TestRedisStoreIncrementDecrement(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.Put(ctx, "used", 0, time.Minute)
	for i := int64(1); i <= 3; i++ {
		got, ok, err := s.Increment(ctx, "used")
		if err != nil {
			t.Fatal(err)
		}
		if !ok || got != i {
			t.Errorf("increment %d: got %d ok=%v, want %d", i, got, ok, i)
		}
	}

	s.Put(ctx, "remaining", 1, time.Minute)
	for _, want := range []int64{0, -1} {
		if got, _, _ := s.Decrement(ctx, "remaining"); got != want {
			t.Errorf("decrement: got %d, want %d", got, want)
		}
	}
}

func TestRedisStoreCountersSkipExpiredKeys(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	s.Put(ctx, "remaining", 3, time.Minute)
	mr.FastForward(time.Minute)

	if _, ok, err := s.Decrement(ctx, "remaining"); err != nil || ok {
		t.Errorf("Decrement expired: ok=%v err=%v, want not ok", ok, err)
	}
	if mr.Exists("quota:remaining") {
		t.Error("Decrement recreated an expired key")
	}
}

func TestRedisStoreDelete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	s.Put(ctx, "k", 1, 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Has(ctx, "k"); ok {
		t.Error("Has = true after Delete")
	}
}

func TestRedisStoreConsume(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	s.Put(ctx, "a:remaining", 2, time.Minute)
	s.Put(ctx, "a:used", 0, time.Minute)
	s.Put(ctx, "b:remaining", 1, time.Minute)
	s.Put(ctx, "b:used", 0, time.Minute)
	counters := []store.Counter{
		{UsedKey: "a:used", RemainingKey: "a:remaining"},
		{UsedKey: "b:used", RemainingKey: "b:remaining"},
	}

	res, err := s.Consume(ctx, counters)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied() || res.Remaining[0] != 1 || res.Remaining[1] != 0 {
		t.Fatalf("first consume = %+v; want applied with [1 0]", res)
	}
	if ttl := mr.TTL("quota:a:used"); ttl != time.Minute {
		t.Errorf("a:used ttl = %v after consume, want 1m", ttl)
	}

	res, err = s.Consume(ctx, counters)
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked != 1 || res.Missing || res.Remaining[0] != 1 || res.Remaining[1] != 0 {
		t.Fatalf("second consume = %+v; want blocked by exhausted counter 1", res)
	}
	if used, _, _ := s.Get(ctx, "a:used"); used != 1 {
		t.Errorf("a:used = %d after denied consume, want 1", used)
	}

	mr.FastForward(time.Minute)
	res, err = s.Consume(ctx, counters)
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked != 0 || !res.Missing {
		t.Errorf("consume after expiry = %+v; want missing counter 0", res)
	}
	if mr.Exists("quota:a:used") || mr.Exists("quota:a:remaining") {
		t.Error("denied consume recreated expired keys")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	_, _, err := s.Increment(context.Background(), "k")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestTrackerOnRedis(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	tr := quota.New(quota.WithStore(s))

	h, err := tr.Bind("api-key-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Create(ctx, 2, 10); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("quota:api-key-1:limits:minute:used"); ttl != time.Minute {
		t.Errorf("minute ttl = %v, want 1m", ttl)
	}
	if mr.TTL("quota:api-key-1:limits:minute") != 0 {
		t.Error("limit entry should not expire")
	}

	for i := 0; i < 2; i++ {
		if d, err := h.Hit(ctx, 2, 10); err != nil || !d.Allowed {
			t.Fatalf("hit %d = %+v, %v", i+1, d, err)
		}
	}
	d, err := h.Hit(ctx, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if d.Reason != quota.ReasonMinuteExceeded {
		t.Fatalf("decision = %+v, want minute denial", d)
	}

	// The minute window expires server-side and heals on the next hit.
	mr.FastForward(time.Minute)
	d, err = h.Hit(ctx, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.MinuteRemaining != 1 || d.MonthRemaining != 7 {
		t.Errorf("after rollover = %+v, want admitted with 1/7", d)
	}
}
