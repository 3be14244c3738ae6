package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSQLiteEventStore(t *testing.T) {
	es, err := NewSQLiteEventStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer es.Close()

	ctx := context.Background()
	day := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := es.Record(ctx, "alice", "request", day.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	es.Record(ctx, "alice", "request", day.Add(24*time.Hour))
	es.Record(ctx, "bob", "request", day)

	if n, _ := es.Count(ctx, "alice"); n != 4 {
		t.Errorf("alice events = %d, want 4", n)
	}
	if n, _ := es.Aggregate(ctx, "alice", "request", day); n != 3 {
		t.Errorf("alice aggregate = %d, want 3", n)
	}

	if err := es.DeleteAllForSubject(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if n, _ := es.Count(ctx, "alice"); n != 0 {
		t.Errorf("alice events after delete = %d, want 0", n)
	}
	if n, err := es.Aggregate(ctx, "alice", "request", day); err != nil || n != 0 {
		t.Errorf("alice aggregate after delete = %d, %v; want 0, nil", n, err)
	}
	if n, _ := es.Count(ctx, "bob"); n != 1 {
		t.Errorf("bob events = %d, want 1", n)
	}
}

func TestSQLiteEventStoreClosedIsUnavailable(t *testing.T) {
	es, err := NewSQLiteEventStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	es.Close()

	ctx := context.Background()
	if _, err := es.Aggregate(ctx, "alice", "request", time.Now()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Aggregate err = %v, want ErrUnavailable", err)
	}
	if err := es.DeleteAllForSubject(ctx, "alice"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("DeleteAllForSubject err = %v, want ErrUnavailable", err)
	}
}
