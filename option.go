package quota

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/ryhazerus/quota/store"
)

// Option configures the Tracker.
type Option func(*Tracker)

// WithStore sets the backing store for quota counters.
// If not provided, an in-memory store is used by default.
func WithStore(s store.Store) Option {
	return func(t *Tracker) {
		t.store = s
	}
}

// WithEventStore sets the event store cleared by Reset. Without one, Reset
// only reinitialises the counters.
func WithEventStore(es store.EventStore) Option {
	return func(t *Tracker) {
		t.events = es
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithRegisterer registers the tracker's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(t *Tracker) {
		t.registerer = reg
	}
}

// WithClock overrides time.Now, used to turn a bound expiry into a TTL.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// BindOption configures a Handle at bind time.
type BindOption func(*Handle)

// WithExpiry replaces the default 30-day month window with one ending at
// the given instant for Create, Reset and Update.
func WithExpiry(at time.Time) BindOption {
	return func(h *Handle) {
		h.expiry = at
	}
}
