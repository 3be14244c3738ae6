package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/ryhazerus/quota/store"
)

// Tracker is the main entry point. It holds the shared store and settings;
// per-subject state lives in the Handle returned by Bind, so one Tracker
// can serve concurrent requests for any number of subjects.
type Tracker struct {
	store      store.Store
	events     store.EventStore
	logger     zerolog.Logger
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time
}

// New creates a new Tracker with the given options.
// If no store is provided, an in-memory store is used.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.store == nil {
		t.store = store.NewMemoryStore()
	}
	t.metrics = newMetrics(t.registerer)
	return t
}

// Close releases resources held by the tracker's store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

// Handle is a Tracker bound to one subject. It is an immutable value that
// is cheap to create per request. The zero Handle is unbound and every
// operation on it fails with ErrUnboundSubject.
type Handle struct {
	t         *Tracker
	subject   string
	minuteKey string
	monthKey  string
	expiry    time.Time
}

// Bind returns a Handle for subject. It derives the store keys and does not
// touch the store.
func (t *Tracker) Bind(subject string, opts ...BindOption) (Handle, error) {
	if subject == "" {
		return Handle{}, ErrUnboundSubject
	}
	h := Handle{
		t:         t,
		subject:   subject,
		minuteKey: BaseKey(subject, Minute),
		monthKey:  BaseKey(subject, Month),
	}
	for _, o := range opts {
		o(&h)
	}
	return h, nil
}

// Subject returns the bound subject identifier.
func (h Handle) Subject() string {
	return h.subject
}

// Key returns the base store key of window w for the bound subject.
func (h Handle) Key(w Window) string {
	if w == Month {
		return h.monthKey
	}
	return h.minuteKey
}

func (h Handle) bound() error {
	if h.t == nil || h.subject == "" {
		return ErrUnboundSubject
	}
	return nil
}

func (h Handle) log() *zerolog.Logger {
	l := h.t.logger.With().Str("subject", h.subject).Logger()
	return &l
}

// monthTTL is the lifetime of a freshly written month window.
func (h Handle) monthTTL() (time.Duration, error) {
	if h.expiry.IsZero() {
		return DefaultMonthTTL, nil
	}
	ttl := h.expiry.Sub(h.t.now())
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidExpiry, h.expiry.Format(time.RFC3339))
	}
	return ttl, nil
}

// initWindow writes a fresh quota record: the limit without expiry, and
// used=0, remaining=limit with ttl.
func (h Handle) initWindow(ctx context.Context, base string, limit int64, ttl time.Duration) error {
	s := h.t.store
	if err := s.Put(ctx, base, limit, 0); err != nil {
		return fmt.Errorf("quota: init %s: %w", base, err)
	}
	if err := s.Put(ctx, base+usedSuffix, 0, ttl); err != nil {
		return fmt.Errorf("quota: init %s: %w", base, err)
	}
	if err := s.Put(ctx, base+remainingSuffix, limit, ttl); err != nil {
		return fmt.Errorf("quota: init %s: %w", base, err)
	}
	return nil
}

// Create initialises both windows: the minute window for one minute and
// the month window until the bound expiry (30 days by default). The month
// expiry is also recorded as unix seconds under the month key + ":expiredAt".
func (h Handle) Create(ctx context.Context, minuteLimit, monthLimit int64) error {
	if err := h.bound(); err != nil {
		return err
	}
	if err := checkLimits(minuteLimit, monthLimit); err != nil {
		return err
	}
	ttl, err := h.monthTTL()
	if err != nil {
		return err
	}
	return h.create(ctx, minuteLimit, monthLimit, ttl)
}

func (h Handle) create(ctx context.Context, minuteLimit, monthLimit int64, ttl time.Duration) error {
	if err := h.initWindow(ctx, h.minuteKey, minuteLimit, Minute.Duration()); err != nil {
		return err
	}
	if err := h.initWindow(ctx, h.monthKey, monthLimit, ttl); err != nil {
		return err
	}
	expiredAt := h.t.now().Add(ttl).Unix()
	if err := h.t.store.Put(ctx, h.monthKey+expiredAtSuffix, expiredAt, ttl); err != nil {
		return fmt.Errorf("quota: record expiry: %w", err)
	}

	h.log().Debug().
		Int64("minute_limit", minuteLimit).
		Int64("month_limit", monthLimit).
		Dur("month_ttl", ttl).
		Msg("quota windows initialised")
	return nil
}

// Update changes both limits without discarding month consumption. The
// minute window restarts with its full new limit. The month window keeps
// its used count and expiry; remaining becomes monthLimit - used, floored
// at zero.
func (h Handle) Update(ctx context.Context, minuteLimit, monthLimit int64) error {
	if err := h.bound(); err != nil {
		return err
	}
	if err := checkLimits(minuteLimit, monthLimit); err != nil {
		return err
	}

	s := h.t.store
	used, _, err := s.Get(ctx, h.monthKey+usedSuffix)
	if err != nil {
		return fmt.Errorf("quota: update: %w", err)
	}

	var ttl time.Duration
	expiredAt, ok, err := s.Get(ctx, h.monthKey+expiredAtSuffix)
	if err != nil {
		return fmt.Errorf("quota: update: %w", err)
	}
	if ok {
		ttl = time.Unix(expiredAt, 0).Sub(h.t.now())
	}
	recordExpiry := !ok || ttl <= 0
	if recordExpiry {
		if ttl, err = h.monthTTL(); err != nil {
			return err
		}
	}

	if err := h.initWindow(ctx, h.minuteKey, minuteLimit, Minute.Duration()); err != nil {
		return err
	}

	remaining := monthLimit - used
	if remaining < 0 {
		remaining = 0
	}
	if err := s.Put(ctx, h.monthKey, monthLimit, 0); err != nil {
		return fmt.Errorf("quota: update: %w", err)
	}
	if err := s.Put(ctx, h.monthKey+usedSuffix, used, ttl); err != nil {
		return fmt.Errorf("quota: update: %w", err)
	}
	if err := s.Put(ctx, h.monthKey+remainingSuffix, remaining, ttl); err != nil {
		return fmt.Errorf("quota: update: %w", err)
	}
	if recordExpiry {
		if err := s.Put(ctx, h.monthKey+expiredAtSuffix, h.t.now().Add(ttl).Unix(), ttl); err != nil {
			return fmt.Errorf("quota: record expiry: %w", err)
		}
	}

	h.log().Debug().
		Int64("minute_limit", minuteLimit).
		Int64("month_limit", monthLimit).
		Int64("month_used", used).
		Int64("month_remaining", remaining).
		Msg("quota limits updated")
	return nil
}

// Reset clears the subject's events in the event store, if one is set, and
// reinitialises both windows like Create. A failing event store is logged
// and does not stop the reset.
func (h Handle) Reset(ctx context.Context, minuteLimit, monthLimit int64) error {
	if err := h.bound(); err != nil {
		return err
	}
	if err := checkLimits(minuteLimit, monthLimit); err != nil {
		return err
	}
	ttl, err := h.monthTTL()
	if err != nil {
		return err
	}

	if h.t.events != nil {
		if err := h.t.events.DeleteAllForSubject(ctx, h.subject); err != nil {
			h.t.metrics.eventClearFailures.Inc()
			h.log().Warn().Err(err).Msg("clearing subject events failed, resetting quota anyway")
		}
	}

	return h.create(ctx, minuteLimit, monthLimit, ttl)
}
