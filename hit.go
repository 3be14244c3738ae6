package quota

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ryhazerus/quota/store"
)

// Reason explains a denied admission check.
type Reason string

const (
	// ReasonMonthExceeded is reported whenever the month window is exhausted,
	// even if the minute window is exhausted too.
	ReasonMonthExceeded Reason = "month quota exceeded"
	// ReasonMinuteExceeded is reported when only the minute window is exhausted.
	ReasonMinuteExceeded Reason = "minute quota exceeded"
)

// Decision is the outcome of Hit. A denial is a normal result, not an error.
//
// For a denial the remaining values are those observed before the check,
// and nothing was consumed. For an admission they are the values after one
// unit was taken from each window.
type Decision struct {
	Subject         string
	Allowed         bool
	Reason          Reason // empty when Allowed
	MinuteRemaining int64
	MonthRemaining  int64
}

// Err returns nil for an admission and a *LimitExceededError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitExceededError{
		Subject:         d.Subject,
		Reason:          d.Reason,
		MinuteRemaining: d.MinuteRemaining,
		MonthRemaining:  d.MonthRemaining,
	}
}

// Hit performs one admission check against both windows and, when admitted,
// consumes one unit from each. Missing windows are healed with the given
// limits first. Month exhaustion is checked before minute exhaustion.
//
// With a plain Store the four counter updates are independent, so
// concurrent hits for one subject may briefly drive remaining below zero.
// If the store implements store.Consumer the re-check and the updates
// happen in one atomic step instead. On both paths a window that expires
// between the check and the update is healed and consumed once more rather
// than recreated without its TTL.
func (h Handle) Hit(ctx context.Context, minuteLimit, monthLimit int64) (Decision, error) {
	if err := h.bound(); err != nil {
		return Decision{}, err
	}
	if err := checkLimits(minuteLimit, monthLimit); err != nil {
		return Decision{}, err
	}

	month, err := h.Remaining(ctx, Month, monthLimit)
	if err != nil {
		return Decision{}, err
	}
	minute, err := h.Remaining(ctx, Minute, minuteLimit)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Subject: h.subject, MinuteRemaining: minute, MonthRemaining: month}
	switch {
	case month <= 0:
		d.Reason = ReasonMonthExceeded
	case minute <= 0:
		d.Reason = ReasonMinuteExceeded
	default:
		if c, ok := h.t.store.(store.Consumer); ok {
			d, err = h.consumeAtomic(ctx, c, minuteLimit, monthLimit)
		} else {
			d, err = h.consume(ctx, minuteLimit, monthLimit)
		}
		if err != nil {
			return Decision{}, err
		}
	}

	h.record(d)
	return d, nil
}

// errWindowVanished is returned when a window disappears again right after
// being healed, which only a store dropping keys early can cause.
func errWindowVanished(w Window) error {
	return fmt.Errorf("quota: %s window vanished twice during one hit", w)
}

// consume takes one unit from the minute window, then the month window.
func (h Handle) consume(ctx context.Context, minuteLimit, monthLimit int64) (Decision, error) {
	d := Decision{Subject: h.subject, Allowed: true}
	var err error
	if d.MinuteRemaining, err = h.consumeWindow(ctx, Minute, minuteLimit); err != nil {
		return Decision{}, err
	}
	if d.MonthRemaining, err = h.consumeWindow(ctx, Month, monthLimit); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// consumeWindow increments used and decrements remaining for w. If either
// entry is gone, the window is healed and the update applied to the fresh
// window instead.
func (h Handle) consumeWindow(ctx context.Context, w Window, limit int64) (int64, error) {
	s := h.t.store
	base := h.Key(w)
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := h.heal(ctx, w, limit); err != nil {
				return 0, err
			}
		}
		_, ok, err := s.Increment(ctx, base+usedSuffix)
		if err != nil {
			return 0, fmt.Errorf("quota: consume %s: %w", base+usedSuffix, err)
		}
		if !ok {
			continue
		}
		v, ok, err := s.Decrement(ctx, base+remainingSuffix)
		if err != nil {
			return 0, fmt.Errorf("quota: consume %s: %w", base+remainingSuffix, err)
		}
		if ok {
			return v, nil
		}
	}
	return 0, errWindowVanished(w)
}

// consumeAtomic orders month before minute so the store reports month
// exhaustion first, matching the non-atomic checks.
func (h Handle) consumeAtomic(ctx context.Context, c store.Consumer, minuteLimit, monthLimit int64) (Decision, error) {
	windows := []struct {
		w     Window
		limit int64
	}{{Month, monthLimit}, {Minute, minuteLimit}}
	counters := make([]store.Counter, len(windows))
	for i, win := range windows {
		base := h.Key(win.w)
		counters[i] = store.Counter{UsedKey: base + usedSuffix, RemainingKey: base + remainingSuffix}
	}

	var res store.Consumed
	for attempt := 0; ; attempt++ {
		var err error
		if res, err = c.Consume(ctx, counters); err != nil {
			return Decision{}, fmt.Errorf("quota: consume: %w", err)
		}
		if !res.Missing {
			break
		}
		w := windows[res.Blocked]
		if attempt > 0 {
			return Decision{}, errWindowVanished(w.w)
		}
		if err := h.heal(ctx, w.w, w.limit); err != nil {
			return Decision{}, err
		}
	}

	d := Decision{Subject: h.subject, MonthRemaining: res.Remaining[0], MinuteRemaining: res.Remaining[1]}
	switch res.Blocked {
	case -1:
		d.Allowed = true
	case 0:
		d.Reason = ReasonMonthExceeded
	default:
		d.Reason = ReasonMinuteExceeded
	}
	return d, nil
}

func (h Handle) record(d Decision) {
	result := "admitted"
	if !d.Allowed {
		result = "denied"
	}
	h.t.metrics.decisions.WithLabelValues(result, string(d.Reason)).Inc()

	l := h.log()
	var ev *zerolog.Event
	if d.Allowed {
		ev = l.Debug()
	} else {
		ev = l.Info().Str("reason", string(d.Reason))
	}
	ev.Bool("allowed", d.Allowed).
		Int64("minute_remaining", d.MinuteRemaining).
		Int64("month_remaining", d.MonthRemaining).
		Msg("quota checked")
}
