package quota

import (
	"context"
	"fmt"
	"time"
)

// EnsureInitialized reinitialises window w with limit when any of its
// limit, used or remaining entries is missing, and reports whether it did.
// Healing always uses the window's default TTL.
func (h Handle) EnsureInitialized(ctx context.Context, w Window, limit int64) (bool, error) {
	if err := h.bound(); err != nil {
		return false, err
	}
	if !w.valid() {
		return false, fmt.Errorf("%w: %d", ErrUnknownWindow, int(w))
	}
	if err := checkLimits(limit); err != nil {
		return false, err
	}
	return h.ensure(ctx, w, limit)
}

func (h Handle) ensure(ctx context.Context, w Window, limit int64) (bool, error) {
	base := h.Key(w)
	for _, key := range []string{base, base + usedSuffix, base + remainingSuffix} {
		ok, err := h.t.store.Has(ctx, key)
		if err != nil {
			return false, fmt.Errorf("quota: check %s: %w", key, err)
		}
		if !ok {
			return true, h.heal(ctx, w, limit)
		}
	}
	return false, nil
}

func (h Handle) heal(ctx context.Context, w Window, limit int64) error {
	if err := h.initWindow(ctx, h.Key(w), limit, w.Duration()); err != nil {
		return err
	}
	h.t.metrics.heals.WithLabelValues(w.String()).Inc()
	h.log().Debug().Stringer("window", w).Int64("limit", limit).Msg("quota window healed")
	return nil
}

// Remaining returns what is left of window w. If the window's entries are
// missing (never created, or expired) they are first recreated with limit
// as the ceiling, so the caller must pass the limit it currently applies.
func (h Handle) Remaining(ctx context.Context, w Window, limit int64) (int64, error) {
	if _, err := h.EnsureInitialized(ctx, w, limit); err != nil {
		return 0, err
	}

	key := h.Key(w) + remainingSuffix
	v, ok, err := h.t.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("quota: read %s: %w", key, err)
	}
	if !ok {
		// Expired between the presence check and the read.
		if err := h.heal(ctx, w, limit); err != nil {
			return 0, err
		}
		return limit, nil
	}
	return v, nil
}

// WindowUsage is a point-in-time view of one window.
type WindowUsage struct {
	Initialized bool // all three entries present
	Limit       int64
	Used        int64
	Remaining   int64
}

// Usage is a point-in-time view of both windows of a subject.
type Usage struct {
	Subject        string
	Minute         WindowUsage
	Month          WindowUsage
	MonthExpiresAt time.Time // zero when unknown
}

// Usage reads both windows without healing anything.
func (h Handle) Usage(ctx context.Context) (Usage, error) {
	if err := h.bound(); err != nil {
		return Usage{}, err
	}

	u := Usage{Subject: h.subject}
	var err error
	if u.Minute, err = h.windowUsage(ctx, Minute); err != nil {
		return Usage{}, err
	}
	if u.Month, err = h.windowUsage(ctx, Month); err != nil {
		return Usage{}, err
	}

	at, ok, err := h.t.store.Get(ctx, h.monthKey+expiredAtSuffix)
	if err != nil {
		return Usage{}, fmt.Errorf("quota: usage: %w", err)
	}
	if ok {
		u.MonthExpiresAt = time.Unix(at, 0)
	}
	return u, nil
}

func (h Handle) windowUsage(ctx context.Context, w Window) (WindowUsage, error) {
	base := h.Key(w)
	var wu WindowUsage
	present := 0
	for _, f := range []struct {
		key string
		dst *int64
	}{
		{base, &wu.Limit},
		{base + usedSuffix, &wu.Used},
		{base + remainingSuffix, &wu.Remaining},
	} {
		v, ok, err := h.t.store.Get(ctx, f.key)
		if err != nil {
			return WindowUsage{}, fmt.Errorf("quota: usage %s: %w", f.key, err)
		}
		if ok {
			*f.dst = v
			present++
		}
	}
	wu.Initialized = present == 3
	return wu, nil
}
