package quota

import (
	"fmt"
	"time"
)

// Window is one of the two quota periods tracked per subject.
type Window int

const (
	// Minute is the short window: one minute from initialisation.
	Minute Window = iota
	// Month is the long window: 30 days from initialisation unless the
	// binding carries an explicit expiry.
	Month
)

// DefaultMonthTTL is the month window length when no expiry is bound.
const DefaultMonthTTL = 30 * 24 * time.Hour

// Duration returns the default TTL of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Minute:
		return time.Minute
	case Month:
		return DefaultMonthTTL
	default:
		return time.Minute
	}
}

// String returns the window name used in store keys.
func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Month:
		return "month"
	default:
		return fmt.Sprintf("Window(%d)", int(w))
	}
}

func (w Window) valid() bool {
	return w == Minute || w == Month
}

// ParseWindow maps "minute" or "month" to its Window.
func ParseWindow(s string) (Window, error) {
	switch s {
	case "minute":
		return Minute, nil
	case "month":
		return Month, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
}

// BaseKey returns the store key holding the limit of subject's window.
// The used and remaining counters live at BaseKey+":used" and
// BaseKey+":remaining".
func BaseKey(subject string, w Window) string {
	return subject + ":limits:" + w.String()
}

const (
	usedSuffix      = ":used"
	remainingSuffix = ":remaining"
	expiredAtSuffix = ":expiredAt"
)
