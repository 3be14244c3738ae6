package quota

import (
	"errors"
	"fmt"
)

var (
	// ErrUnboundSubject is returned by operations on a Handle that was not
	// obtained from Tracker.Bind, or when binding an empty subject.
	ErrUnboundSubject = errors.New("quota: no subject bound")

	// ErrInvalidLimit is returned for negative limits. Nothing is written.
	ErrInvalidLimit = errors.New("quota: invalid limit")

	// ErrInvalidExpiry is returned when a bound month expiry is not in the
	// future at the time the window is written.
	ErrInvalidExpiry = errors.New("quota: expiry must be in the future")

	// ErrUnknownWindow is returned for a window other than Minute or Month.
	ErrUnknownWindow = errors.New("quota: unknown window")

	// ErrLimitExceeded is wrapped by LimitExceededError.
	ErrLimitExceeded = errors.New("quota: limit exceeded")
)

// LimitExceededError describes a denied admission check for callers that
// prefer to treat denials as errors. See Decision.Err.
type LimitExceededError struct {
	Subject         string
	Reason          Reason
	MinuteRemaining int64
	MonthRemaining  int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("quota: %s for %s (minute %d, month %d)",
		e.Reason, e.Subject, e.MinuteRemaining, e.MonthRemaining)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}

func checkLimits(limits ...int64) error {
	for _, l := range limits {
		if l < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidLimit, l)
		}
	}
	return nil
}
