package quota

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ryhazerus/quota/store"
)

// Response headers set by the middleware on every checked request.
const (
	HeaderMinuteRemaining = "X-RateLimit-Remaining-Minute"
	HeaderMonthRemaining  = "X-RateLimit-Remaining-Month"
)

// ResolveFunc extracts the subject and its limits from a request. Returning
// ok=false skips the quota check for that request.
type ResolveFunc func(r *http.Request) (subject string, minuteLimit, monthLimit int64, ok bool)

// Middleware returns HTTP middleware that runs Hit for every request that
// resolve accepts. Denied requests get 429 under the Block strategy; store
// failures get 503.
func (t *Tracker) Middleware(resolve ResolveFunc, strategy Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, minuteLimit, monthLimit, ok := resolve(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h, err := t.Bind(subject)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			d, err := h.Hit(r.Context(), minuteLimit, monthLimit)
			if err != nil {
				t.logger.Error().Err(err).Str("subject", subject).Msg("quota check failed")
				status := http.StatusInternalServerError
				if errors.Is(err, store.ErrUnavailable) {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			w.Header().Set(HeaderMinuteRemaining, strconv.FormatInt(max(d.MinuteRemaining, 0), 10))
			w.Header().Set(HeaderMonthRemaining, strconv.FormatInt(max(d.MonthRemaining, 0), 10))

			if !d.Allowed {
				if strategy == LogOnly {
					t.logger.Warn().Str("subject", subject).Str("reason", string(d.Reason)).Msg("quota exceeded, letting request through")
					next.ServeHTTP(w, r)
					return
				}
				if d.Reason == ReasonMinuteExceeded {
					w.Header().Set("Retry-After", "60")
				}
				http.Error(w, string(d.Reason), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
