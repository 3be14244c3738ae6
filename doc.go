// Package quota provides per-subject rate limiting against two independent
// windows: a one-minute window and a 30-day ("month") window. Both are
// tracked as plain counters in a key/value [store.Store] with per-key expiry.
//
// # Key Concepts
//
//   - A subject is whoever is being limited: a user ID, an API key.
//   - A [Window] is either [Minute] or [Month]. Windows are fixed-expiry
//     buckets: they start when written and vanish when their TTL lapses.
//   - Each subject and window owns a quota record made of three keys:
//     "<subject>:limits:<window>" holds the limit, and the ":used" and
//     ":remaining" suffixes hold the counters.
//   - A [Handle] is a [Tracker] bound to one subject. Handles are values;
//     create one per request.
//   - [Handle.Hit] is the admission check. A denial is returned as a
//     [Decision], never as an error.
//
// Reading a window whose entries are missing recreates it with the limit
// the caller passes, so no provisioning step is needed before the first
// [Handle.Hit].
//
// # Quick Start
//
//	tracker := quota.New()
//	h, err := tracker.Bind("user-42")
//	if err != nil {
//		return err
//	}
//	d, err := h.Hit(ctx, 60, 10000)
//	if err != nil {
//		return err
//	}
//	if !d.Allowed {
//		log.Println(d.Reason)
//	}
//
// See the [Tracker] documentation for the full API.
package quota
