package quota

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	decisions          *prometheus.CounterVec
	heals              *prometheus.CounterVec
	eventClearFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quota",
			Name:      "decisions_total",
			Help:      "Admission checks by result and denial reason.",
		}, []string{"result", "reason"}),
		heals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quota",
			Name:      "heals_total",
			Help:      "Windows reinitialised on read because an entry was missing.",
		}, []string{"window"}),
		eventClearFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quota",
			Name:      "event_clear_failures_total",
			Help:      "Resets whose event store cleanup failed.",
		}),
	}
	if reg == nil {
		return m
	}

	m.decisions = register(reg, m.decisions)
	m.heals = register(reg, m.heals)
	m.eventClearFailures = register(reg, m.eventClearFailures)
	return m
}

// register adds c to reg, reusing an identical collector that is already
// registered so several trackers can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
