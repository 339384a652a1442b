package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts validation and renewal outcomes.
type Metrics struct {
	validations *prometheus.CounterVec
	renewals    *prometheus.CounterVec
	teardowns   prometheus.Counter
}

// NewMetrics creates and registers the session counters. A nil
// registerer falls back to the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_session_validations_total",
				Help: "Validate calls by outcome.",
			},
			[]string{"outcome"},
		),
		renewals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_session_renewals_total",
				Help: "Background renewal ticks by outcome.",
			},
			[]string{"outcome"},
		),
		teardowns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "holdfast_session_teardowns_total",
				Help: "Sessions removed by Clear or terminal auth failures.",
			},
		),
	}
	reg.MustRegister(m.validations, m.renewals, m.teardowns)
	return m
}

func (m *Metrics) validation(outcome string) {
	if m != nil {
		m.validations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) renewal(outcome string) {
	if m != nil {
		m.renewals.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) teardown() {
	if m != nil {
		m.teardowns.Inc()
	}
}
