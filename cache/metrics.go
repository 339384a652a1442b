package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts cache activity, labeled by store name so the four
// instances stay distinguishable on one registry.
type Metrics struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	expirations *prometheus.CounterVec
}

// NewMetrics creates and registers the cache counters. A nil registerer
// falls back to the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_cache_hits_total",
				Help: "Cache lookups that returned a live entry.",
			},
			[]string{"store"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_cache_misses_total",
				Help: "Cache lookups that found nothing.",
			},
			[]string{"store"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_cache_evictions_total",
				Help: "Entries evicted to make room at capacity.",
			},
			[]string{"store"},
		),
		expirations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdfast_cache_expirations_total",
				Help: "Entries dropped on access because their TTL had passed.",
			},
			[]string{"store"},
		),
	}
	reg.MustRegister(m.hits, m.misses, m.evictions, m.expirations)
	return m
}

func (m *Metrics) hit(store string) {
	if m != nil {
		m.hits.WithLabelValues(store).Inc()
	}
}

func (m *Metrics) miss(store string) {
	if m != nil {
		m.misses.WithLabelValues(store).Inc()
	}
}

func (m *Metrics) eviction(store string) {
	if m != nil {
		m.evictions.WithLabelValues(store).Inc()
	}
}

func (m *Metrics) expiration(store string) {
	if m != nil {
		m.expirations.WithLabelValues(store).Inc()
	}
}
