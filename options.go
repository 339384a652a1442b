package holdfast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/bus"
	"github.com/NitishJha0207/holdfast/kv"
	"github.com/NitishJha0207/holdfast/respcache"
	"github.com/NitishJha0207/holdfast/session"
)

// Option configures a Client.
type Option func(*config)

// WithLogger routes the layer's swallowed failures and lifecycle events
// to l. Without it nothing is logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDurableTier sets the kv store that keeps session, fault and cache
// state across restarts. Required.
func WithDurableTier(s kv.Store) Option {
	return func(c *config) {
		c.durable = s
	}
}

// WithEphemeralTier adds an in-process kv tier that is purged alongside
// the durable one.
func WithEphemeralTier(s kv.Store) Option {
	return func(c *config) {
		c.ephemeral = s
	}
}

// WithBackend sets the auth service the session manager validates
// against. Required.
func WithBackend(b session.Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithBus announces cache invalidations to background workers through p.
func WithBus(p *bus.Publisher) Option {
	return func(c *config) {
		c.bus = p
	}
}

// WithResponseCaches includes a response cache registry in ClearAll
// coverage and exposes it via [Client.ResponseCaches].
func WithResponseCaches(r *respcache.Registry) Option {
	return func(c *config) {
		c.caches = r
	}
}

// WithMetrics registers the cache and session counters on reg. When reg
// can also gather (a *prometheus.Registry can), [Client.MetricsHandler]
// serves from it.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithTracerProvider sets the provider for the session manager's spans.
// Defaults to the otel global.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracer = tp
	}
}

// WithRenewEvery overrides the background session renewal interval.
func WithRenewEvery(d time.Duration) Option {
	return func(c *config) {
		c.renewEvery = d
	}
}

// WithCacheTTL overrides the shared entry lifetime of the four caches.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = ttl
	}
}

// WithCacheSizes overrides the capacities of the four caches.
func WithCacheSizes(pages, data, assets, records int) Option {
	return func(c *config) {
		c.pagesMax = pages
		c.dataMax = data
		c.assetsMax = assets
		c.recordsMax = records
	}
}
