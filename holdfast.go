// Package holdfast is a client-side resilience core for a storefront
// client: bounded versioned caches, a persisted crash-fault flag with a
// recovery protocol, durable session persistence, a validating and
// self-renewing session manager, and one coordinator that purges every
// cache tier at once.
//
// A Client is assembled from functional [Option] values:
//
//	store, err := kv.OpenBolt(path)
//	...
//	client, err := holdfast.New(
//		holdfast.WithDurableTier(store),
//		holdfast.WithBackend(backend),
//		holdfast.WithLogger(logger),
//	)
//	...
//	recovered, ok := client.Boot(ctx)
//
// Boot applies the startup contract: fault recovery runs before
// anything else reads the caches, and session validation runs after.
// When recovery reports true the host should rebuild its in-memory
// world before serving; state built before the purge may be stale.
package holdfast

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/cache"
	"github.com/NitishJha0207/holdfast/fault"
	"github.com/NitishJha0207/holdfast/kv"
	"github.com/NitishJha0207/holdfast/purge"
	"github.com/NitishJha0207/holdfast/respcache"
	"github.com/NitishJha0207/holdfast/session"
)

// Client bundles the resilience layer: four versioned caches sharing
// one keyspace, the kv tiers behind them, the fault manager, the
// session manager and the purge coordinator.
//
// The kv tiers passed in via options stay owned by the caller, who
// closes them after [Client.Stop].
type Client struct {
	logger     *zap.Logger
	registerer prometheus.Registerer

	keyspace *cache.Keyspace
	pages    *cache.Store
	data     *cache.Store
	assets   *cache.Store
	records  *cache.Store

	tiers    []kv.Store
	faults   *fault.Manager
	sessions *session.Manager
	purger   *purge.Purger
	registry *respcache.Registry
}

// New creates a Client by applying the supplied functional [Option]
// values. A durable kv tier and a session backend are required;
// everything else has defaults (see defaults.go).
func New(opts ...Option) (*Client, error) {
	cfg := config{
		cacheTTL:   DefaultCacheTTL,
		pagesMax:   DefaultPagesMax,
		dataMax:    DefaultDataMax,
		assetsMax:  DefaultAssetsMax,
		recordsMax: DefaultRecordsMax,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.durable == nil {
		return nil, errors.New("holdfast: a durable tier is required")
	}
	if cfg.backend == nil {
		return nil, errors.New("holdfast: a session backend is required")
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var cacheMetrics *cache.Metrics
	var sessionMetrics *session.Metrics
	if cfg.registerer != nil {
		cacheMetrics = cache.NewMetrics(cfg.registerer)
		sessionMetrics = session.NewMetrics(cfg.registerer)
	}

	ks := cache.NewKeyspace()
	mkStore := func(name string, max int) *cache.Store {
		return cache.New(cache.Config{
			Name:       name,
			MaxEntries: max,
			TTL:        cfg.cacheTTL,
			Keyspace:   ks,
			Metrics:    cacheMetrics,
		})
	}

	c := &Client{
		logger:     logger,
		registerer: cfg.registerer,
		keyspace:   ks,
		pages:      mkStore("pages", cfg.pagesMax),
		data:       mkStore("data", cfg.dataMax),
		assets:     mkStore("assets", cfg.assetsMax),
		records:    mkStore("records", cfg.recordsMax),
		registry:   cfg.caches,
	}
	c.tiers = append(c.tiers, cfg.durable)
	if cfg.ephemeral != nil {
		c.tiers = append(c.tiers, cfg.ephemeral)
	}

	pcfg := purge.Config{
		Memory:    []purge.Clearer{c.pages, c.data, c.assets, c.records},
		Tiers:     c.tiers,
		Namespace: cache.Namespace,
		Logger:    logger,
	}
	if cfg.bus != nil {
		pcfg.Bus = cfg.bus
	}
	if cfg.caches != nil {
		pcfg.Caches = cfg.caches
	}
	c.purger = purge.New(pcfg)

	c.faults = fault.New(cfg.durable, logger)
	c.sessions = session.NewManager(session.Config{
		Backend:        cfg.backend,
		Store:          session.NewStore(cfg.durable, logger),
		Logger:         logger,
		Metrics:        sessionMetrics,
		TracerProvider: cfg.tracer,
		RenewEvery:     cfg.renewEvery,
	})
	return c, nil
}

// Boot runs the startup contract. Fault recovery comes first: when the
// fault flag is set, every cache tier is purged, the cache version is
// advanced and the flag is cleared. Session validation runs after.
//
// recovered reports whether fault recovery ran; the host should rebuild
// any in-memory state it built before Boot. validated reports whether a
// session is established.
func (c *Client) Boot(ctx context.Context) (recovered, validated bool) {
	recovered = c.faults.Recover(ctx, c.purger)
	if recovered {
		c.keyspace.Bump()
	}
	validated = c.sessions.Validate(ctx)
	return recovered, validated
}

// ClearAll invalidates every cache tier. The shared version is advanced
// first, so entries written under the old version can never be read
// again even if a purge step fails; then the coordinator clears the
// memory stores, the kv tiers, the worker bus and the response caches,
// best-effort. It never fails.
func (c *Client) ClearAll(ctx context.Context) {
	c.keyspace.Bump()
	c.purger.ClearAll(ctx)
}

// Stop cancels the background session renewal task. Stored state is
// untouched; the next Boot picks the session back up.
func (c *Client) Stop() {
	c.sessions.Stop()
}

// Pages returns the page markup cache.
func (c *Client) Pages() *cache.Store { return c.pages }

// Data returns the API payload cache.
func (c *Client) Data() *cache.Store { return c.data }

// Assets returns the media asset cache.
func (c *Client) Assets() *cache.Store { return c.assets }

// Records returns the domain record cache.
func (c *Client) Records() *cache.Store { return c.records }

// Keyspace returns the version counter shared by the four caches.
func (c *Client) Keyspace() *cache.Keyspace { return c.keyspace }

// Sessions returns the session manager.
func (c *Client) Sessions() *session.Manager { return c.sessions }

// Faults returns the fault manager.
func (c *Client) Faults() *fault.Manager { return c.faults }

// ResponseCaches returns the response cache registry, or nil when none
// was configured.
func (c *Client) ResponseCaches() *respcache.Registry { return c.registry }

// MetricsHandler returns an http.Handler that serves Prometheus
// metrics. When the Client was built with [WithMetrics] and the
// registerer can gather, its metrics are served; otherwise the default
// registry is.
func (c *Client) MetricsHandler() http.Handler {
	if g, ok := c.registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
