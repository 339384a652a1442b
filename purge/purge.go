// Package purge implements the cache invalidation coordinator. One call
// clears every tier that can hold cached data: the in-memory stores,
// the namespaced keys in each kv tier, the worker bus, and the named
// response caches. Every step is best-effort; the coordinator logs
// failures and keeps going.
package purge

import (
	"context"

	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/kv"
)

// Clearer is an in-memory cache that can drop everything at once.
// Satisfied by cache.Store.
type Clearer interface {
	Clear()
}

// Announcer broadcasts an invalidation to background workers, no reply
// expected. Satisfied by bus.Publisher.
type Announcer interface {
	Announce(ctx context.Context) error
}

// CacheRegistry enumerates and deletes named response caches.
// Satisfied by respcache.Registry.
type CacheRegistry interface {
	Names() []string
	Delete(ctx context.Context, name string) error
}

// Config wires the tiers a Purger covers. Any field may be left empty;
// the corresponding step is skipped.
type Config struct {
	// Memory holds the in-memory cache stores, cleared first.
	Memory []Clearer

	// Tiers are the kv stores that may hold namespaced cache entries.
	Tiers []kv.Store

	// Namespace is the key prefix the caches own inside the kv tiers.
	// Only keys under it are deleted.
	Namespace string

	// Bus, when set, receives one fire-and-forget invalidate message.
	Bus Announcer

	// Caches, when set, is the response-cache registry to empty.
	Caches CacheRegistry

	// Logger receives every swallowed failure. Nil disables logging.
	Logger *zap.Logger
}

// Purger fans one ClearAll out to every configured tier.
type Purger struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Purger.
func New(cfg Config) *Purger {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{cfg: cfg, logger: logger}
}

// ClearAll empties every tier. It never fails and never panics: each
// step is independently guarded, failures are logged, and calling it
// again on an already-empty system is a cheap no-op.
func (p *Purger) ClearAll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic during cache purge contained", zap.Any("panic", r))
		}
	}()

	for _, c := range p.cfg.Memory {
		c.Clear()
	}

	for _, tier := range p.cfg.Tiers {
		p.purgeTier(ctx, tier)
	}

	if p.cfg.Bus != nil {
		if err := p.cfg.Bus.Announce(ctx); err != nil {
			p.logger.Error("invalidate broadcast failed", zap.Error(err))
		}
	}

	if p.cfg.Caches != nil {
		for _, name := range p.cfg.Caches.Names() {
			// One failed delete must not stop the rest.
			if err := p.cfg.Caches.Delete(ctx, name); err != nil {
				p.logger.Error("response cache delete failed",
					zap.String("cache", name), zap.Error(err))
			}
		}
	}
}

// purgeTier deletes every namespaced key from one kv tier.
func (p *Purger) purgeTier(ctx context.Context, tier kv.Store) {
	keys, err := tier.Keys(ctx, p.cfg.Namespace)
	if err != nil {
		p.logger.Error("cache key enumeration failed", zap.Error(err))
		return
	}
	for _, key := range keys {
		if err := tier.Delete(ctx, key); err != nil {
			p.logger.Error("cache key delete failed",
				zap.String("key", key), zap.Error(err))
		}
	}
}
