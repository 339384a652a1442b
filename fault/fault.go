// Package fault tracks whether a previous run ended in an uncaught
// failure. The state is a single flag in durable storage: present means
// Faulted, absent means Healthy. The flag is set by top-level error
// boundaries, consulted at boot, and cleared only by an explicit
// recovery that first purges every cache tier.
package fault

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/NitishJha0207/holdfast/kv"
)

// flagKey is the durable storage key holding the fault flag.
const flagKey = "fault:marked"

// Purger clears every cache tier. Satisfied by purge.Purger.
type Purger interface {
	ClearAll(ctx context.Context)
}

// Manager owns the persisted Healthy/Faulted flag. All methods are safe
// for concurrent use and none of them propagate storage errors: a flag
// that cannot be written is logged and dropped, a flag that cannot be
// read counts as Healthy.
type Manager struct {
	store  kv.Store
	logger *zap.Logger
	writes *rate.Limiter
}

// New creates a Manager over the given durable store. A nil logger
// disables logging.
func New(store kv.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		// Error boundaries can fire in storms; after a burst of three
		// writes further marks are dropped to one per second.
		writes: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Mark persists the Faulted state. It never fails: write errors are
// logged and swallowed, and rapid repeat marks are rate-limited away.
func (m *Manager) Mark(ctx context.Context) {
	if !m.writes.Allow() {
		return
	}
	if err := m.store.Set(ctx, flagKey, []byte("1")); err != nil {
		m.logger.Error("fault flag write failed", zap.Error(err))
	}
}

// Faulted reports whether the flag is set. An absent or unreadable flag
// counts as Healthy.
func (m *Manager) Faulted(ctx context.Context) bool {
	_, ok, err := m.store.Get(ctx, flagKey)
	if err != nil {
		m.logger.Error("fault flag read failed", zap.Error(err))
		return false
	}
	return ok
}

// Recover checks the flag and, when set, purges every cache tier and
// clears it. It reports whether recovery ran. Callers that receive true
// must treat in-memory state from before the call as stale.
func (m *Manager) Recover(ctx context.Context, p Purger) bool {
	if !m.Faulted(ctx) {
		return false
	}

	m.logger.Info("faulted run detected, purging caches")
	p.ClearAll(ctx)

	if err := m.store.Delete(ctx, flagKey); err != nil {
		// Recovery still counts; the next boot will purge again.
		m.logger.Error("fault flag clear failed", zap.Error(err))
	}
	return true
}
