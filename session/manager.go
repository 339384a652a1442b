package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// defaultRenewEvery is the fixed background renewal interval. There is
// no backoff: a failed tick is simply retried at the next one.
const defaultRenewEvery = 5 * time.Minute

// Config holds the Manager parameters.
type Config struct {
	// Backend is the auth service to validate against. Required.
	Backend Backend

	// Store holds the durable session copy. Required.
	Store *Store

	// Logger receives every swallowed failure. Nil disables logging.
	Logger *zap.Logger

	// Metrics, when set, counts validation and renewal outcomes.
	Metrics *Metrics

	// TracerProvider supplies the tracer for validate/renew spans.
	// When nil the global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// RenewEvery overrides the renewal interval. Zero means the
	// five-minute default.
	RenewEvery time.Duration
}

// Manager orchestrates session validation, recovery from the durable
// copy, and scheduled background renewal. It owns the observable State
// and is the only writer to it.
//
// Validate and the renewal task are deliberately not serialized against
// each other; overlapping backend calls may interleave and the last
// committed result wins. What is guarded is the boundary between
// establishing and destroying: Clear and terminal failures advance an
// epoch counter so a result produced by a call from before the bump
// cannot resurrect a cleared session, and commits advance a counter of
// their own so a terminal failure from before the latest commit cannot
// destroy the session that superseded it.
type Manager struct {
	backend    Backend
	store      *Store
	state      *State
	logger     *zap.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	renewEvery time.Duration

	mu      sync.Mutex
	epoch   uint64
	commits uint64
	cancel  context.CancelFunc // renewal task slot, single

	tickFunc func(d time.Duration) (<-chan time.Time, func()) // for testing; defaults to time.Ticker
}

// NewManager creates a Manager. It does not start anything: the renewal
// task is scheduled by the first committed session.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	renewEvery := cfg.RenewEvery
	if renewEvery <= 0 {
		renewEvery = defaultRenewEvery
	}
	return &Manager{
		backend:    cfg.Backend,
		store:      cfg.Store,
		state:      NewState(),
		logger:     logger,
		metrics:    cfg.Metrics,
		tracer:     tp.Tracer("github.com/NitishJha0207/holdfast/session"),
		renewEvery: renewEvery,
	}
}

// State returns the observable session state. Mutation stays with the
// Manager; callers read snapshots or subscribe.
func (m *Manager) State() *State { return m.state }

// Validate establishes the session: it asks the backend for the live
// session, falls back to the durable copy, and commits whatever it
// obtains. It reports whether a session is established and never
// returns an error; failures land in the observable state. IsLoading is
// true for exactly the duration of the call.
func (m *Manager) Validate(ctx context.Context) bool {
	ctx, span := m.tracer.Start(ctx, "session.validate")
	defer span.End()

	epoch, commits := m.stamp()
	m.state.setLoading(true)
	defer m.state.setLoading(false)

	cur, err := m.backend.Current(ctx)
	if err != nil {
		return m.validateFailed(ctx, span, epoch, commits, err)
	}
	if cur != nil {
		if !m.commit(ctx, cur, epoch) {
			return m.validateStale(span)
		}
		span.SetAttributes(attribute.String("outcome", "live"))
		m.metrics.validation("live")
		return true
	}

	// The backend knows of no session; try the durable copy.
	rec, ok, err := m.store.Recover(ctx)
	if err != nil {
		m.logger.Error("session recovery read failed", zap.Error(err))
	}
	if !ok {
		span.SetAttributes(attribute.String("outcome", "none"))
		m.metrics.validation("none")
		return false
	}

	adopted, err := m.adopt(ctx, rec)
	if err != nil {
		return m.validateFailed(ctx, span, epoch, commits, err)
	}
	if !m.commit(ctx, adopted, epoch) {
		return m.validateStale(span)
	}
	span.SetAttributes(attribute.String("outcome", "recovered"))
	m.metrics.validation("recovered")
	return true
}

// Clear is the logout path: cancel the renewal task, remove the durable
// copy, empty the observable state. Results of backend calls that
// started before Clear are discarded when they arrive.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.stopLocked()

	// The wipe must land even when the caller has already given up.
	if err := m.store.Wipe(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("session wipe failed", zap.Error(err))
	}
	m.state.reset()
	m.metrics.teardown()
}

// Stop cancels the renewal task without touching stored or observable
// state. For process shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// validateFailed routes a backend error: always recorded, and when it
// is a terminal token failure the session is torn down.
func (m *Manager) validateFailed(ctx context.Context, span trace.Span, epoch, commits uint64, err error) bool {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if IsInvalidToken(err) {
		m.teardown(ctx, epoch, commits, err)
		span.SetAttributes(attribute.String("outcome", "terminal"))
		m.metrics.validation("terminal")
		return false
	}
	m.state.fail(err)
	span.SetAttributes(attribute.String("outcome", "transient"))
	m.metrics.validation("transient")
	return false
}

func (m *Manager) validateStale(span trace.Span) bool {
	span.SetAttributes(attribute.String("outcome", "stale"))
	m.metrics.validation("stale")
	return false
}

// adopt pushes a recovered record to the backend under its own span.
func (m *Manager) adopt(ctx context.Context, rec *Record) (*Record, error) {
	ctx, span := m.tracer.Start(ctx, "session.adopt")
	defer span.End()

	adopted, err := m.backend.Adopt(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return adopted, nil
}

// commit makes r the established session: durable copy, observable
// state, renewal schedule. It refuses when the epoch moved, meaning a
// Clear or teardown happened after the call that produced r started.
func (m *Manager) commit(ctx context.Context, r *Record, epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		m.logger.Info("discarding session result from before teardown")
		return false
	}
	if err := m.store.Persist(ctx, r); err != nil {
		// The in-memory session still counts; only recovery after a
		// restart is lost.
		m.logger.Error("session persist failed", zap.Error(err))
	}
	m.state.setSession(r)
	m.commits++
	m.scheduleLocked()
	return true
}

// teardown wipes every trace of the session, recording err in the
// observable state so consumers can tell why it vanished. A stale epoch
// or commit count is a no-op: a late terminal error must not destroy a
// session established after the fact. Holding the lock across the wipe
// serializes it against commit's persist.
func (m *Manager) teardown(ctx context.Context, epoch, commits uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || commits != m.commits {
		m.logger.Info("discarding stale teardown")
		return
	}
	m.epoch++
	m.stopLocked()

	// When the failure came from the renewal task, stopLocked has just
	// cancelled ctx itself; the wipe runs detached so it still lands.
	if werr := m.store.Wipe(context.WithoutCancel(ctx)); werr != nil {
		m.logger.Error("session wipe failed", zap.Error(werr))
	}
	m.state.drop(err)
	m.metrics.teardown()
}

// scheduleLocked (re)starts the renewal task, cancelling any previous
// one first. Must be called with m.mu held.
func (m *Manager) scheduleLocked() {
	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	ticks, stop := m.ticker(m.renewEvery)
	go m.renewLoop(ctx, ticks, stop, m.epoch, m.commits)
}

// stopLocked cancels the renewal task slot. Must be called with m.mu
// held.
func (m *Manager) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) renewLoop(ctx context.Context, ticks <-chan time.Time, stop func(), epoch, commits uint64) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			// A tick can race the cancel; re-check before acting.
			if ctx.Err() != nil {
				return
			}
			m.renewOnce(ctx, epoch, commits)
		}
	}
}

// renewOnce is one renewal tick: confirm the backend still has a
// session, refresh it, and re-commit, which also extends the durable
// expiry. A terminal token failure tears the session down; any other
// failure is logged and left for the next tick.
func (m *Manager) renewOnce(ctx context.Context, epoch, commits uint64) {
	ctx, span := m.tracer.Start(ctx, "session.renew")
	defer span.End()

	cur, err := m.backend.Current(ctx)
	if err != nil {
		m.logger.Error("renewal skipped, session read failed", zap.Error(err))
		span.RecordError(err)
		m.metrics.renewal("transient")
		return
	}
	if cur == nil {
		m.metrics.renewal("skipped")
		return
	}

	fresh, err := m.backend.Refresh(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsInvalidToken(err) {
			m.teardown(ctx, epoch, commits, err)
			m.metrics.renewal("terminal")
			return
		}
		m.logger.Error("renewal failed, retrying next tick", zap.Error(err))
		m.metrics.renewal("transient")
		return
	}

	if m.commit(ctx, fresh, epoch) {
		m.metrics.renewal("renewed")
	} else {
		m.metrics.renewal("stale")
	}
}

// stamp captures both guard counters at the start of an operation whose
// completion may commit or tear down.
func (m *Manager) stamp() (epoch, commits uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch, m.commits
}

func (m *Manager) ticker(d time.Duration) (<-chan time.Time, func()) {
	if m.tickFunc != nil {
		return m.tickFunc(d)
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
