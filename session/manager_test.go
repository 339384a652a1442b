package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NitishJha0207/holdfast/kv"
)

// fakeBackend is a scriptable Backend. Return values are configured per
// operation; optional gates let tests hold a call in flight.
type fakeBackend struct {
	mu           sync.Mutex
	current      *Record
	currentErr   error
	adopted      *Record
	adoptErr     error
	refreshed    *Record
	refreshErr   error
	currentCalls int
	adoptCalls   int
	refreshCalls int

	currentEntered chan struct{} // receives when Current is called, when set
	currentGate    chan struct{} // Current blocks on it, when set
}

func (b *fakeBackend) Current(context.Context) (*Record, error) {
	b.mu.Lock()
	b.currentCalls++
	cur, err := b.current, b.currentErr
	entered, gate := b.currentEntered, b.currentGate
	b.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if cur == nil {
		return nil, err
	}
	r := *cur
	return &r, err
}

func (b *fakeBackend) Adopt(_ context.Context, r *Record) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adoptCalls++
	if b.adoptErr != nil {
		return nil, b.adoptErr
	}
	if b.adopted != nil {
		out := *b.adopted
		return &out, nil
	}
	out := *r
	return &out, nil
}

func (b *fakeBackend) Refresh(context.Context) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	out := *b.refreshed
	return &out, nil
}

func (b *fakeBackend) setCurrent(r *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = r
}

func (b *fakeBackend) counts() (current, adopt, refresh int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentCalls, b.adoptCalls, b.refreshCalls
}

// newTestManager builds a Manager over in-memory storage with a manual
// renewal ticker. tick() fires the task exactly once.
func newTestManager(t *testing.T, b Backend) (m *Manager, store *Store, tick func()) {
	t.Helper()

	store = NewStore(kv.NewMem(), nil)
	m = NewManager(Config{Backend: b, Store: store})
	t.Cleanup(m.Stop)

	var mu sync.Mutex
	var cur chan time.Time
	m.tickFunc = func(time.Duration) (<-chan time.Time, func()) {
		mu.Lock()
		defer mu.Unlock()
		cur = make(chan time.Time, 1)
		return cur, func() {}
	}
	tick = func() {
		mu.Lock()
		ch := cur
		mu.Unlock()
		if ch == nil {
			t.Fatal("no renewal task scheduled")
		}
		ch <- time.Time{}
	}
	return m, store, tick
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestValidateLiveSession(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{current: testRecord()}
	m, store, _ := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed with a live backend session")
	}

	snap := m.State().Snapshot()
	if snap.Session == nil || snap.Session.AccessToken != "at-123" {
		t.Fatalf("observable session = %+v, want at-123", snap.Session)
	}
	if snap.IsLoading {
		t.Fatal("IsLoading must be false after Validate returns")
	}

	// The session was persisted for the next boot.
	if _, ok, _ := store.Recover(ctx); !ok {
		t.Fatal("expected a durable copy after Validate")
	}
}

func TestValidateNoSessionAnywhere(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{}
	m, _, _ := newTestManager(t, b)

	if m.Validate(ctx) {
		t.Fatal("Validate should fail with no session anywhere")
	}
	snap := m.State().Snapshot()
	if snap.Session != nil || snap.Err != nil {
		t.Fatalf("snapshot = %+v, want empty without error", snap)
	}
}

func TestValidateRecoversPersistedSession(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{} // backend has no live session
	m, store, _ := newTestManager(t, b)

	if err := store.Persist(ctx, testRecord()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed via recovery")
	}
	if _, adopts, _ := b.counts(); adopts != 1 {
		t.Fatalf("Adopt called %d times, want 1", adopts)
	}
	snap := m.State().Snapshot()
	if snap.Session == nil || snap.Session.User.ID != "u-1" {
		t.Fatalf("observable session = %+v, want user u-1", snap.Session)
	}
}

func TestValidateAdoptRotatesTokens(t *testing.T) {
	ctx := t.Context()
	rotated := testRecord()
	rotated.AccessToken = "at-rotated"
	b := &fakeBackend{adopted: rotated}
	m, store, _ := newTestManager(t, b)

	if err := store.Persist(ctx, testRecord()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed via recovery")
	}

	// The backend's rotated record wins, in memory and on disk.
	if got := m.State().Snapshot().Session.AccessToken; got != "at-rotated" {
		t.Fatalf("observable token = %q, want at-rotated", got)
	}
	rec, ok, _ := store.Recover(ctx)
	if !ok || rec.AccessToken != "at-rotated" {
		t.Fatalf("durable token = %+v, want at-rotated", rec)
	}
}

func TestValidateTerminalErrorTearsDown(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{currentErr: fmt.Errorf("gateway: %w", ErrInvalidToken)}
	m, store, _ := newTestManager(t, b)

	if err := store.Persist(ctx, testRecord()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if m.Validate(ctx) {
		t.Fatal("Validate should fail on a terminal error")
	}

	snap := m.State().Snapshot()
	if snap.Session != nil {
		t.Fatal("session should be gone after terminal failure")
	}
	if !IsInvalidToken(snap.Err) {
		t.Fatalf("Err = %v, want an invalid-token error", snap.Err)
	}
	if _, ok, _ := store.Recover(ctx); ok {
		t.Fatal("durable copy should be wiped after terminal failure")
	}
}

func TestValidateAdoptTerminalWipesStore(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{adoptErr: fmt.Errorf("gateway: %w", ErrInvalidToken)}
	m, store, _ := newTestManager(t, b)

	if err := store.Persist(ctx, testRecord()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if m.Validate(ctx) {
		t.Fatal("Validate should fail when adoption is rejected")
	}
	if _, ok, _ := store.Recover(ctx); ok {
		t.Fatal("rejected session should be wiped")
	}
}

func TestValidateTransientErrorKeepsStore(t *testing.T) {
	ctx := t.Context()
	boom := errors.New("network down")
	b := &fakeBackend{adoptErr: boom}
	m, store, _ := newTestManager(t, b)

	if err := store.Persist(ctx, testRecord()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if m.Validate(ctx) {
		t.Fatal("Validate should fail on a transient error")
	}

	// Transient means retryable: the durable copy survives.
	if _, ok, _ := store.Recover(ctx); !ok {
		t.Fatal("durable copy should survive a transient failure")
	}
	if got := m.State().Snapshot().Err; !errors.Is(got, boom) {
		t.Fatalf("Err = %v, want %v", got, boom)
	}
}

func TestValidateSetsLoadingWhileInFlight(t *testing.T) {
	b := &fakeBackend{
		current:        testRecord(),
		currentEntered: make(chan struct{}, 1),
		currentGate:    make(chan struct{}),
	}
	m, _, _ := newTestManager(t, b)

	done := make(chan bool, 1)
	go func() { done <- m.Validate(context.Background()) }()

	<-b.currentEntered
	if !m.State().Snapshot().IsLoading {
		t.Fatal("IsLoading should be true while the backend call is in flight")
	}

	close(b.currentGate)
	if ok := <-done; !ok {
		t.Fatal("Validate should have succeeded")
	}
	if m.State().Snapshot().IsLoading {
		t.Fatal("IsLoading should be false after Validate returns")
	}
}

func TestClearDiscardsLateResult(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{
		current:        testRecord(),
		currentEntered: make(chan struct{}, 1),
		currentGate:    make(chan struct{}),
	}
	m, store, _ := newTestManager(t, b)

	done := make(chan bool, 1)
	go func() { done <- m.Validate(context.Background()) }()
	<-b.currentEntered

	// Logout while the backend call is still in flight.
	m.Clear(ctx)
	close(b.currentGate)

	if ok := <-done; ok {
		t.Fatal("a result from before Clear must be discarded")
	}
	if m.State().Snapshot().Session != nil {
		t.Fatal("discarded result leaked into observable state")
	}
	if _, ok, _ := store.Recover(ctx); ok {
		t.Fatal("discarded result leaked into durable storage")
	}
}

func TestLateTerminalErrorKeepsNewerSession(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{
		currentErr:     fmt.Errorf("gateway: %w", ErrInvalidToken),
		currentEntered: make(chan struct{}, 1),
		currentGate:    make(chan struct{}),
	}
	m, store, _ := newTestManager(t, b)

	done := make(chan bool, 1)
	go func() { done <- m.Validate(context.Background()) }()
	<-b.currentEntered

	// While the doomed call is held in flight, the backend comes back
	// and a second Validate establishes a fresh session.
	b.mu.Lock()
	gate := b.currentGate
	b.current, b.currentErr, b.currentGate = testRecord(), nil, nil
	b.mu.Unlock()
	if !m.Validate(ctx) {
		t.Fatal("second Validate should succeed")
	}

	close(gate)
	if ok := <-done; ok {
		t.Fatal("the stale call must still report failure")
	}

	// Its terminal error arrived after the commit and must not tear
	// down the session established in between.
	if m.State().Snapshot().Session == nil {
		t.Fatal("newer session should survive a stale terminal error")
	}
	if _, ok, _ := store.Recover(ctx); !ok {
		t.Fatal("durable copy should survive a stale terminal error")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{current: testRecord()}
	m, store, _ := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}
	m.Clear(ctx)

	snap := m.State().Snapshot()
	if snap.Session != nil || snap.Err != nil || snap.IsLoading {
		t.Fatalf("snapshot after Clear = %+v, want empty", snap)
	}
	if _, ok, _ := store.Recover(ctx); ok {
		t.Fatal("durable copy should be gone after Clear")
	}

	// Clearing again is harmless.
	m.Clear(ctx)
}

func TestRenewalTickRefreshes(t *testing.T) {
	ctx := t.Context()
	fresh := testRecord()
	fresh.AccessToken = "at-fresh"
	b := &fakeBackend{current: testRecord(), refreshed: fresh}
	m, store, tick := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}

	tick()
	waitFor(t, func() bool {
		s := m.State().Snapshot().Session
		return s != nil && s.AccessToken == "at-fresh"
	})

	// The refreshed record also replaced the durable copy.
	waitFor(t, func() bool {
		rec, ok, _ := store.Recover(ctx)
		return ok && rec.AccessToken == "at-fresh"
	})
}

func TestRenewalSkipsWithoutBackendSession(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{current: testRecord(), refreshed: testRecord()}
	m, _, tick := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}

	// The backend session disappears before the tick.
	b.setCurrent(nil)
	before, _, _ := b.counts()

	tick()
	waitFor(t, func() bool {
		cur, _, _ := b.counts()
		return cur > before
	})

	if _, _, refreshes := b.counts(); refreshes != 0 {
		t.Fatalf("Refresh called %d times, want 0", refreshes)
	}
}

func TestRenewalTerminalFailureTearsDown(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{
		current:    testRecord(),
		refreshErr: fmt.Errorf("gateway: %w", ErrInvalidToken),
	}
	m, store, tick := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}

	tick()
	waitFor(t, func() bool { return m.State().Snapshot().Session == nil })

	if _, ok, _ := store.Recover(ctx); ok {
		t.Fatal("durable copy should be wiped after terminal renewal failure")
	}
	if !IsInvalidToken(m.State().Snapshot().Err) {
		t.Fatalf("Err = %v, want an invalid-token error", m.State().Snapshot().Err)
	}
}

func TestRenewalTransientFailureKeepsSession(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{
		current:    testRecord(),
		refreshErr: errors.New("temporarily unavailable"),
	}
	m, _, tick := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}

	tick()
	waitFor(t, func() bool {
		_, _, refreshes := b.counts()
		return refreshes == 1
	})

	// Left for the next tick: session intact.
	if m.State().Snapshot().Session == nil {
		t.Fatal("session should survive a transient renewal failure")
	}

	tick()
	waitFor(t, func() bool {
		_, _, refreshes := b.counts()
		return refreshes == 2
	})
}

func TestStopCancelsRenewal(t *testing.T) {
	ctx := t.Context()
	b := &fakeBackend{current: testRecord(), refreshed: testRecord()}
	m, _, tick := newTestManager(t, b)

	if !m.Validate(ctx) {
		t.Fatal("Validate should succeed")
	}
	m.Stop()

	// A tick after Stop has no listener left to act on it.
	before, _, _ := b.counts()
	tick()
	time.Sleep(50 * time.Millisecond)
	after, _, _ := b.counts()
	if after != before {
		t.Fatalf("backend called %d times after Stop", after-before)
	}

	// Stop leaves state and storage alone.
	if m.State().Snapshot().Session == nil {
		t.Fatal("Stop must not clear the session")
	}
}
