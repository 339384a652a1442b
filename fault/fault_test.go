package fault

import (
	"context"
	"errors"
	"testing"

	"github.com/NitishJha0207/holdfast/kv"
)

// countingPurger records ClearAll invocations.
type countingPurger struct {
	calls int
}

func (p *countingPurger) ClearAll(context.Context) { p.calls++ }

// countingStore wraps a Store and counts the writes that reach it.
type countingStore struct {
	kv.Store
	sets int
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.sets++
	return s.Store.Set(ctx, key, value)
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}
func (brokenStore) Set(context.Context, string, []byte) error {
	return errors.New("storage unavailable")
}
func (brokenStore) Delete(context.Context, string) error {
	return errors.New("storage unavailable")
}
func (brokenStore) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("storage unavailable")
}
func (brokenStore) Close() error { return nil }

func TestRoundTrip(t *testing.T) {
	ctx := t.Context()
	m := New(kv.NewMem(), nil)
	p := &countingPurger{}

	if m.Faulted(ctx) {
		t.Fatal("fresh store should be Healthy")
	}

	m.Mark(ctx)
	if !m.Faulted(ctx) {
		t.Fatal("expected Faulted after Mark")
	}

	if !m.Recover(ctx, p) {
		t.Fatal("Recover should report true when faulted")
	}
	if p.calls != 1 {
		t.Fatalf("ClearAll called %d times, want 1", p.calls)
	}
	if m.Faulted(ctx) {
		t.Fatal("expected Healthy after Recover")
	}
}

func TestRecoverWhenHealthy(t *testing.T) {
	ctx := t.Context()
	m := New(kv.NewMem(), nil)
	p := &countingPurger{}

	if m.Recover(ctx, p) {
		t.Fatal("Recover should report false when Healthy")
	}
	if p.calls != 0 {
		t.Fatalf("ClearAll called %d times, want 0", p.calls)
	}
}

func TestMarkSwallowsWriteFailure(t *testing.T) {
	ctx := t.Context()
	m := New(brokenStore{}, nil)

	// Must not panic or propagate anything.
	m.Mark(ctx)

	if m.Faulted(ctx) {
		t.Fatal("unreadable flag must count as Healthy")
	}
}

func TestMarkDampsWriteStorms(t *testing.T) {
	ctx := t.Context()
	store := &countingStore{Store: kv.NewMem()}
	m := New(store, nil)

	// A storm of marks is fine; only the initial burst reaches
	// storage, and the flag ends up set either way.
	for range 100 {
		m.Mark(ctx)
	}
	if store.sets == 0 || store.sets > 3 {
		t.Fatalf("storm reached storage %d times, want at most the burst of 3", store.sets)
	}
	if !m.Faulted(ctx) {
		t.Fatal("expected Faulted after mark storm")
	}
}
