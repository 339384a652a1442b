package holdfast

import (
	"context"

	"github.com/NitishJha0207/holdfast/fault"
)

// Guard marks the fault flag when the calling goroutine is panicking,
// then re-panics. It observes the crash, it does not handle it; the
// mark makes the next Boot run the recovery purge.
//
// Defer it at the top of goroutines whose crash means cached state can
// no longer be trusted:
//
//	defer holdfast.Guard(ctx, client.Faults())
func Guard(ctx context.Context, m *fault.Manager) {
	if r := recover(); r != nil {
		m.Mark(ctx)
		panic(r)
	}
}

// Guarded runs fn with [Guard] installed: a panic inside fn marks the
// fault flag and propagates. Panics escaping fn are not swallowed.
func Guarded(ctx context.Context, m *fault.Manager, fn func(ctx context.Context) error) error {
	defer Guard(ctx, m)
	return fn(ctx)
}
