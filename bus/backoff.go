package bus

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase   = 250 * time.Millisecond
	backoffMax    = 30 * time.Second
	backoffJitter = 0.2
)

// backoff returns the resubscribe delay for the given attempt
// (0-indexed): exponential growth from backoffBase, capped at
// backoffMax, with ±backoffJitter randomness so reconnecting listeners
// do not stampede the broker in lockstep.
func backoff(attempt int) time.Duration {
	delay := float64(backoffBase) * math.Pow(2, float64(attempt))
	if max := float64(backoffMax); delay > max {
		delay = max
	}
	delay += delay * backoffJitter * (rand.Float64()*2 - 1)
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// sleep waits for d, returning false when ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
