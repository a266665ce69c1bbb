package reconcile

import (
	"context"
	"time"
)

// StartScheduler drives a full-population pass on a fixed interval, running
// once immediately. Triggered passes may interleave with the timer; grants
// and revokes are idempotent so an overlapping stale write is corrected on
// the next tick.
func (e *Engine) StartScheduler(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		e.ReconcileAll(context.Background())
		for range ticker.C {
			e.ReconcileAll(context.Background())
		}
	}()
}
