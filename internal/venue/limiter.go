package venue

import (
	"context"
	"sync"
	"time"
)

// callLimiter enforces a venue's minimum interval between API calls.
// The retry caller paces trade loops with its own sleeps; this limiter
// is the hard floor for everything else that touches the binding, like
// report balance fetches running next to an active trade on another
// venue.
type callLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time
}

func newCallLimiter(interval time.Duration) *callLimiter {
	return &callLimiter{interval: interval}
}

// wait blocks until the minimum interval since the previous call has
// passed, or the context is cancelled.
func (l *callLimiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.lastCall.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.lastCall = next
	l.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
