package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// waiter enforces a minimum inter-request delay using a token bucket with
// burst 1, so requests within one adapter are strictly sequenced.
type waiter struct {
	lim *rate.Limiter
}

func newWaiter(minInterval time.Duration) *waiter {
	if minInterval <= 0 {
		return &waiter{}
	}
	return &waiter{lim: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// wait blocks until the next request slot or context cancellation.
func (w *waiter) wait(ctx context.Context) error {
	if w.lim == nil {
		return ctx.Err()
	}
	return w.lim.Wait(ctx)
}
