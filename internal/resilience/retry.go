// Package resilience wraps outbound adapter calls with retries, a circuit
// breaker per adapter, and a bounded log of call records for health
// inspection.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/refmatch/refmatch/internal/apperr"
)

// Policy configures retry behaviour for outbound calls.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // backoff before the second attempt
	MaxDelay    time.Duration // backoff cap
	Multiplier  float64       // backoff growth factor
}

// DefaultPolicy returns the default retry policy: 3 attempts, 1s base,
// doubling, capped at 10s, with full jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	return p
}

// Do executes fn, retrying on retryable failures (network, 5xx, 429) with
// jittered exponential backoff. Terminal failures and context cancellation
// return immediately. The final failure carries the last error. Returns
// the number of attempts made alongside the error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	p = p.withDefaults()

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !apperr.Retryable(err) || attempt == p.MaxAttempts {
			return attempt, err
		}

		// Full jitter in [0.5, 1.0) of the current backoff, floored at the
		// upstream Retry-After hint when one was provided.
		sleep := time.Duration(float64(delay) * (0.5 + 0.5*rand.Float64())) //nolint:gosec // jitter doesn't need crypto-strength randomness
		if ra := apperr.RetryAfterOf(err); ra > sleep {
			sleep = ra
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
