package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/refmatch/refmatch/internal/apperr"
)

// BreakerConfig holds circuit breaker thresholds for one adapter.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive qualifying failures that open the circuit
	ResetTimeout     time.Duration // open duration before the half-open probe
}

// DefaultBreakerConfig returns the default thresholds: 5 consecutive
// qualifying failures, 60s reset timeout.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 60 * time.Second}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// Breaker is a per-adapter circuit breaker. Expected errors (4xx other
// than 429, parse failures) never count against it. When open, calls fail
// fast with a CIRCUIT_OPEN error carrying the next-attempt time.
type Breaker struct {
	cb           *gobreaker.CircuitBreaker
	source       string
	resetTimeout time.Duration

	mu       sync.Mutex
	openedAt time.Time
}

// NewBreaker creates a circuit breaker for the named adapter.
func NewBreaker(source string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{source: source, resetTimeout: cfg.ResetTimeout}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1, // single half-open probe
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// nil and expected errors keep the circuit healthy.
			return err == nil || !apperr.CountsForBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.mu.Lock()
				b.openedAt = time.Now()
				b.mu.Unlock()
			}
			logger.Warn("resilience: circuit state change",
				"source", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Execute runs fn through the breaker. An open circuit returns a
// KindCircuitOpen error without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.mu.Lock()
		next := b.openedAt.Add(b.resetTimeout)
		b.mu.Unlock()
		return &apperr.Error{
			Kind:        apperr.KindCircuitOpen,
			Source:      b.source,
			Msg:         "circuit open",
			Err:         err,
			NextAttempt: next,
		}
	}
	return err
}

// State returns the breaker state name: closed, half-open, or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
