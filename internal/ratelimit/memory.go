package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Sweep cadence for idle client buckets. A bucket idle past staleAfter
// has fully refilled, so dropping it changes no decision.
const (
	sweepInterval = 30 * time.Second
	staleAfter    = 5 * time.Minute
)

// bucket tracks the remaining tokens for one client key.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// refill credits tokens for the time since the last request, capped at
// the burst size.
func (b *bucket) refill(now time.Time, rate, burst float64) {
	b.tokens += now.Sub(b.lastSeen).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastSeen = now
}

// MemoryLimiter is the in-process Limiter used when the API runs as a
// single instance. It keeps one token bucket per client key, typically
// the remote IP, refilled continuously at rate tokens per second.
type MemoryLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter allowing a sustained rate of
// requests per second per key, with bursts up to burst. Close stops the
// background sweep of idle buckets.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token for key. False means the caller is over its
// rate and gets a 429 from the middleware.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		// A new key starts with a full bucket; this request takes the
		// first token.
		m.buckets[key] = &bucket{tokens: m.burst - 1, lastSeen: now}
		return true, nil
	}

	b.refill(now, m.rate, m.burst)
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the sweep goroutine. Idempotent.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
