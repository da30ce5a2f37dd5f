// Package ratelimit provides a token-bucket limiter for throttling request
// volume against language servers that degrade under bursty load.
package ratelimit

import (
	"context"
	"sync"
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// Stats is a snapshot of limiter activity.
type Stats struct {
	Granted   int64
	Denied    int64
	Available float64
	Capacity  float64
}

// Limiter is a token bucket with lazy wall-clock refill: tokens accrue on
// each acquire based on elapsed time, no background goroutine. The token
// count always stays within [0, capacity].
type Limiter struct {
	rate     float64 // tokens per second
	capacity float64

	mu      sync.Mutex
	tokens  float64
	last    time.Time
	granted int64
	denied  int64
	now     func() time.Time
}

// New creates a limiter refilling at rate tokens per second with the given
// burst capacity. A non-positive burst defaults to 2x the rate; the bucket
// starts full.
func New(rate float64, burst float64) *Limiter {
	if burst <= 0 {
		burst = 2 * rate
	}
	l := &Limiter{
		rate:     rate,
		capacity: burst,
		tokens:   burst,
		now:      time.Now,
	}
	l.last = l.now()
	return l
}

// TryAcquire takes n tokens if available, without blocking.
func (l *Limiter) TryAcquire(n float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens < n {
		l.denied++
		return false
	}
	l.tokens -= n
	l.granted++
	return true
}

// Acquire blocks until n tokens are available, polling with bounded sleeps.
// It gives up when timeout elapses or ctx is canceled; the timeout surfaces
// as a typed timeout error so callers can distinguish throttling from
// transport failure.
func (l *Limiter) Acquire(ctx context.Context, n float64, timeout time.Duration) error {
	deadline := l.now().Add(timeout)
	for {
		if l.TryAcquire(n) {
			return nil
		}

		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return lspDomain.NewError(lspDomain.KindTimeout, "rate limit: no tokens within %s", timeout)
		}

		// Sleep roughly until enough tokens accrue, capped so cancellation
		// and deadline stay responsive.
		wait := l.timeUntil(n)
		if wait > remaining {
			wait = remaining
		}
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// AvailableTokens returns the current token count after refill.
func (l *Limiter) AvailableTokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Reset refills the bucket to capacity and clears the counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.capacity
	l.last = l.now()
	l.granted = 0
	l.denied = 0
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return Stats{
		Granted:   l.granted,
		Denied:    l.denied,
		Available: l.tokens,
		Capacity:  l.capacity,
	}
}

// refill accrues tokens for the time elapsed since the last refill, clamped
// to capacity. Caller holds the lock.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

// timeUntil estimates how long until n tokens are available. Caller must not
// hold the lock.
func (l *Limiter) timeUntil(n float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	missing := n - l.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / l.rate * float64(time.Second) / 2)
}
