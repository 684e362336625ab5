// Package ratelimit implements the client-side admission control token
// bucket used to govern how fast a caller may issue requests.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket grants or denies admission under a rate-per-second and
// burst-seconds budget. Unlike golang.org/x/time/rate, TryAcquire never
// waits and never spends partial tokens on denial — a denied call leaves
// the bucket untouched — and Reset/SetRate have exact, test-visible
// semantics.
type TokenBucket struct {
	mu sync.Mutex

	ratePerSecond   float64
	maxBurstSeconds float64
	tokens          float64
	lastRefill      time.Time

	now func() time.Time // overridable for tests
}

// NewTokenBucket creates a bucket with capacity = ratePerSecond *
// maxBurstSeconds, starting full. Both arguments must be positive.
func NewTokenBucket(ratePerSecond, maxBurstSeconds float64) *TokenBucket {
	if ratePerSecond <= 0 || maxBurstSeconds <= 0 {
		panic("ratelimit: rate and burst size must be positive")
	}
	now := time.Now()
	return &TokenBucket{
		ratePerSecond:   ratePerSecond,
		maxBurstSeconds: maxBurstSeconds,
		tokens:          ratePerSecond * maxBurstSeconds,
		lastRefill:      now,
		now:             time.Now,
	}
}

func (b *TokenBucket) capacity() float64 {
	return b.ratePerSecond * b.maxBurstSeconds
}

// refill must be called with mu held.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens = min(b.tokens+elapsed*b.ratePerSecond, b.capacity())
	b.lastRefill = now
}

// TryAcquire attempts to spend n tokens (n defaults to 1 via Allow).
// It refills first, then grants atomically if enough tokens are present;
// on denial no tokens are spent and the caller does not wait.
func (b *TokenBucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Allow is TryAcquire(1).
func (b *TokenBucket) Allow() bool {
	return b.TryAcquire(1)
}

// AvailablePermits performs a side-effect-free refill calculation and
// returns the resulting token count, without spending any.
func (b *TokenBucket) AvailablePermits() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return min(b.tokens+elapsed*b.ratePerSecond, b.capacity())
}

// SetRate changes the refill rate. If the bucket currently holds more
// tokens than the new capacity allows, it is clamped down immediately.
func (b *TokenBucket) SetRate(newRate float64) {
	if newRate <= 0 {
		panic("ratelimit: rate must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	b.ratePerSecond = newRate
	if max := b.capacity(); b.tokens > max {
		b.tokens = max
	}
}

// Rate returns the current refill rate.
func (b *TokenBucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ratePerSecond
}

// Reset restores the bucket to full capacity as of now.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity()
	b.lastRefill = b.now()
}
