// Package ratelimit provides a small deterministic token bucket used to cap
// per-connection signaling message rates.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so tests can drive refill deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at fillRate tokens/sec up to capacity.
//
// Bookkeeping is done in nanoseconds of "earned" time rather than floating
// point tokens, so repeated small refills never lose precision.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	capacity int64 // tokens
	fillRate int64 // tokens/sec

	available int64 // tokens currently spendable
	earnedNs  int64 // sub-token progress toward the next refill, in ns
	last      time.Time
}

func NewTokenBucket(clock Clock, capacity, fillRate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if fillRate < 0 {
		fillRate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		fillRate:  fillRate,
		available: capacity,
		last:      clock.Now(),
	}
}

// Allow consumes n tokens if available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.available < n {
		return false
	}
	b.available -= n
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; move the reference point without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	b.last = now

	if b.fillRate <= 0 || b.capacity <= 0 || b.available >= b.capacity {
		b.earnedNs = 0
		return
	}

	// Each token costs 1e9/fillRate earned nanoseconds.
	nsPerToken := int64(time.Second) / b.fillRate
	if nsPerToken <= 0 {
		nsPerToken = 1
	}

	b.earnedNs += elapsed.Nanoseconds()
	gained := b.earnedNs / nsPerToken
	b.earnedNs -= gained * nsPerToken

	b.available += gained
	if b.available > b.capacity {
		b.available = b.capacity
		b.earnedNs = 0
	}
}
