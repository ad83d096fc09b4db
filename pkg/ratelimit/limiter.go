package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is canceled
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket adapts golang.org/x/time/rate to the Limiter interface.
// Safe for concurrent use.
type TokenBucket struct {
	mu      sync.RWMutex
	rps     float64
	burst   int
	limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket limiter allowing rps requests per
// second with the given burst capacity.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	return &TokenBucket{
		rps:     rps,
		burst:   burst,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return tb.limiter.Allow()
}

// Wait blocks until a token is available or the context is canceled
func (tb *TokenBucket) Wait(ctx context.Context) error {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return tb.limiter.Wait(ctx)
}

// Reset restores the bucket to its configured rate and burst
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.limiter = rate.NewLimiter(rate.Limit(tb.rps), tb.burst)
}

// UpdateLimits adjusts the requests per second and burst size at runtime
func (tb *TokenBucket) UpdateLimits(rps float64, burst int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.rps = rps
	tb.burst = burst
	tb.limiter.SetLimit(rate.Limit(rps))
	tb.limiter.SetBurst(burst)
}

// SlidingWindow implements a sliding window rate limiter
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait blocks until a request is allowed or the context is canceled
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var timeToWait time.Duration
		if len(sw.requests) > 0 {
			oldestRequest := sw.requests[0]
			timeToWait = sw.windowSize - time.Since(oldestRequest)
		}
		sw.mu.Unlock()

		if timeToWait <= 0 {
			// Small sleep to prevent busy waiting
			timeToWait = 100 * time.Millisecond
		}

		timer := time.NewTimer(timeToWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	// Find the first request that's within the window
	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	// Keep only requests within the window
	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}
