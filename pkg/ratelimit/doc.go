// Package ratelimit provides rate limiting for the Lightspeed API client.
//
// A single limiter instance gates every request the process makes, keeping
// the exporter inside the vendor's request budget regardless of how many
// resources are exported.
//
// Available Implementations:
//
// Token Bucket:
//   - Thin wrapper over golang.org/x/time/rate
//   - Steady request pacing with a configurable burst allowance
//   - Default implementation used by the exporter
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - More accurate rate limiting over time
//   - Better for consistent request patterns
//
// Interface:
//
// All rate limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait(ctx) error - Block until a request is allowed or ctx is canceled
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// Token bucket: 5 requests per second, no burst
//	limiter := ratelimit.NewTokenBucket(5, 1)
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // canceled while waiting
//	}
//	// Proceed with request
//
//	// Sliding window: 300 requests per minute
//	limiter := ratelimit.NewSlidingWindow(300, time.Minute)
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	// Proceed with request
package ratelimit
