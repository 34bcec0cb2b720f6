package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing requests using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate to provide:
//   - Token bucket rate limiting (allows bursts while enforcing sustained rate)
//   - Context-aware waiting (respects cancellation)
//
// Used by drivers that talk to remote services with per-request quotas,
// such as object storage providers.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with bursts
// of up to burst requests.
//
// Special cases:
//   - requestsPerSecond = 0: No rate limiting (unlimited)
//   - burst = 0: burst equals requestsPerSecond
//
// Example:
//
//	// Allow 100 req/s sustained, 200 req/s burst
//	limiter := New(100, 200)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns the context error if ctx is done first, or an error if the wait
// would exceed the context deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
