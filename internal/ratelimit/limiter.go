// Package ratelimit provides per-client admission control for HTTP requests.
// Every endpoint class owns an independently keyed limiter: a sliding window
// log by default, a token bucket when a class opts in, or a Redis sorted set
// when limits must be shared across instances. Middleware sets the standard
// RateLimit-* response headers and rejects with 429 once a client is over budget.
package ratelimit

import (
	"opshop/internal/clock"
	"time"
)

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Requests left in the current window
	ResetAt    time.Time     // When the oldest counted request leaves the window
	ResetIn    time.Duration // ResetAt relative to the limiter's clock at decision time
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

type options struct {
	clock           clock.Clock
	maxKeys         int
	cleanupInterval time.Duration
}

// Option configures the in-memory limiters.
type Option func(*options)

// WithClock sets the time source. Defaults to clock.Real().
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMaxKeys bounds the number of tracked clients. When exceeded, the least
// recently seen client record is evicted. Zero means unbounded.
func WithMaxKeys(n int) Option {
	return func(o *options) { o.maxKeys = n }
}

// WithCleanupInterval sets how often idle client records are evicted.
// Zero disables the background goroutine.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:           clock.Real(),
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// janitor runs evict every interval until done is closed.
func janitor(interval time.Duration, done <-chan struct{}, evict func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			evict()
		}
	}
}
