package ratelimit

import (
	"math"
	"opshop/internal/clock"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket holds a rate limiter and its last access time for cleanup.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter is an in-memory rate limiter backed by golang.org/x/time/rate.
// Each unique key gets a bucket of max tokens refilled evenly over the window,
// which smooths bursts instead of counting a hard trailing window.
type TokenBucketLimiter struct {
	rate   rate.Limit
	burst  int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
	lru     *lruKeys
	done    chan struct{}
	closed  bool
}

// NewTokenBucketLimiter creates a limiter refilling max tokens per window.
func NewTokenBucketLimiter(max int, window time.Duration, opts ...Option) *TokenBucketLimiter {
	o := buildOptions(opts)
	l := &TokenBucketLimiter{
		rate:    rate.Every(window / time.Duration(max)),
		burst:   max,
		window:  window,
		clock:   o.clock,
		buckets: make(map[string]*bucket),
		lru:     newLRUKeys(o.maxKeys),
		done:    make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go janitor(o.cleanupInterval, l.done, l.evictStale)
	}
	return l
}

// Allow checks whether a request from the given key should be allowed.
func (l *TokenBucketLimiter) Allow(key string) (bool, Info) {
	now := l.clock.Now()

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			limiter: rate.NewLimiter(l.rate, l.burst),
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.lru.touch(key)
	for _, evicted := range l.lru.evictIfNeeded() {
		delete(l.buckets, evicted)
	}
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)

	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	// Reset is when the bucket is full again
	tokensNeeded := float64(l.burst) - tokens
	resetAt := now
	if tokensNeeded > 0 {
		resetAt = now.Add(time.Duration(tokensNeeded / float64(l.rate) * float64(time.Second)))
	}

	info := Info{
		Limit:     l.burst,
		Remaining: remaining,
		ResetAt:   resetAt,
		ResetIn:   resetAt.Sub(now),
	}

	if !allowed {
		// Time until the next token is available
		reservation := b.limiter.ReserveN(now, 1)
		info.RetryAfter = reservation.DelayFrom(now)
		reservation.CancelAt(now)
	}

	return allowed, info
}

// Len returns the number of tracked buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the background cleanup goroutine.
func (l *TokenBucketLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

// evictStale removes buckets idle for a full window; they have refilled.
func (l *TokenBucketLimiter) evictStale() {
	cutoff := l.clock.Now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			l.lru.remove(key)
		}
	}
}
