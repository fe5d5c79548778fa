package ratelimit

import (
	"opshop/internal/clock"
	"sync"
	"time"
)

// window is the request log of one client. hits is ordered oldest first.
type window struct {
	hits     []time.Time
	lastSeen time.Time
}

// prune drops hits that are a full window or more in the past.
func (w *window) prune(now time.Time, size time.Duration) {
	i := 0
	for i < len(w.hits) && now.Sub(w.hits[i]) >= size {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// SlidingWindowLimiter admits at most max requests per client within any
// trailing window. A rejected request is not recorded, so a client hammering
// the endpoint does not extend its own lockout.
type SlidingWindowLimiter struct {
	max    int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	windows map[string]*window
	lru     *lruKeys
	done    chan struct{}
	closed  bool
}

// NewSlidingWindowLimiter creates a limiter allowing max requests per window.
// It starts a background goroutine for idle eviction unless disabled with
// WithCleanupInterval(0).
func NewSlidingWindowLimiter(max int, size time.Duration, opts ...Option) *SlidingWindowLimiter {
	o := buildOptions(opts)
	l := &SlidingWindowLimiter{
		max:     max,
		window:  size,
		clock:   o.clock,
		windows: make(map[string]*window),
		lru:     newLRUKeys(o.maxKeys),
		done:    make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go janitor(o.cleanupInterval, l.done, l.evictIdle)
	}
	return l
}

// Allow checks whether a request from the given key should be allowed.
func (l *SlidingWindowLimiter) Allow(key string) (bool, Info) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	w.lastSeen = now
	l.lru.touch(key)
	for _, evicted := range l.lru.evictIfNeeded() {
		delete(l.windows, evicted)
	}

	w.prune(now, l.window)

	info := Info{Limit: l.max}
	if len(w.hits) >= l.max {
		reset := w.hits[0].Add(l.window)
		info.ResetAt = reset
		info.ResetIn = reset.Sub(now)
		info.RetryAfter = reset.Sub(now)
		return false, info
	}

	w.hits = append(w.hits, now)
	info.Remaining = l.max - len(w.hits)
	info.ResetAt = w.hits[0].Add(l.window)
	info.ResetIn = info.ResetAt.Sub(now)
	return true, info
}

// Len returns the number of tracked client records.
func (l *SlidingWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Close stops the background cleanup goroutine.
func (l *SlidingWindowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

// evictIdle removes clients whose every hit has left the window.
func (l *SlidingWindowLimiter) evictIdle() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.lastSeen) >= l.window {
			delete(l.windows, key)
			l.lru.remove(key)
		}
	}
}
