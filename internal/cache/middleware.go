package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"opshop/internal/clock"
	"opshop/internal/models"
	"strconv"
	"time"
)

// Observer is told whether each cacheable request was a hit.
type Observer interface {
	CacheResult(ctx context.Context, hit bool)
}

// ResponseCache caches successful GET responses.
type ResponseCache struct {
	store    Store
	clock    clock.Clock
	ttl      time.Duration
	maxAge   time.Duration
	swr      time.Duration
	observer Observer
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

func WithClock(c clock.Clock) Option {
	return func(rc *ResponseCache) { rc.clock = c }
}

func WithObserver(o Observer) Option {
	return func(rc *ResponseCache) { rc.observer = o }
}

// NewResponseCache builds a cache with the configured TTL and Cache-Control
// policy.
func NewResponseCache(store Store, cfg models.CacheConfig, opts ...Option) *ResponseCache {
	rc := &ResponseCache{
		store:  store,
		clock:  clock.Real(),
		ttl:    cfg.TTL,
		maxAge: cfg.MaxAge,
		swr:    cfg.StaleWhileRevalidate,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Key is the cache key for r: the path plus its query parameters in sorted
// order, so parameter order does not split entries.
func Key(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// CacheControl is the header value sent with cacheable responses.
func (rc *ResponseCache) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int(rc.maxAge.Seconds()), int(rc.swr.Seconds()))
}

// Middleware serves fresh entries with X-Cache: HIT. Otherwise the handler
// runs and a 200 response is stored and sent with X-Cache: MISS. Other
// statuses pass through uncached and without caching headers.
func (rc *ResponseCache) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r)
			now := rc.clock.Now()

			entry, err := rc.store.Get(r.Context(), key)
			if err != nil && !errors.Is(err, ErrMiss) {
				slog.Warn("Response cache read failed", "key", key, "error", err)
			}
			if err == nil && entry.Fresh(now) {
				rc.observe(r.Context(), true)
				rc.serve(w, entry, now)
				return
			}

			rc.observe(r.Context(), false)
			cw := &captureWriter{ResponseWriter: w, cacheControl: rc.CacheControl()}
			next.ServeHTTP(cw, r)

			if cw.status() != http.StatusOK {
				return
			}
			stored := &Entry{
				Body:        cw.body.Bytes(),
				StatusCode:  http.StatusOK,
				ContentType: cw.Header().Get("Content-Type"),
				CreatedAt:   now,
				TTL:         rc.ttl,
			}
			if err := rc.store.Set(r.Context(), key, stored); err != nil {
				slog.Warn("Response cache write failed", "key", key, "error", err)
			}
		})
	}
}

// Invalidate drops the entry for a path and query.
func (rc *ResponseCache) Invalidate(ctx context.Context, key string) error {
	return rc.store.Delete(ctx, key)
}

// InvalidatePrefix drops every entry whose path and query start with prefix.
func (rc *ResponseCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	return rc.store.DeletePrefix(ctx, prefix)
}

func (rc *ResponseCache) serve(w http.ResponseWriter, e *Entry, now time.Time) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.Header().Set("Cache-Control", rc.CacheControl())
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Age", strconv.Itoa(int(e.Age(now).Seconds())))
	w.WriteHeader(e.StatusCode)
	w.Write(e.Body)
}

func (rc *ResponseCache) observe(ctx context.Context, hit bool) {
	if rc.observer != nil {
		rc.observer.CacheResult(ctx, hit)
	}
}

// captureWriter passes the response through while keeping a copy of a 200
// body.
type captureWriter struct {
	http.ResponseWriter
	cacheControl string
	code         int
	body         bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	if cw.code != 0 {
		return
	}
	cw.code = code
	if code == http.StatusOK {
		cw.Header().Set("Cache-Control", cw.cacheControl)
		cw.Header().Set("X-Cache", "MISS")
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.code == 0 {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.code == http.StatusOK {
		cw.body.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *captureWriter) status() int {
	if cw.code == 0 {
		return http.StatusOK
	}
	return cw.code
}
