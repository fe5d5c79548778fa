// Package cache provides the TTL response cache for GET API routes, a generic
// memoizer for hot catalog queries, and the scheduled sweep that bounds
// memory. Expired entries are never served; the next request recomputes them.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by stores when a key has no entry.
var ErrMiss = errors.New("cache miss")

// Entry is a cached HTTP response.
type Entry struct {
	Body        []byte        `json:"body"`
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// Fresh reports whether the entry may still be served at now.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

// Age is how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Store persists cache entries. Get may return expired entries; callers
// check Fresh.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Sweep removes entries that are no longer fresh at now and returns
	// how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}
