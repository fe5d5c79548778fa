package ratelimit

import (
	"fmt"
	"opshop/internal/models"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class is an endpoint class with its own ceiling and window.
type Class struct {
	Name        string
	MaxRequests int
	Window      time.Duration
	Algorithm   string
}

// Factory builds the limiter for one class.
type Factory func(class Class) (Limiter, error)

// MemoryFactory builds in-process limiters, picking the algorithm per class.
func MemoryFactory(opts ...Option) Factory {
	return func(class Class) (Limiter, error) {
		switch class.Algorithm {
		case "", models.AlgorithmSlidingWindow:
			return NewSlidingWindowLimiter(class.MaxRequests, class.Window, opts...), nil
		case models.AlgorithmTokenBucket:
			return NewTokenBucketLimiter(class.MaxRequests, class.Window, opts...), nil
		default:
			return nil, fmt.Errorf("unsupported algorithm %q for class %s", class.Algorithm, class.Name)
		}
	}
}

// RedisFactory builds shared sliding window limiters. Keys are namespaced by
// class so classes never share a budget. The algorithm setting is ignored.
func RedisFactory(rdb *redis.Client, prefix string) Factory {
	return func(class Class) (Limiter, error) {
		return NewRedisLimiter(rdb, class.MaxRequests, class.Window,
			WithRedisPrefix(prefix+":ratelimit:"+class.Name),
		), nil
	}
}

// Registry holds one independently keyed limiter per endpoint class.
type Registry struct {
	classes  map[string]Class
	limiters map[string]Limiter
}

// NewRegistry builds a limiter for every configured class.
func NewRegistry(classes map[string]models.RateLimitClassConfig, factory Factory) (*Registry, error) {
	r := &Registry{
		classes:  make(map[string]Class, len(classes)),
		limiters: make(map[string]Limiter, len(classes)),
	}
	for name, cfg := range classes {
		class := Class{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Window:      cfg.Window,
			Algorithm:   cfg.Algorithm,
		}
		limiter, err := factory(class)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create limiter for class %s: %w", name, err)
		}
		r.classes[name] = class
		r.limiters[name] = limiter
	}
	return r, nil
}

// Limiter returns the limiter for a class.
func (r *Registry) Limiter(name string) (Limiter, bool) {
	l, ok := r.limiters[name]
	return l, ok
}

// Class returns a class definition.
func (r *Registry) Class(name string) (Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the configured class names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every limiter.
func (r *Registry) Close() {
	for _, l := range r.limiters {
		l.Close()
	}
}
