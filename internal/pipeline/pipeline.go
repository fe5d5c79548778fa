// Package pipeline composes the request governance stages into one handler
// chain per route: suspicious activity detection, input sanitization, the
// endpoint class rate limiter, the CSRF guard and, for cacheable GET routes,
// the response cache.
//
// Each stage may answer the request itself. When it does, later stages and
// the route handler never run.
package pipeline

import (
	"log/slog"
	"net/http"
	"opshop/internal/cache"
	"opshop/internal/csrf"
	"opshop/internal/governance"
	"opshop/internal/models"
	"opshop/internal/ratelimit"
	"opshop/internal/sanitize"
	"opshop/internal/session"
	"strings"
)

// Pipeline holds the configured stages. A nil stage is skipped, which is how
// disabled components are expressed.
type Pipeline struct {
	Detector  *sanitize.Detector
	Sanitizer *sanitize.Sanitizer
	Limiters  *ratelimit.Registry
	Sessions  *session.Manager
	Guard     *csrf.Guard
	Cache     *cache.ResponseCache

	// KeyFunc identifies the client for rate limiting.
	KeyFunc ratelimit.KeyFunc
	// Errors writes every rejection.
	Errors *governance.Writer
}

type routeOptions struct {
	cached bool
}

// Option adjusts the chain built for one route.
type Option func(*routeOptions)

// Cached enables the response cache for the route.
func Cached() Option {
	return func(o *routeOptions) { o.cached = true }
}

// Chain wraps h in the governance stages for the named endpoint class, in
// order: detector, sanitizer, rate limiter, session, CSRF guard, cache.
// Unknown classes fall back to the general api class.
func (p *Pipeline) Chain(class string, h http.Handler, opts ...Option) http.Handler {
	return p.Middleware(class, opts...)(h)
}

// Middleware is Chain in the func(http.Handler) http.Handler form used by
// routers.
func (p *Pipeline) Middleware(class string, opts ...Option) func(http.Handler) http.Handler {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	stages := make([]func(http.Handler) http.Handler, 0, 6)
	if p.Detector != nil {
		stages = append(stages, p.Detector.Middleware(p.clientIP, p.Errors))
	}
	if p.Sanitizer != nil {
		stages = append(stages, p.Sanitizer.Middleware())
	}
	if mw := p.limiter(class); mw != nil {
		stages = append(stages, mw)
	}
	if p.Sessions != nil {
		stages = append(stages, p.Sessions.Middleware())
	}
	if p.Guard != nil {
		stages = append(stages, p.Guard.Middleware())
	}
	if o.cached && p.Cache != nil {
		stages = append(stages, p.Cache.Middleware())
	}

	return func(h http.Handler) http.Handler {
		for i := len(stages) - 1; i >= 0; i-- {
			h = stages[i](h)
		}
		return h
	}
}

func (p *Pipeline) limiter(class string) func(http.Handler) http.Handler {
	if p.Limiters == nil {
		return nil
	}
	l, ok := p.Limiters.Limiter(class)
	if !ok {
		l, ok = p.Limiters.Limiter(models.ClassAPI)
		if !ok {
			slog.Error("No rate limiter configured for class", "class", class)
			return nil
		}
		slog.Warn("Unknown rate limit class, using api", "class", class)
		class = models.ClassAPI
	}
	return ratelimit.Middleware(l, class, p.KeyFunc, p.Errors)
}

func (p *Pipeline) clientIP(r *http.Request) string {
	if p.KeyFunc != nil {
		return p.KeyFunc(r)
	}
	return ratelimit.ClientIP(r, false)
}

// ClassFor maps a request path to its endpoint class.
func ClassFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/auth/"), path == "/api/login", path == "/api/logout":
		return models.ClassAuth
	case path == "/api/search", strings.HasPrefix(path, "/api/search/"):
		return models.ClassSearch
	case strings.HasPrefix(path, "/api/checkout/"), strings.HasPrefix(path, "/api/payments"):
		return models.ClassPayment
	case strings.HasPrefix(path, "/api/buyback"):
		return models.ClassBuyback
	case strings.HasPrefix(path, "/api/messages"):
		return models.ClassMessaging
	default:
		return models.ClassAPI
	}
}
