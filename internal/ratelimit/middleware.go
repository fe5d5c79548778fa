package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"opshop/internal/governance"
	"strconv"
	"strings"
	"time"
)

// KeyFunc derives the client identifier a limiter counts against.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys requests by client IP.
func ClientIPKey(trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxyHeaders)
	}
}

// Middleware returns HTTP middleware that enforces limiter for one endpoint
// class. Rejections are written through errs and never reach next.
func Middleware(limiter Limiter, class string, keyFn KeyFunc, errs *governance.Writer) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIPKey(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, info := limiter.Allow(key)

			// Always set rate limit headers
			w.Header().Set("RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(info.ResetIn)))

			if !allowed {
				slog.Warn("Rate limit exceeded",
					"class", class,
					"ip", key,
					"path", r.URL.Path,
					"method", r.Method,
					"limit", info.Limit,
					"retry_after", info.RetryAfter.String(),
				)
				errs.Write(w, r, governance.NewRateLimitError(class, info.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ceilSeconds rounds d up to whole seconds, never below zero.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// ClientIP extracts the client IP from the request. Proxy headers are only
// consulted when trustProxyHeaders is set, since clients can forge them.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
