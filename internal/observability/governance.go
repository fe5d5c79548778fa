package observability

import (
	"context"
	"opshop/internal/governance"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GovernanceMetrics counts pipeline rejections and response cache results.
// It satisfies governance.Observer and cache.Observer.
type GovernanceMetrics struct {
	rateLimited metric.Int64Counter
	csrf        metric.Int64Counter
	suspicious  metric.Int64Counter
	sessions    metric.Int64Counter
	cache       metric.Int64Counter
}

func NewGovernanceMetrics() (*GovernanceMetrics, error) {
	meter := otel.Meter("opshop/governance")
	m := &GovernanceMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.rateLimited, "governance.ratelimit.rejections", "Requests rejected by a rate limiter"},
		{&m.csrf, "governance.csrf.failures", "Requests rejected for a missing or mismatched CSRF token"},
		{&m.suspicious, "governance.suspicious.rejections", "Requests rejected by the suspicious activity detector"},
		{&m.sessions, "governance.session.unavailable", "Requests that needed a session but had none"},
		{&m.cache, "cache.requests", "Response cache lookups"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{request}"))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// Rejected implements governance.Observer.
func (m *GovernanceMetrics) Rejected(ctx context.Context, e *governance.Error) {
	switch e.Kind {
	case governance.KindRateLimitExceeded:
		m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("class", e.Class)))
	case governance.KindCsrfValidationFailed:
		m.csrf.Add(ctx, 1)
	case governance.KindSuspiciousActivityDetected:
		m.suspicious.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", signature(e))))
	case governance.KindSessionUnavailable:
		m.sessions.Add(ctx, 1)
	}
}

// CacheResult implements cache.Observer.
func (m *GovernanceMetrics) CacheResult(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// signature is the detector rule that fired, without the matched user agent.
func signature(e *governance.Error) string {
	if e.Err == nil {
		return "unknown"
	}
	name, _, _ := strings.Cut(e.Err.Error(), ":")
	return name
}
