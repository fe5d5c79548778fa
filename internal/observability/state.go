package observability

import (
	"context"
	"opshop/internal/cache"
	"opshop/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// sizer is implemented by the in-memory limiters. The redis limiter keeps
// its clients in redis and is not reported.
type sizer interface {
	Len() int
}

// RegisterStateGauges exports how many clients each rate limit class tracks
// and how many responses are cached. Either argument may be nil. The returned
// registration should be unregistered on shutdown.
func RegisterStateGauges(limiters *ratelimit.Registry, responses cache.Store) (metric.Registration, error) {
	meter := otel.Meter("opshop/governance")

	clients, err := meter.Int64ObservableGauge("ratelimit.tracked_clients",
		metric.WithDescription("Client records held by each in-memory rate limiter"),
		metric.WithUnit("{client}"))
	if err != nil {
		return nil, err
	}
	entries, err := meter.Int64ObservableGauge("cache.entries",
		metric.WithDescription("Responses held by the response cache, fresh or not yet swept"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if limiters != nil {
			for _, class := range limiters.Names() {
				l, _ := limiters.Limiter(class)
				if s, ok := l.(sizer); ok {
					o.ObserveInt64(clients, int64(s.Len()), metric.WithAttributes(attribute.String("class", class)))
				}
			}
		}
		if responses != nil {
			n, err := responses.Len(ctx)
			if err != nil {
				return err
			}
			o.ObserveInt64(entries, int64(n))
		}
		return nil
	}, clients, entries)
}
