package observability

import (
	"context"
	"opshop/internal/catalog"
	"opshop/internal/models"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const catalogDurationMetric = "catalog.operation.duration"

// InstrumentedStore wraps a catalog.Store with a span, a latency histogram
// and an error counter per call.
type InstrumentedStore struct {
	inner    catalog.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStore uses the global tracer and meter providers.
func NewInstrumentedStore(inner catalog.Store) (*InstrumentedStore, error) {
	tracer := otel.Tracer("opshop/catalog")
	meter := otel.Meter("opshop/catalog")

	duration, err := meter.Float64Histogram(
		catalogDurationMetric,
		metric.WithDescription("Duration of catalog store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"catalog.operation.errors",
		metric.WithDescription("Number of catalog store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "catalog."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("catalog.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.startSpan(ctx, "FeaturedProducts")
	start := time.Now()
	result, err := s.inner.FeaturedProducts(ctx)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	s.record(ctx, span, "FeaturedProducts", start, err)
	return result, err
}

func (s *InstrumentedStore) Categories(ctx context.Context) ([]models.Category, error) {
	ctx, span := s.startSpan(ctx, "Categories")
	start := time.Now()
	result, err := s.inner.Categories(ctx)
	s.record(ctx, span, "Categories", start, err)
	return result, err
}

func (s *InstrumentedStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := s.startSpan(ctx, "GetProduct", attribute.String("product_id", id))
	start := time.Now()
	result, err := s.inner.GetProduct(ctx, id)
	s.record(ctx, span, "GetProduct", start, err)
	return result, err
}

func (s *InstrumentedStore) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	ctx, span := s.startSpan(ctx, "Search", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.Search(ctx, query, limit)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	s.record(ctx, span, "Search", start, err)
	return result, err
}

func (s *InstrumentedStore) ProductQuantity(ctx context.Context, id string) (int, error) {
	ctx, span := s.startSpan(ctx, "ProductQuantity", attribute.String("product_id", id))
	start := time.Now()
	result, err := s.inner.ProductQuantity(ctx, id)
	s.record(ctx, span, "ProductQuantity", start, err)
	return result, err
}

func (s *InstrumentedStore) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	ctx, span := s.startSpan(ctx, "SetProductQuantity",
		attribute.String("product_id", id),
		attribute.Int("quantity", quantity),
	)
	start := time.Now()
	err := s.inner.SetProductQuantity(ctx, id, quantity)
	s.record(ctx, span, "SetProductQuantity", start, err)
	return err
}

func (s *InstrumentedStore) SaveCategory(ctx context.Context, c models.Category) error {
	ctx, span := s.startSpan(ctx, "SaveCategory", attribute.String("category_id", c.ID))
	start := time.Now()
	err := s.inner.SaveCategory(ctx, c)
	s.record(ctx, span, "SaveCategory", start, err)
	return err
}

func (s *InstrumentedStore) SaveProduct(ctx context.Context, p models.Product) error {
	ctx, span := s.startSpan(ctx, "SaveProduct", attribute.String("product_id", p.ID))
	start := time.Now()
	err := s.inner.SaveProduct(ctx, p)
	s.record(ctx, span, "SaveProduct", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
