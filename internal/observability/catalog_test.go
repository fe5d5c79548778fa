package observability

import (
	"context"
	"errors"
	"opshop/internal/catalog"
	"opshop/internal/governance"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// withManualReader installs a meter provider whose readings the test can
// collect on demand.
func withManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		mp.Shutdown(context.Background())
	})
	return reader
}

// counterTotals sums an Int64 counter's data points by the value of attrKey.
func counterTotals(t *testing.T, reader *sdkmetric.ManualReader, name, attrKey string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(attrKey))
				totals[v.AsString()] += dp.Value
			}
		}
	}
	return totals
}

type failingStore struct {
	catalog.Store
}

func (failingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestInstrumentedStore_DelegatesAndCountsErrors(t *testing.T) {
	reader := withManualReader(t)
	ctx := context.Background()

	inner := catalog.NewMemoryStore()
	require.NoError(t, catalog.Seed(ctx, inner))

	store, err := NewInstrumentedStore(inner)
	require.NoError(t, err)

	featured, err := store.FeaturedProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, featured, 3)

	p, err := store.GetProduct(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, "Oak dining chair", p.Title)

	_, err = store.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	require.NoError(t, store.SetProductQuantity(ctx, "prod-1001", 2))
	q, err := store.ProductQuantity(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, 2, q)

	failing, err := NewInstrumentedStore(failingStore{inner})
	require.NoError(t, err)
	assert.Error(t, failing.Ping(ctx))

	errs := counterTotals(t, reader, "catalog.operation.errors", "operation")
	assert.Equal(t, map[string]int64{"GetProduct": 1, "Ping": 1}, errs)
}

func TestInstrumentedStore_SatisfiesCatalogStore(t *testing.T) {
	withManualReader(t)
	store, err := NewInstrumentedStore(catalog.NewMemoryStore())
	require.NoError(t, err)

	var _ catalog.Store = store
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
}

func TestGovernanceMetrics(t *testing.T) {
	reader := withManualReader(t)
	ctx := context.Background()

	m, err := NewGovernanceMetrics()
	require.NoError(t, err)

	m.Rejected(ctx, governance.NewRateLimitError("auth", time.Minute))
	m.Rejected(ctx, governance.NewRateLimitError("auth", time.Minute))
	m.Rejected(ctx, governance.NewRateLimitError("search", time.Second))
	m.Rejected(ctx, governance.NewCSRFError())
	m.Rejected(ctx, governance.NewSuspiciousActivityError("user_agent:sqlmap"))
	m.Rejected(ctx, governance.NewSuspiciousActivityError("path_traversal"))
	m.CacheResult(ctx, true)
	m.CacheResult(ctx, true)
	m.CacheResult(ctx, false)

	assert.Equal(t, map[string]int64{"auth": 2, "search": 1},
		counterTotals(t, reader, "governance.ratelimit.rejections", "class"))
	assert.Equal(t, map[string]int64{"": 1},
		counterTotals(t, reader, "governance.csrf.failures", "none"))
	assert.Equal(t, map[string]int64{"user_agent": 1, "path_traversal": 1},
		counterTotals(t, reader, "governance.suspicious.rejections", "reason"))
	assert.Equal(t, map[string]int64{"hit": 2, "miss": 1},
		counterTotals(t, reader, "cache.requests", "result"))
}
