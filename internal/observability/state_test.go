package observability

import (
	"context"
	"opshop/internal/cache"
	"opshop/internal/models"
	"opshop/internal/ratelimit"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func gaugeValues(t *testing.T, reader *sdkmetric.ManualReader, name string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "%s is not an int64 gauge", name)
			for _, dp := range gauge.DataPoints {
				class, _ := dp.Attributes.Value(attribute.Key("class"))
				values[class.AsString()] = dp.Value
			}
		}
	}
	return values
}

func TestRegisterStateGauges(t *testing.T) {
	reader := withManualReader(t)
	ctx := context.Background()

	registry, err := ratelimit.NewRegistry(map[string]models.RateLimitClassConfig{
		models.ClassAPI:    {MaxRequests: 10, Window: time.Minute, Algorithm: models.AlgorithmSlidingWindow},
		models.ClassSearch: {MaxRequests: 10, Window: time.Minute, Algorithm: models.AlgorithmTokenBucket},
	}, ratelimit.MemoryFactory(ratelimit.WithCleanupInterval(0)))
	require.NoError(t, err)
	defer registry.Close()

	api, _ := registry.Limiter(models.ClassAPI)
	api.Allow("10.0.0.1")
	api.Allow("10.0.0.2")
	api.Allow("10.0.0.2")
	search, _ := registry.Limiter(models.ClassSearch)
	search.Allow("10.0.0.3")

	responses := cache.NewMemoryStore()
	require.NoError(t, responses.Set(ctx, "/api/categories", &cache.Entry{StatusCode: 200, CreatedAt: time.Now(), TTL: time.Minute}))

	reg, err := RegisterStateGauges(registry, responses)
	require.NoError(t, err)
	defer reg.Unregister()

	assert.Equal(t, map[string]int64{"api": 2, "search": 1}, gaugeValues(t, reader, "ratelimit.tracked_clients"))
	assert.Equal(t, map[string]int64{"": 1}, gaugeValues(t, reader, "cache.entries"))
}

func TestRegisterStateGauges_NilComponents(t *testing.T) {
	reader := withManualReader(t)

	reg, err := RegisterStateGauges(nil, nil)
	require.NoError(t, err)
	defer reg.Unregister()

	assert.Empty(t, gaugeValues(t, reader, "ratelimit.tracked_clients"))
}
