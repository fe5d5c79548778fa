package ratelimit

import (
	"opshop/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_DefaultClasses(t *testing.T) {
	registry, err := NewRegistry(models.DefaultRateLimitClasses(), MemoryFactory(WithCleanupInterval(0)))
	require.NoError(t, err)
	defer registry.Close()

	assert.Equal(t, []string{"api", "auth", "buyback", "messaging", "payment", "search"}, registry.Names())

	auth, ok := registry.Class(models.ClassAuth)
	require.True(t, ok)
	assert.Equal(t, 5, auth.MaxRequests)
	assert.Equal(t, 15*time.Minute, auth.Window)

	limiter, ok := registry.Limiter(models.ClassAuth)
	require.True(t, ok)
	assert.IsType(t, &SlidingWindowLimiter{}, limiter)

	_, ok = registry.Limiter("unknown")
	assert.False(t, ok)
}

func TestNewRegistry_ClassesAreIndependent(t *testing.T) {
	registry, err := NewRegistry(models.DefaultRateLimitClasses(), MemoryFactory(WithCleanupInterval(0)))
	require.NoError(t, err)
	defer registry.Close()

	auth, _ := registry.Limiter(models.ClassAuth)
	for i := 0; i < 5; i++ {
		allowed, _ := auth.Allow("1.2.3.4")
		require.True(t, allowed)
	}
	allowed, _ := auth.Allow("1.2.3.4")
	assert.False(t, allowed, "auth budget exhausted")

	api, _ := registry.Limiter(models.ClassAPI)
	allowed, _ = api.Allow("1.2.3.4")
	assert.True(t, allowed, "api class keeps its own budget")
}

func TestNewRegistry_TokenBucketClass(t *testing.T) {
	classes := map[string]models.RateLimitClassConfig{
		models.ClassSearch: {MaxRequests: 10, Window: time.Second, Algorithm: models.AlgorithmTokenBucket},
	}
	registry, err := NewRegistry(classes, MemoryFactory(WithCleanupInterval(0)))
	require.NoError(t, err)
	defer registry.Close()

	limiter, _ := registry.Limiter(models.ClassSearch)
	assert.IsType(t, &TokenBucketLimiter{}, limiter)
}

func TestNewRegistry_UnsupportedAlgorithm(t *testing.T) {
	classes := map[string]models.RateLimitClassConfig{
		"odd": {MaxRequests: 1, Window: time.Second, Algorithm: "leaky_bucket"},
	}
	_, err := NewRegistry(classes, MemoryFactory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd")
}
