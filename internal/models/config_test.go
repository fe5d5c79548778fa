package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Storage defaults
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.True(t, config.Storage.Seed)

	// Rate limit classes
	classes := config.Security.RateLimit.Classes
	require.Len(t, classes, 6)
	assert.Equal(t, RateLimitClassConfig{MaxRequests: 5, Window: 15 * time.Minute, Algorithm: AlgorithmSlidingWindow}, classes[ClassAuth])
	assert.Equal(t, 100, classes[ClassAPI].MaxRequests)
	assert.Equal(t, 15*time.Minute, classes[ClassAPI].Window)
	assert.Equal(t, 60, classes[ClassSearch].MaxRequests)
	assert.Equal(t, time.Minute, classes[ClassSearch].Window)
	assert.Equal(t, 10, classes[ClassPayment].MaxRequests)
	assert.Equal(t, time.Hour, classes[ClassPayment].Window)
	assert.Equal(t, 5, classes[ClassBuyback].MaxRequests)
	assert.Equal(t, 30, classes[ClassMessaging].MaxRequests)

	// Governance defaults
	assert.True(t, config.Security.CSRF.Enabled)
	assert.Contains(t, config.Security.CSRF.ExemptPaths, "/api/csrf-token")
	assert.Equal(t, 1000, config.Security.Sanitizer.MaxLength)
	assert.True(t, config.Security.SuspiciousActivity.Enabled)

	// Cache defaults
	assert.Equal(t, 5*time.Minute, config.Cache.TTL)
	assert.Equal(t, 5*time.Minute, config.Cache.MaxAge)
	assert.Equal(t, time.Minute, config.Cache.StaleWhileRevalidate)
	assert.Equal(t, "@every 10m", config.Cache.SweepSchedule)
	assert.Equal(t, 10*time.Minute, config.Cache.Queries.Featured)
	assert.Equal(t, 30*time.Minute, config.Cache.Queries.Categories)
	assert.Equal(t, 5*time.Minute, config.Cache.Queries.Product)
	assert.Equal(t, 2*time.Minute, config.Cache.Queries.Search)

	assert.Equal(t, 30*time.Second, config.Inventory.TTL)
	assert.Equal(t, "opshop_sid", config.Session.CookieName)

	// Observability defaults
	assert.Equal(t, "opshop", config.Observability.ServiceName)
	assert.False(t, config.Observability.Tracing.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid port",
			mutate:   func(c *Config) { c.Server.Port = 0 },
			errorMsg: "invalid server config",
		},
		{
			name:     "tls without cert",
			mutate:   func(c *Config) { c.Server.TLSEnabled = true },
			errorMsg: "TLS cert file is required",
		},
		{
			name:     "unknown storage type",
			mutate:   func(c *Config) { c.Storage.Type = "xml" },
			errorMsg: "invalid storage type",
		},
		{
			name:     "json without path",
			mutate:   func(c *Config) { c.Storage.Type = StorageTypeJSON },
			errorMsg: "storage path is required",
		},
		{
			name:     "postgres without dsn",
			mutate:   func(c *Config) { c.Storage.Type = StorageTypePostgres },
			errorMsg: "database DSN is required",
		},
		{
			name: "class with zero ceiling",
			mutate: func(c *Config) {
				c.Security.RateLimit.Classes[ClassAuth] = RateLimitClassConfig{MaxRequests: 0, Window: time.Minute}
			},
			errorMsg: "max requests must be positive",
		},
		{
			name: "class with unknown algorithm",
			mutate: func(c *Config) {
				c.Security.RateLimit.Classes[ClassAuth] = RateLimitClassConfig{MaxRequests: 1, Window: time.Minute, Algorithm: "leaky"}
			},
			errorMsg: "unsupported algorithm",
		},
		{
			name:     "invalid rate limit backend",
			mutate:   func(c *Config) { c.Security.RateLimit.Backend = "memcached" },
			errorMsg: "invalid rate limit backend",
		},
		{
			name:     "sanitizer without max length",
			mutate:   func(c *Config) { c.Security.Sanitizer.MaxLength = 0 },
			errorMsg: "sanitizer max length",
		},
		{
			name:     "session without cookie name",
			mutate:   func(c *Config) { c.Session.CookieName = "" },
			errorMsg: "cookie name cannot be empty",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "invalid log level",
		},
		{
			name:     "file output without path",
			mutate:   func(c *Config) { c.Logging.Output = "file" },
			errorMsg: "file path is required",
		},
		{
			name:     "cache ttl zero",
			mutate:   func(c *Config) { c.Cache.TTL = 0 },
			errorMsg: "cache TTL must be positive",
		},
		{
			name: "disabled cache skips validation",
			mutate: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.TTL = 0
			},
		},
		{
			name:     "inventory ttl zero",
			mutate:   func(c *Config) { c.Inventory.TTL = 0 },
			errorMsg: "inventory",
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Session.Store = BackendRedis
				c.Redis.Addr = ""
			},
			errorMsg: "address is required",
		},
		{
			name:     "metrics port out of range",
			mutate:   func(c *Config) { c.Metrics.Port = 70000 },
			errorMsg: "metrics port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
