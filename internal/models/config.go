// Package models - Service configuration and operational settings.
// This file defines configuration structures for the request governance layer
// and the collaborators it sits in front of (catalog store, sessions, caches).
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, security, cache, etc.)
// - Defaults mirror the marketplace's production limits and work out of the box
// - Validation catches misconfigurations before the server starts listening
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeJSON     = "json"
)

// Backend constants shared by the rate limiter, session store and response cache.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Rate limit algorithm constants
const (
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
)

// Endpoint class names. Each class gets its own independently keyed limiter.
const (
	ClassAPI       = "api"
	ClassAuth      = "auth"
	ClassSearch    = "search"
	ClassPayment   = "payment"
	ClassBuyback   = "buyback"
	ClassMessaging = "messaging"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Catalog/inventory backing store
// - Security: Rate limiting, CSRF, sanitization, suspicious activity detection
// - Session: Cookie-bound session storage (CSRF tokens live here)
// - Logging: Structured logging and output configuration
// - Cache: Response cache and memoized query TTLs
// - Inventory: Inventory sync cache freshness
// - Redis: Shared backend for multi-instance deployments
// - Metrics / Observability: Prometheus and OpenTelemetry
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Inventory     InventoryConfig     `yaml:"inventory" json:"inventory"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Seed     bool           `yaml:"seed" json:"seed"`

	// Path and CacheTTL apply to the json file backend only.
	Path     string        `yaml:"path" json:"path"`
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// SecurityConfig groups every stage of the request governance pipeline.
type SecurityConfig struct {
	RateLimit          RateLimitConfig          `yaml:"rate_limit" json:"rate_limit"`
	CSRF               CSRFConfig               `yaml:"csrf" json:"csrf"`
	Sanitizer          SanitizerConfig          `yaml:"sanitizer" json:"sanitizer"`
	SuspiciousActivity SuspiciousActivityConfig `yaml:"suspicious_activity" json:"suspicious_activity"`

	// StaffKeys are bearer tokens allowed to change inventory. When empty the
	// staff routes are open, which is only meant for local development.
	StaffKeys []string `yaml:"staff_keys" json:"-"`
}

// RateLimitConfig configures the per-class limiters.
//
// TrustProxyHeaders controls whether X-Forwarded-For / X-Real-IP are used to
// identify the client. Enable it only behind a reverse proxy that overwrites them.
type RateLimitConfig struct {
	Enabled           bool                            `yaml:"enabled" json:"enabled"`
	Backend           string                          `yaml:"backend" json:"backend"`
	TrustProxyHeaders bool                            `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
	MaxKeys           int                             `yaml:"max_keys" json:"max_keys"`
	CleanupInterval   time.Duration                   `yaml:"cleanup_interval" json:"cleanup_interval"`
	Classes           map[string]RateLimitClassConfig `yaml:"classes" json:"classes"`
}

type RateLimitClassConfig struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
	Algorithm   string        `yaml:"algorithm" json:"algorithm"`
}

type CSRFConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	ExemptPaths []string `yaml:"exempt_paths" json:"exempt_paths"`
}

type SanitizerConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	MaxLength int  `yaml:"max_length" json:"max_length"`
}

type SuspiciousActivityConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	BlockUserAgents bool     `yaml:"block_user_agents" json:"block_user_agents"`
	UserAgents      []string `yaml:"user_agents" json:"user_agents"`
}

type SessionConfig struct {
	CookieName      string        `yaml:"cookie_name" json:"cookie_name"`
	TTL             time.Duration `yaml:"ttl" json:"ttl"`
	Secure          bool          `yaml:"secure" json:"secure"`
	Store           string        `yaml:"store" json:"store"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// CacheConfig configures the GET response cache and the memoized catalog queries.
type CacheConfig struct {
	Enabled              bool             `yaml:"enabled" json:"enabled"`
	Type                 string           `yaml:"type" json:"type"`
	TTL                  time.Duration    `yaml:"ttl" json:"ttl"`
	MaxAge               time.Duration    `yaml:"max_age" json:"max_age"`
	StaleWhileRevalidate time.Duration    `yaml:"stale_while_revalidate" json:"stale_while_revalidate"`
	SweepSchedule        string           `yaml:"sweep_schedule" json:"sweep_schedule"`
	Queries              QueryCacheConfig `yaml:"queries" json:"queries"`
}

type QueryCacheConfig struct {
	Featured   time.Duration `yaml:"featured" json:"featured"`
	Categories time.Duration `yaml:"categories" json:"categories"`
	Product    time.Duration `yaml:"product" json:"product"`
	Search     time.Duration `yaml:"search" json:"search"`
}

type InventoryConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultRateLimitClasses returns the ceilings used by the marketplace for
// each endpoint class.
func DefaultRateLimitClasses() map[string]RateLimitClassConfig {
	return map[string]RateLimitClassConfig{
		ClassAPI:       {MaxRequests: 100, Window: 15 * time.Minute, Algorithm: AlgorithmSlidingWindow},
		ClassAuth:      {MaxRequests: 5, Window: 15 * time.Minute, Algorithm: AlgorithmSlidingWindow},
		ClassSearch:    {MaxRequests: 60, Window: time.Minute, Algorithm: AlgorithmSlidingWindow},
		ClassPayment:   {MaxRequests: 10, Window: time.Hour, Algorithm: AlgorithmSlidingWindow},
		ClassBuyback:   {MaxRequests: 5, Window: time.Hour, Algorithm: AlgorithmSlidingWindow},
		ClassMessaging: {MaxRequests: 30, Window: time.Hour, Algorithm: AlgorithmSlidingWindow},
	}
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory storage and caches: single-instance deployment without external services
// - Rate limiting, CSRF, sanitization enabled: governance is on from the start
// - Response cache 5m TTL, max-age 5m, stale-while-revalidate 1m, swept every 10m
// - Inventory freshness 30s
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-CSRF-Token"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Seed: true,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:         true,
				Backend:         BackendMemory,
				MaxKeys:         100000,
				CleanupInterval: 5 * time.Minute,
				Classes:         DefaultRateLimitClasses(),
			},
			CSRF: CSRFConfig{
				Enabled:     true,
				ExemptPaths: []string{"/api/auth/", "/api/login", "/api/logout", "/api/csrf-token"},
			},
			Sanitizer: SanitizerConfig{
				Enabled:   true,
				MaxLength: 1000,
			},
			SuspiciousActivity: SuspiciousActivityConfig{
				Enabled:         true,
				BlockUserAgents: true,
			},
		},
		Session: SessionConfig{
			CookieName:      "opshop_sid",
			TTL:             24 * time.Hour,
			Store:           BackendMemory,
			CleanupInterval: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Enabled:              true,
			Type:                 BackendMemory,
			TTL:                  5 * time.Minute,
			MaxAge:               5 * time.Minute,
			StaleWhileRevalidate: time.Minute,
			SweepSchedule:        "@every 10m",
			Queries: QueryCacheConfig{
				Featured:   10 * time.Minute,
				Categories: 30 * time.Minute,
				Product:    5 * time.Minute,
				Search:     2 * time.Minute,
			},
		},
		Inventory: InventoryConfig{
			TTL: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "opshop",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "opshop",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	if c.Inventory.TTL <= 0 {
		return errors.New("invalid inventory config: ttl must be positive")
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return errors.New("invalid redis config: address is required when a redis backend is selected")
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

// UsesRedis reports whether any component is configured with the redis backend.
func (c *Config) UsesRedis() bool {
	return (c.Security.RateLimit.Enabled && c.Security.RateLimit.Backend == BackendRedis) ||
		c.Session.Store == BackendRedis ||
		(c.Cache.Enabled && c.Cache.Type == BackendRedis)
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("storage path is required for json storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (sec *SecurityConfig) Validate() error {
	rl := sec.RateLimit
	if rl.Enabled {
		if rl.Backend != BackendMemory && rl.Backend != BackendRedis {
			return fmt.Errorf("invalid rate limit backend: %s", rl.Backend)
		}
		if rl.MaxKeys < 0 {
			return errors.New("rate limit max keys cannot be negative")
		}
		for name, class := range rl.Classes {
			if class.MaxRequests <= 0 {
				return fmt.Errorf("rate limit class %s: max requests must be positive", name)
			}
			if class.Window <= 0 {
				return fmt.Errorf("rate limit class %s: window must be positive", name)
			}
			switch class.Algorithm {
			case "", AlgorithmSlidingWindow, AlgorithmTokenBucket:
			default:
				return fmt.Errorf("rate limit class %s: unsupported algorithm %s", name, class.Algorithm)
			}
		}
	}

	if sec.Sanitizer.Enabled && sec.Sanitizer.MaxLength <= 0 {
		return errors.New("sanitizer max length must be positive")
	}

	return nil
}

func (s *SessionConfig) Validate() error {
	if s.CookieName == "" {
		return errors.New("cookie name cannot be empty")
	}
	if s.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if s.Store != BackendMemory && s.Store != BackendRedis {
		return fmt.Errorf("invalid session store: %s", s.Store)
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !oneOf(lc.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !oneOf(lc.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !oneOf(lc.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (cc *CacheConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}

	if !oneOf(cc.Type, BackendMemory, BackendRedis) {
		return fmt.Errorf("invalid cache type: %s", cc.Type)
	}

	if cc.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}

	if cc.MaxAge < 0 || cc.StaleWhileRevalidate < 0 {
		return errors.New("cache-control durations cannot be negative")
	}

	if cc.SweepSchedule == "" {
		return errors.New("sweep schedule cannot be empty")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
