package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"opshop/internal/api"
	"opshop/internal/cache"
	"opshop/internal/catalog"
	"opshop/internal/clock"
	"opshop/internal/config"
	"opshop/internal/csrf"
	"opshop/internal/governance"
	"opshop/internal/inventory"
	"opshop/internal/logger"
	"opshop/internal/models"
	"opshop/internal/observability"
	"opshop/internal/pipeline"
	"opshop/internal/ratelimit"
	"opshop/internal/sanitize"
	"opshop/internal/session"
	"opshop/internal/version"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
)

func main() {
	flag.Parse()
	ver := version.GetInfo()

	if *showVersion {
		fmt.Println(ver.String())
		return
	}
	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = connectRedis(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	clk := clock.Real()

	// Initialize the catalog store
	store, err := catalog.NewStore(context.Background(), cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize catalog store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wrap the store with instrumentation if metrics are enabled
	var activeStore catalog.Store = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStore(store)
		if err != nil {
			slog.Error("Failed to create instrumented catalog store", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented
	}
	queries := catalog.NewCached(activeStore, cfg.Cache.Queries, clk)
	stock := inventory.NewSyncCache(queries, cfg.Inventory.TTL, clk)

	metrics, err := observability.NewGovernanceMetrics()
	if err != nil {
		slog.Error("Failed to create governance metrics", "error", err)
		os.Exit(1)
	}
	errs := governance.NewWriter(metrics)
	keyFn := ratelimit.ClientIPKey(cfg.Security.RateLimit.TrustProxyHeaders)

	p := &pipeline.Pipeline{KeyFunc: keyFn, Errors: errs}
	var responseStore cache.Store
	sweeper := cache.NewSweeper(cron.New(), clk)

	if cfg.Security.SuspiciousActivity.Enabled {
		sa := cfg.Security.SuspiciousActivity
		p.Detector = sanitize.NewDetector(sa.BlockUserAgents, sa.UserAgents)
	}
	if cfg.Security.Sanitizer.Enabled {
		p.Sanitizer = sanitize.New(cfg.Security.Sanitizer.MaxLength)
	}

	if cfg.Security.RateLimit.Enabled {
		registry, err := ratelimit.NewRegistry(cfg.Security.RateLimit.Classes, limiterFactory(cfg, rdb))
		if err != nil {
			slog.Error("Failed to initialize rate limiters", "error", err)
			os.Exit(1)
		}
		defer registry.Close()
		p.Limiters = registry
		slog.Info("Rate limiting enabled", "backend", cfg.Security.RateLimit.Backend, "classes", registry.Names())
	}

	sessionStore := newSessionStore(cfg, rdb, clk)
	p.Sessions = session.NewManager(sessionStore, cfg.Session, clk)
	if cfg.Session.CleanupInterval > 0 {
		cleanup := func(ctx context.Context, _ time.Time) (int, error) { return sessionStore.Cleanup(ctx) }
		if err := sweeper.Add("sessions", every(cfg.Session.CleanupInterval), cleanup); err != nil {
			slog.Error("Failed to schedule session cleanup", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Security.CSRF.Enabled {
		p.Guard = csrf.NewGuard(cfg.Security.CSRF, keyFn, errs)
	}

	handlerOpts := []api.HandlerOption{api.WithClock(clk), api.WithVersion(ver), api.WithSessions(p.Sessions)}
	if cfg.Cache.Enabled {
		responseStore = newResponseStore(cfg, rdb)
		p.Cache = cache.NewResponseCache(responseStore, cfg.Cache, cache.WithClock(clk), cache.WithObserver(metrics))
		handlerOpts = append(handlerOpts, api.WithResponseCache(p.Cache))
		if err := sweeper.AddStore("responses", cfg.Cache.SweepSchedule, responseStore); err != nil {
			slog.Error("Failed to schedule response cache sweep", "error", err)
			os.Exit(1)
		}
	}
	for name, fn := range map[string]cache.SweepFunc{
		"queries":   queries.Sweep,
		"inventory": stock.Sweep,
	} {
		if err := sweeper.Add(name, cfg.Cache.SweepSchedule, fn); err != nil {
			slog.Error("Failed to schedule sweep", "job", name, "error", err)
			os.Exit(1)
		}
	}
	sweeper.Start()

	if cfg.Metrics.Enabled {
		gauges, err := observability.RegisterStateGauges(p.Limiters, responseStore)
		if err != nil {
			slog.Error("Failed to register state gauges", "error", err)
			os.Exit(1)
		}
		defer gauges.Unregister()
	}

	stock.OnUpdate(func(productID string, quantity int) {
		slog.Debug("Inventory updated", "product_id", productID, "quantity", quantity, "advisory", inventory.StockAdvisory(quantity))
	})

	handlers := api.NewHandlers(queries, stock, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, p, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "instance_id", ver.InstanceID, "storage", cfg.Storage.Type)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	sweeper.Stop(ctx)

	slog.Info("Server shutdown complete")
}

// connectRedis opens the shared client and checks it answers.
func connectRedis(cfg models.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func limiterFactory(cfg *models.Config, rdb *redis.Client) ratelimit.Factory {
	rl := cfg.Security.RateLimit
	if rl.Backend == models.BackendRedis {
		return ratelimit.RedisFactory(rdb, cfg.Redis.KeyPrefix)
	}
	return ratelimit.MemoryFactory(
		ratelimit.WithMaxKeys(rl.MaxKeys),
		ratelimit.WithCleanupInterval(rl.CleanupInterval),
	)
}

func newSessionStore(cfg *models.Config, rdb *redis.Client, clk clock.Clock) session.Store {
	if cfg.Session.Store == models.BackendRedis {
		return session.NewRedisStore(rdb, cfg.Redis.KeyPrefix, clk)
	}
	return session.NewMemoryStore(clk)
}

func newResponseStore(cfg *models.Config, rdb *redis.Client) cache.Store {
	if cfg.Cache.Type == models.BackendRedis {
		return cache.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	}
	return cache.NewMemoryStore()
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
