package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"opshop/internal/models"
	"time"
)

// MetricsServer serves Prometheus metrics on a port separate from the API so
// scrapes never pass through the governance pipeline or count against a
// client's rate limit.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(cfg models.MetricsConfig, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, provider.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start blocks serving metrics. It returns http.ErrServerClosed after Shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
