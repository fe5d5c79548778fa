package api

import (
	"net/http"
	"opshop/internal/models"
	"opshop/internal/pipeline"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes. Every /api route except health runs
// behind the governance pipeline for its endpoint class.
func SetupRoutes(handlers *Handlers, p *pipeline.Pipeline, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	governed := func(path string, h http.HandlerFunc, ropts ...pipeline.Option) http.Handler {
		return p.Chain(pipeline.ClassFor("/api"+path), h, ropts...)
	}

	if p.Guard != nil {
		api.Handle("/csrf-token", governed("/csrf-token", p.Guard.TokenHandler)).Methods("GET")
	}

	// Catalog reads are cached responses over memoized queries.
	api.Handle("/products/featured", governed("/products/featured", handlers.FeaturedProducts, pipeline.Cached())).Methods("GET")
	api.Handle("/categories", governed("/categories", handlers.Categories, pipeline.Cached())).Methods("GET")
	api.Handle("/search", governed("/search", handlers.Search, pipeline.Cached())).Methods("GET")
	api.Handle("/products/{id}", governed("/products/{id}", handlers.GetProduct, pipeline.Cached())).Methods("GET")
	api.Handle("/products/{id}/availability", governed("/products/{id}/availability", handlers.Availability)).Methods("GET")

	staff := staffAuthMiddleware(config.Security.StaffKeys)
	api.Handle("/products/{id}/quantity", governed("/products/{id}/quantity",
		staff(http.HandlerFunc(handlers.UpdateQuantity)).ServeHTTP)).Methods("PUT")

	api.Handle("/auth/login", governed("/auth/login", handlers.Login)).Methods("POST")
	api.Handle("/auth/logout", governed("/auth/logout", handlers.Logout)).Methods("POST")

	api.Handle("/cart", governed("/cart", handlers.GetCart)).Methods("GET")
	api.Handle("/cart/items", governed("/cart/items", handlers.AddCartItem)).Methods("POST")
	api.Handle("/checkout/payment-intent", governed("/checkout/payment-intent", handlers.CreatePaymentIntent)).Methods("POST")
	api.Handle("/buyback/submissions", governed("/buyback/submissions", handlers.SubmitBuyback)).Methods("POST")
	api.Handle("/messages", governed("/messages", handlers.SendMessage)).Methods("POST")

	api.PathPrefix("").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("OPTIONS")

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, models.ErrorCodeNotFound, "Resource not found")
	})

	return router
}
