package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"opshop/internal/cache"
	"opshop/internal/catalog"
	"opshop/internal/clock"
	"opshop/internal/inventory"
	"opshop/internal/models"
	"opshop/internal/session"
	"opshop/internal/version"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const maxRequestBody = 1 << 20

// Handlers contains the HTTP handlers for the marketplace API.
type Handlers struct {
	catalog   catalog.Store
	inventory *inventory.SyncCache
	sessions  *session.Manager
	responses *cache.ResponseCache
	payments  PaymentGateway
	clock     clock.Clock
	version   version.Info
	started   time.Time
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*Handlers)

// WithSessions enables login, logout and cart handlers.
func WithSessions(m *session.Manager) HandlerOption {
	return func(h *Handlers) { h.sessions = m }
}

// WithResponseCache lets write handlers drop cached GET responses.
func WithResponseCache(rc *cache.ResponseCache) HandlerOption {
	return func(h *Handlers) { h.responses = rc }
}

// WithPaymentGateway replaces the default offline gateway.
func WithPaymentGateway(g PaymentGateway) HandlerOption {
	return func(h *Handlers) { h.payments = g }
}

func WithClock(c clock.Clock) HandlerOption {
	return func(h *Handlers) { h.clock = c }
}

func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates the handlers over the (memoized) catalog and the
// inventory cache.
func NewHandlers(store catalog.Store, inv *inventory.SyncCache, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		catalog:   store,
		inventory: inv,
		payments:  OfflineGateway{},
		clock:     clock.Real(),
		version:   version.GetInfo(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.clock.Now()
	return h
}

// HealthCheck handles GET /health and GET /api/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = h.clock.Now().Sub(h.started).Round(time.Second).String()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := h.catalog.Ping(ctx); err != nil {
		slog.Warn("Health check: catalog unreachable", "error", err)
		response.Status = models.StatusDegraded
		response.AddComponent("catalog", models.StatusUnhealthy, "Catalog store is unreachable")
		status = http.StatusServiceUnavailable
	} else {
		response.AddComponent("catalog", models.StatusHealthy, "Catalog store is operational")
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, status, response)
}

// FeaturedProducts handles GET /api/products/featured
func (h *Handlers) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.FeaturedProducts(r.Context())
	if err != nil {
		h.storeError(w, "featured products", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.ProductListResponse{Products: products, TotalCount: len(products)})
}

// Categories handles GET /api/categories
func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.storeError(w, "categories", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.CategoryListResponse{Categories: categories})
}

// GetProduct handles GET /api/products/{id}
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	product, err := h.catalog.GetProduct(r.Context(), id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeProductNotFound, "Product not found")
		return
	}
	if err != nil {
		h.storeError(w, "product", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, product)
}

// Search handles GET /api/search?q=&limit=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Query parameter q is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	products, err := h.catalog.Search(r.Context(), query, limit)
	if err != nil {
		h.storeError(w, "search", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.SearchResponse{Query: query, Products: products, TotalCount: len(products)})
}

// Availability handles GET /api/products/{id}/availability
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := h.inventory.Quantity(r.Context(), id)
	h.writeJSONResponse(w, http.StatusOK, models.AvailabilityResponse{
		ProductID: id,
		Quantity:  q,
		Available: q > 0,
		Advisory:  inventory.StockAdvisory(q),
	})
}

// UpdateQuantity handles PUT /api/products/{id}/quantity. The store is
// written first; the inventory cache and cached responses follow so the next
// read sees the new level.
func (h *Handlers) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.QuantityUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	err := h.catalog.SetProductQuantity(r.Context(), id, req.Quantity)
	if errors.Is(err, catalog.ErrProductNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeProductNotFound, "Product not found")
		return
	}
	if err != nil {
		h.storeError(w, "quantity update", err)
		return
	}

	if err := h.inventory.UpdateQuantity(id, req.Quantity); err != nil {
		slog.Error("Inventory cache update failed", "product_id", id, "error", err)
	}
	h.invalidate(r.Context(), "/api/products/"+id, "/api/products/featured")
	h.invalidateSearches(r.Context())

	slog.Info("Product quantity updated", "product_id", id, "quantity", req.Quantity)
	h.writeJSONResponse(w, http.StatusOK, models.AvailabilityResponse{
		ProductID: id,
		Quantity:  req.Quantity,
		Available: req.Quantity > 0,
		Advisory:  inventory.StockAdvisory(req.Quantity),
	})
}

func (h *Handlers) invalidate(ctx context.Context, keys ...string) {
	if h.responses == nil {
		return
	}
	for _, key := range keys {
		if err := h.responses.Invalidate(ctx, key); err != nil {
			slog.Warn("Failed to invalidate cached response", "key", key, "error", err)
		}
	}
}

// invalidateSearches drops every cached search page, since any of them may
// list the product whose stock changed.
func (h *Handlers) invalidateSearches(ctx context.Context) {
	if h.responses == nil {
		return
	}
	if _, err := h.responses.InvalidatePrefix(ctx, "/api/search?"); err != nil {
		slog.Warn("Failed to invalidate cached searches", "error", err)
	}
}

// storeError logs a backing store failure and answers 500 without its detail.
func (h *Handlers) storeError(w http.ResponseWriter, what string, err error) {
	slog.Error("Catalog query failed", "query", what, "error", err)
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}

// decodeJSON reads a JSON body into dst, answering 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing else can be written.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	resp := models.NewErrorResponse(message, errorCode)
	resp.RequestID = w.Header().Get(RequestIDHeader)
	h.writeJSONResponse(w, statusCode, resp)
}
