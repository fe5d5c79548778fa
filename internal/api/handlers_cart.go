package api

import (
	"errors"
	"log/slog"
	"net/http"
	"opshop/internal/catalog"
	"opshop/internal/models"
	"opshop/internal/session"
	"sort"
	"strconv"
	"strings"
)

// cartPrefix namespaces cart lines in the session: "cart:<product id>" maps
// to the quantity.
const cartPrefix = "cart:"

const defaultCurrency = "NZD"

// cartLines reads the session cart as product id to quantity.
func cartLines(s *session.Session) map[string]int {
	lines := make(map[string]int)
	for key, value := range s.Clone().Values {
		id, ok := strings.CutPrefix(key, cartPrefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			lines[id] = n
		}
	}
	return lines
}

// buildCart prices the session cart against the catalog. Lines whose product
// has disappeared are dropped.
func (h *Handlers) buildCart(r *http.Request, s *session.Session) (models.CartResponse, error) {
	cart := models.CartResponse{CartID: s.ID, Items: []models.CartItem{}}
	for id, qty := range cartLines(s) {
		p, err := h.catalog.GetProduct(r.Context(), id)
		if errors.Is(err, catalog.ErrProductNotFound) {
			s.Delete(cartPrefix + id)
			continue
		}
		if err != nil {
			return cart, err
		}
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:  id,
			Title:      p.Title,
			Quantity:   qty,
			PriceCents: p.PriceCents,
		})
		cart.ItemCount += qty
		cart.TotalCents += p.PriceCents * int64(qty)
	}
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ProductID < cart.Items[j].ProductID })
	return cart, nil
}

// GetCart handles GET /api/cart
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	cart, err := h.buildCart(r, s)
	if err != nil {
		h.storeError(w, "cart", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, cart)
}

// AddCartItem handles POST /api/cart/items. The requested total for the
// product must be covered by current inventory.
func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req models.CartItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	if _, err := h.catalog.GetProduct(r.Context(), req.ProductID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeProductNotFound, "Product not found")
			return
		}
		h.storeError(w, "cart product", err)
		return
	}

	current := cartLines(s)[req.ProductID]
	if available := h.inventory.Quantity(r.Context(), req.ProductID); req.Quantity > available-current {
		slog.Info("Cart add exceeds stock", "product_id", req.ProductID, "in_cart", current, "requested", req.Quantity, "available", available)
		h.writeErrorResponse(w, http.StatusConflict, models.ErrorCodeInsufficientStock,
			"Only "+strconv.Itoa(available)+" available")
		return
	}
	s.Set(cartPrefix+req.ProductID, strconv.Itoa(current+req.Quantity))

	cart, err := h.buildCart(r, s)
	if err != nil {
		h.storeError(w, "cart", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, cart)
}

// CreatePaymentIntent handles POST /api/checkout/payment-intent. The cart id
// must be the caller's own session cart.
func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req models.PaymentIntentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}
	if req.CartID != s.ID {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "Cart not found")
		return
	}

	cart, err := h.buildCart(r, s)
	if err != nil {
		h.storeError(w, "cart", err)
		return
	}
	if len(cart.Items) == 0 {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeEmptyCart, "Cart is empty")
		return
	}

	provider := strings.ToLower(req.Provider)
	result, err := h.payments.CreateIntent(r.Context(), PaymentIntent{
		Provider:    provider,
		CartID:      cart.CartID,
		AmountCents: cart.TotalCents,
		Currency:    defaultCurrency,
	})
	if err != nil {
		slog.Error("Payment intent failed", "provider", provider, "error", err)
		h.writeErrorResponse(w, http.StatusBadGateway, models.ErrorCodePaymentGateway, "Payment provider unavailable, please try again")
		return
	}

	slog.Info("Payment intent created", "provider", provider, "intent_id", result.ID, "amount_cents", cart.TotalCents)
	h.writeJSONResponse(w, http.StatusCreated, models.PaymentIntentResponse{
		IntentID:     result.ID,
		Provider:     provider,
		ClientSecret: result.ClientSecret,
		Status:       result.Status,
		AmountCents:  cart.TotalCents,
		Currency:     defaultCurrency,
	})
}
