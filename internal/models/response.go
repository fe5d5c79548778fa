// Package models - API response types and error handling.
// This file defines outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes alongside human-readable messages
// - RFC3339 timestamps
package models

import (
	"time"
)

// ErrorResponse provides structured error information.
//
// Error is a short title ("Invalid CSRF token", "Too many requests"), Message
// explains what the client should do, Code is machine-readable. RetryAfter is
// only set on rate limit rejections.
type ErrorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	RetryAfter string    `json:"retryAfter,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// CSRFTokenResponse is returned by GET /api/csrf-token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
	Message   string `json:"message"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ProductListResponse struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"total_count"`
}

type CategoryListResponse struct {
	Categories []Category `json:"categories"`
}

type SearchResponse struct {
	Query      string    `json:"query"`
	Products   []Product `json:"products"`
	TotalCount int       `json:"total_count"`
}

// AvailabilityResponse reports inventory for a single product.
type AvailabilityResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
	Advisory  string `json:"advisory,omitempty"`
}

// AcceptedResponse acknowledges a mutating request.
type AcceptedResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// CartItem is one product line in the session cart.
type CartItem struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// CartResponse is the session cart. CartID is what a payment intent names.
type CartResponse struct {
	CartID     string     `json:"cart_id"`
	Items      []CartItem `json:"items"`
	ItemCount  int        `json:"item_count"`
	TotalCents int64      `json:"total_cents"`
}

// PaymentIntentResponse carries what the browser needs to finish payment with
// the provider.
type PaymentIntentResponse struct {
	IntentID     string `json:"intent_id"`
	Provider     string `json:"provider"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

type SessionResponse struct {
	UserID    string `json:"user_id,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
	Message   string `json:"message"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Governance codes are stable and consumed by the frontend
const (
	ErrorCodeNotFound            = "NOT_FOUND"              // 404: Resource doesn't exist
	ErrorCodeProductNotFound     = "PRODUCT_NOT_FOUND"      // 404: Product doesn't exist
	ErrorCodeBadRequest          = "BAD_REQUEST"            // 400: Invalid request format
	ErrorCodeValidation          = "VALIDATION_ERROR"       // 422: Input validation failed
	ErrorCodeInternalError       = "INTERNAL_ERROR"         // 500: Server-side error
	ErrorCodeUnauthorized        = "UNAUTHORIZED"           // 401: Authentication required
	ErrorCodeForbidden           = "FORBIDDEN"              // 403: Permission denied
	ErrorCodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"     // 405: Wrong HTTP method
	ErrorCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"    // 503: Service temporarily down
	ErrorCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"    // 429: Too many requests
	ErrorCodeCSRFValidation      = "CSRF_VALIDATION_FAILED" // 403: Missing or mismatched CSRF token
	ErrorCodeSessionUnavailable  = "SESSION_UNAVAILABLE"    // 500: Session middleware missing or cookies disabled
	ErrorCodeSuspiciousActivity  = "SUSPICIOUS_ACTIVITY"    // 403: Denylist pattern matched
	ErrorCodeInsufficientStock   = "INSUFFICIENT_STOCK"     // 409: Not enough inventory for the cart
	ErrorCodeEmptyCart           = "EMPTY_CART"             // 422: Checkout without items
	ErrorCodePaymentGateway      = "PAYMENT_GATEWAY_ERROR"  // 502: Payment provider failed
)

// NewErrorResponse builds an ErrorResponse with the generic "error" title.
func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
