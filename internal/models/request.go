// Package models - API request types and input validation.
// Request bodies arrive here already sanitized by the governance pipeline;
// validation only enforces business constraints.
package models

import (
	"errors"
	"fmt"
	"strings"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MaxCartQuantity caps a single cart add; secondhand stock never comes close.
const MaxCartQuantity = 1000

type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PaymentIntentRequest starts a checkout with an external payment gateway.
type PaymentIntentRequest struct {
	Provider string `json:"provider"`
	CartID   string `json:"cart_id"`
}

// BuybackSubmissionRequest asks for an instant buyback valuation of an item.
type BuybackSubmissionRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	PhotoURLs   []string `json:"photo_urls"`
}

type MessageRequest struct {
	RecipientID string `json:"recipient_id"`
	ProductID   string `json:"product_id,omitempty"`
	Body        string `json:"body"`
}

type QuantityUpdateRequest struct {
	Quantity int `json:"quantity"`
}

func (r *LoginRequest) Validate() error {
	if !strings.Contains(r.Email, "@") {
		return errors.New("email must be a valid address")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

func (r *CartItemRequest) Validate() error {
	if r.ProductID == "" {
		return errors.New("product_id is required")
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if r.Quantity > MaxCartQuantity {
		return fmt.Errorf("quantity cannot exceed %d", MaxCartQuantity)
	}
	return nil
}

func (r *PaymentIntentRequest) Validate() error {
	switch strings.ToLower(r.Provider) {
	case "stripe", "paypal":
	default:
		return errors.New("provider must be stripe or paypal")
	}
	if r.CartID == "" {
		return errors.New("cart_id is required")
	}
	return nil
}

func (r *BuybackSubmissionRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Condition == "" {
		return errors.New("condition is required")
	}
	if len(r.PhotoURLs) > 10 {
		return errors.New("at most 10 photos may be submitted")
	}
	return nil
}

func (r *MessageRequest) Validate() error {
	if r.RecipientID == "" {
		return errors.New("recipient_id is required")
	}
	if r.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

func (r *QuantityUpdateRequest) Validate() error {
	if r.Quantity < 0 {
		return errors.New("quantity cannot be negative")
	}
	return nil
}
