// Package models - Marketplace catalog entities.
// Products and categories are owned by the backing data store; the governance
// layer only reads them through the memoized catalog wrappers.
package models

import "time"

// Product is a second-hand listing.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CategoryID  string    `json:"category_id"`
	PriceCents  int64     `json:"price_cents"`
	Condition   string    `json:"condition"`
	Location    string    `json:"location,omitempty"`
	Featured    bool      `json:"featured"`
	Quantity    int       `json:"quantity"`
	SellerID    string    `json:"seller_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
