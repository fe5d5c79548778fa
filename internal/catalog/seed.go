package catalog

import (
	"context"
	"fmt"
	"opshop/internal/models"
	"time"
)

var seedEpoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

// SeedCategories and SeedProducts are a small demo catalog loaded when
// storage.seed is enabled.
var SeedCategories = []models.Category{
	{ID: "cat-furniture", Name: "Furniture", Slug: "furniture"},
	{ID: "cat-clothing", Name: "Clothing", Slug: "clothing"},
	{ID: "cat-books", Name: "Books", Slug: "books"},
	{ID: "cat-electronics", Name: "Electronics", Slug: "electronics"},
}

var SeedProducts = []models.Product{
	{ID: "prod-1001", Title: "Oak dining chair", Description: "Solid oak, minor scuffs on one leg", CategoryID: "cat-furniture", PriceCents: 4500, Condition: "good", Location: "Wellington", Featured: true, Quantity: 4, SellerID: "seller-1", CreatedAt: seedEpoch},
	{ID: "prod-1002", Title: "Brass table lamp", Description: "Vintage lamp, rewired", CategoryID: "cat-furniture", PriceCents: 3200, Condition: "very good", Location: "Auckland", Featured: true, Quantity: 1, SellerID: "seller-2", CreatedAt: seedEpoch.Add(24 * time.Hour)},
	{ID: "prod-1003", Title: "Wool overcoat", Description: "Charcoal, size M", CategoryID: "cat-clothing", PriceCents: 6000, Condition: "like new", Location: "Christchurch", Featured: false, Quantity: 2, SellerID: "seller-3", CreatedAt: seedEpoch.Add(48 * time.Hour)},
	{ID: "prod-1004", Title: "Paperback box set", Description: "Seven fantasy novels, lightly read", CategoryID: "cat-books", PriceCents: 2500, Condition: "good", Featured: true, Quantity: 0, SellerID: "seller-1", CreatedAt: seedEpoch.Add(72 * time.Hour)},
	{ID: "prod-1005", Title: "Turntable", Description: "Belt drive record player with new stylus", CategoryID: "cat-electronics", PriceCents: 12000, Condition: "good", Location: "Dunedin", Featured: false, Quantity: 8, SellerID: "seller-4", CreatedAt: seedEpoch.Add(96 * time.Hour)},
}

// Seed writes the demo catalog into s.
func Seed(ctx context.Context, s Store) error {
	for _, c := range SeedCategories {
		if err := s.SaveCategory(ctx, c); err != nil {
			return fmt.Errorf("failed to seed category %s: %w", c.ID, err)
		}
	}
	for _, p := range SeedProducts {
		if err := s.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
	}
	return nil
}
