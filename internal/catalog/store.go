// Package catalog is the backing data store the governance layer reads
// through: product listings, categories, search and per-product stock.
package catalog

import (
	"context"
	"errors"
	"opshop/internal/models"
	"strings"
)

var (
	// ErrProductNotFound is returned when a product ID does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidQuantity is returned when a negative stock level is written.
	ErrInvalidQuantity = errors.New("quantity cannot be negative")
)

// DefaultSearchLimit caps search results when the caller passes no limit.
const DefaultSearchLimit = 50

// Store defines the catalog queries and the inventory write path. It is
// implemented by the memory, SQLite and PostgreSQL backends.
type Store interface {
	// FeaturedProducts returns featured listings, newest first
	FeaturedProducts(ctx context.Context) ([]models.Product, error)

	// Categories returns every category ordered by name
	Categories(ctx context.Context) ([]models.Category, error)

	// GetProduct retrieves a product by its ID
	GetProduct(ctx context.Context, id string) (*models.Product, error)

	// Search matches query against titles and descriptions
	Search(ctx context.Context, query string, limit int) ([]models.Product, error)

	// ProductQuantity returns the current stock level of a product
	ProductQuantity(ctx context.Context, id string) (int, error)

	// SetProductQuantity overwrites the stock level of a product
	SetProductQuantity(ctx context.Context, id string, quantity int) error

	// SaveCategory stores or updates a category
	SaveCategory(ctx context.Context, c models.Category) error

	// SaveProduct stores or updates a product
	SaveProduct(ctx context.Context, p models.Product) error

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultSearchLimit {
		return DefaultSearchLimit
	}
	return limit
}

// likePattern escapes LIKE metacharacters and wraps q for a substring match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

func validateQuantity(q int) error {
	if q < 0 {
		return ErrInvalidQuantity
	}
	return nil
}
