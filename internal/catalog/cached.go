package catalog

import (
	"context"
	"opshop/internal/cache"
	"opshop/internal/clock"
	"opshop/internal/models"
	"time"
)

type searchKey struct {
	query string
	limit int
}

// Cached memoizes the hot read paths of a Store, each with its own TTL.
// Writes go straight to the inner store and drop the affected entries.
type Cached struct {
	Store

	featured   *cache.Memoizer[struct{}, []models.Product]
	categories *cache.Memoizer[struct{}, []models.Category]
	products   *cache.Memoizer[string, *models.Product]
	search     *cache.Memoizer[searchKey, []models.Product]
}

func NewCached(inner Store, ttls models.QueryCacheConfig, clk clock.Clock) *Cached {
	return &Cached{
		Store: inner,
		featured: cache.NewMemoizer(ttls.Featured, clk, func(ctx context.Context, _ struct{}) ([]models.Product, error) {
			return inner.FeaturedProducts(ctx)
		}),
		categories: cache.NewMemoizer(ttls.Categories, clk, func(ctx context.Context, _ struct{}) ([]models.Category, error) {
			return inner.Categories(ctx)
		}),
		products: cache.NewMemoizer(ttls.Product, clk, inner.GetProduct),
		search: cache.NewMemoizer(ttls.Search, clk, func(ctx context.Context, k searchKey) ([]models.Product, error) {
			return inner.Search(ctx, k.query, k.limit)
		}),
	}
}

func (c *Cached) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	return c.featured.Get(ctx, struct{}{})
}

func (c *Cached) Categories(ctx context.Context) ([]models.Category, error) {
	return c.categories.Get(ctx, struct{}{})
}

func (c *Cached) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := c.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (c *Cached) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	return c.search.Get(ctx, searchKey{query: query, limit: normalizeLimit(limit)})
}

// SetProductQuantity writes through and drops the memoized product and
// featured listing, which both carry the quantity.
func (c *Cached) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	if err := c.Store.SetProductQuantity(ctx, id, quantity); err != nil {
		return err
	}
	c.products.Invalidate(id)
	c.featured.Purge()
	return nil
}

func (c *Cached) SaveProduct(ctx context.Context, p models.Product) error {
	if err := c.Store.SaveProduct(ctx, p); err != nil {
		return err
	}
	c.products.Invalidate(p.ID)
	c.featured.Purge()
	c.search.Purge()
	return nil
}

func (c *Cached) SaveCategory(ctx context.Context, cat models.Category) error {
	if err := c.Store.SaveCategory(ctx, cat); err != nil {
		return err
	}
	c.categories.Purge()
	return nil
}

// Sweep drops stale memoized results. It matches cache.SweepFunc so the
// cron sweeper can run it next to the response cache.
func (c *Cached) Sweep(_ context.Context, _ time.Time) (int, error) {
	return c.featured.Sweep() + c.categories.Sweep() + c.products.Sweep() + c.search.Sweep(), nil
}
