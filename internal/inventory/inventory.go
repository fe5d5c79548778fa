// Package inventory keeps a short-lived cache of product stock levels in
// front of the primary store. Reads prefer availability over freshness: when
// the store fails, the last known quantity is served instead.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"opshop/internal/clock"
	"sync"
	"time"
)

// DefaultTTL is how long a fetched quantity is considered fresh.
const DefaultTTL = 30 * time.Second

// Source is the primary inventory store queried on a cache miss.
type Source interface {
	ProductQuantity(ctx context.Context, productID string) (int, error)
}

// Listener is told about quantities written through UpdateQuantity.
type Listener func(productID string, quantity int)

type record struct {
	quantity  int
	updatedAt time.Time
}

// SyncCache caches the last known quantity per product.
type SyncCache struct {
	source Source
	ttl    time.Duration
	clock  clock.Clock

	mu        sync.RWMutex
	records   map[string]record
	listeners []Listener
}

func NewSyncCache(source Source, ttl time.Duration, c clock.Clock) *SyncCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c == nil {
		c = clock.Real()
	}
	return &SyncCache{
		source:  source,
		ttl:     ttl,
		clock:   c,
		records: make(map[string]record),
	}
}

// Quantity returns the product's stock level. A fresh cached value is
// returned as is; otherwise the source is queried and the result cached. If
// the source fails the stale value is returned, or 0 when nothing was ever
// cached. It never returns an error to the caller.
func (c *SyncCache) Quantity(ctx context.Context, productID string) int {
	now := c.clock.Now()

	c.mu.RLock()
	rec, ok := c.records[productID]
	c.mu.RUnlock()
	if ok && now.Sub(rec.updatedAt) < c.ttl {
		return rec.quantity
	}

	q, err := c.source.ProductQuantity(ctx, productID)
	if err != nil {
		if ok {
			slog.Warn("Inventory fetch failed, serving stale quantity",
				"product_id", productID,
				"quantity", rec.quantity,
				"age", now.Sub(rec.updatedAt).String(),
				"error", err)
			return rec.quantity
		}
		slog.Warn("Inventory fetch failed with nothing cached",
			"product_id", productID,
			"error", err)
		return 0
	}

	c.mu.Lock()
	c.records[productID] = record{quantity: q, updatedAt: now}
	c.mu.Unlock()
	return q
}

// IsAvailable reports whether the product has stock.
func (c *SyncCache) IsAvailable(ctx context.Context, productID string) bool {
	return c.Quantity(ctx, productID) > 0
}

// UpdateQuantity writes a quantity straight into the cache so reads see it
// before the next fetch, then notifies listeners.
func (c *SyncCache) UpdateQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("invalid quantity %d for %s", quantity, productID)
	}

	c.mu.Lock()
	c.records[productID] = record{quantity: quantity, updatedAt: c.clock.Now()}
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(productID, quantity)
	}
	return nil
}

// OnUpdate registers a listener for UpdateQuantity.
func (c *SyncCache) OnUpdate(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Forget drops the cached value for a product.
func (c *SyncCache) Forget(productID string) {
	c.mu.Lock()
	delete(c.records, productID)
	c.mu.Unlock()
}

// Sweep drops records not refreshed for ten TTLs. Younger stale records are
// kept as a fallback.
func (c *SyncCache) Sweep(_ context.Context, now time.Time) (int, error) {
	cutoff := 10 * c.ttl
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, rec := range c.records {
		if now.Sub(rec.updatedAt) >= cutoff {
			delete(c.records, id)
			removed++
		}
	}
	return removed, nil
}

func (c *SyncCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// StockAdvisory returns the low-stock message shown next to a listing, or
// "" when stock is comfortable.
func StockAdvisory(quantity int) string {
	switch {
	case quantity <= 0:
		return "Out of Stock"
	case quantity == 1:
		return "Only 1 left!"
	case quantity <= 3:
		return fmt.Sprintf("Only %d left!", quantity)
	case quantity <= 5:
		return "Low stock"
	default:
		return ""
	}
}
