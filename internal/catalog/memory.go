package catalog

import (
	"context"
	"fmt"
	"opshop/internal/models"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps the catalog in maps. Data is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[string]models.Product
	categories map[string]models.Category
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[string]models.Product),
		categories: make(map[string]models.Category),
	}
}

func (m *MemoryStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Product, 0)
	for _, p := range m.products {
		if p.Featured {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Categories(ctx context.Context) ([]models.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Product, 0)
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ProductQuantity(ctx context.Context, id string) (int, error) {
	p, err := m.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Quantity, nil
}

func (m *MemoryStore) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	p.Quantity = quantity
	m.products[id] = p
	return nil
}

func (m *MemoryStore) SaveCategory(ctx context.Context, c models.Category) error {
	m.mu.Lock()
	m.categories[c.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SaveProduct(ctx context.Context, p models.Product) error {
	if err := validateQuantity(p.Quantity); err != nil {
		return err
	}
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func sortNewestFirst(ps []models.Product) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
}

// snapshot returns every category and product ordered by ID.
func (m *MemoryStore) snapshot() ([]models.Category, []models.Product) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := make([]models.Category, 0, len(m.categories))
	for _, c := range m.categories {
		categories = append(categories, c)
	}
	products := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return categories, products
}
