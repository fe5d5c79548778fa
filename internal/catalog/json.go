package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"opshop/internal/models"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultJSONCacheTTL is how long a loaded document is trusted before the
// file's modification time is checked again.
const DefaultJSONCacheTTL = 30 * time.Second

// JSONStore keeps the catalog in a single JSON document on disk. Queries are
// answered from an in-memory copy that is reloaded when the file changes, so
// the catalog can be edited by hand while the service runs.
type JSONStore struct {
	filePath     string
	cacheTTL     time.Duration
	mu           sync.RWMutex
	data         *MemoryStore
	lastModified time.Time
	cacheExpiry  time.Time
}

// jsonDocument is the on-disk layout.
type jsonDocument struct {
	Categories  []models.Category `json:"categories"`
	Products    []models.Product  `json:"products"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewJSONStore opens path, creating an empty catalog there if it is missing.
func NewJSONStore(path string, cacheTTL time.Duration) (*JSONStore, error) {
	if cacheTTL <= 0 {
		cacheTTL = DefaultJSONCacheTTL
	}
	j := &JSONStore{
		filePath: path,
		cacheTTL: cacheTTL,
	}

	if err := j.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}
	if err := j.load(); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return j, nil
}

func (j *JSONStore) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.save(NewMemoryStore())
	}
	return nil
}

// load refreshes the in-memory copy if the cache has expired and the file has
// been modified since it was last read. Double-checked locking keeps cache
// hits on the read lock.
func (j *JSONStore) load() error {
	j.mu.RLock()
	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		j.mu.RUnlock()
		return nil
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data != nil && time.Now().Before(j.cacheExpiry) {
		return nil
	}

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if j.data != nil && !info.ModTime().After(j.lastModified) {
		j.cacheExpiry = time.Now().Add(j.cacheTTL)
		return nil
	}

	raw, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	data := NewMemoryStore()
	for _, c := range doc.Categories {
		data.categories[c.ID] = c
	}
	for _, p := range doc.Products {
		if err := validateQuantity(p.Quantity); err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
		data.products[p.ID] = p
	}

	j.data = data
	j.lastModified = info.ModTime()
	j.cacheExpiry = time.Now().Add(j.cacheTTL)
	return nil
}

// save writes data to a temporary file and renames it over the catalog so a
// reader never sees a partial document. Callers hold j.mu.
func (j *JSONStore) save(data *MemoryStore) error {
	categories, products := data.snapshot()
	raw, err := json.MarshalIndent(jsonDocument{
		Categories:  categories,
		Products:    products,
		LastUpdated: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.filePath), ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}
	return nil
}

// current returns the loaded catalog, reloading it first if needed.
func (j *JSONStore) current() (*MemoryStore, error) {
	if err := j.load(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data, nil
}

// update applies fn to the loaded catalog and persists the result.
func (j *JSONStore) update(fn func(*MemoryStore) error) error {
	if err := j.load(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := fn(j.data); err != nil {
		return err
	}
	return j.save(j.data)
}

func (j *JSONStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	data, err := j.current()
	if err != nil {
		return nil, err
	}
	return data.FeaturedProducts(ctx)
}

func (j *JSONStore) Categories(ctx context.Context) ([]models.Category, error) {
	data, err := j.current()
	if err != nil {
		return nil, err
	}
	return data.Categories(ctx)
}

func (j *JSONStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	data, err := j.current()
	if err != nil {
		return nil, err
	}
	return data.GetProduct(ctx, id)
}

func (j *JSONStore) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	data, err := j.current()
	if err != nil {
		return nil, err
	}
	return data.Search(ctx, query, limit)
}

func (j *JSONStore) ProductQuantity(ctx context.Context, id string) (int, error) {
	data, err := j.current()
	if err != nil {
		return 0, err
	}
	return data.ProductQuantity(ctx, id)
}

func (j *JSONStore) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	return j.update(func(data *MemoryStore) error {
		return data.SetProductQuantity(ctx, id, quantity)
	})
}

func (j *JSONStore) SaveCategory(ctx context.Context, c models.Category) error {
	return j.update(func(data *MemoryStore) error {
		return data.SaveCategory(ctx, c)
	})
}

func (j *JSONStore) SaveProduct(ctx context.Context, p models.Product) error {
	return j.update(func(data *MemoryStore) error {
		return data.SaveProduct(ctx, p)
	})
}

// Ping checks the catalog file is still readable.
func (j *JSONStore) Ping(_ context.Context) error {
	_, err := os.Stat(j.filePath)
	return err
}

func (j *JSONStore) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data = nil
	j.cacheExpiry = time.Time{}
	return nil
}
