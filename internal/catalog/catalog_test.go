package catalog

import (
	"context"
	"errors"
	"opshop/internal/clock"
	"opshop/internal/models"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the same behavioural checks against every backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, Seed(ctx, s))

	t.Run("Categories ordered by name", func(t *testing.T) {
		cats, err := s.Categories(ctx)
		require.NoError(t, err)
		require.Len(t, cats, len(SeedCategories))
		assert.Equal(t, "Books", cats[0].Name)
		assert.Equal(t, "Furniture", cats[3].Name)
	})

	t.Run("Featured newest first", func(t *testing.T) {
		featured, err := s.FeaturedProducts(ctx)
		require.NoError(t, err)
		require.Len(t, featured, 3)
		assert.Equal(t, "prod-1004", featured[0].ID)
		assert.Equal(t, "prod-1001", featured[2].ID)
		for _, p := range featured {
			assert.True(t, p.Featured)
		}
	})

	t.Run("GetProduct", func(t *testing.T) {
		p, err := s.GetProduct(ctx, "prod-1002")
		require.NoError(t, err)
		assert.Equal(t, "Brass table lamp", p.Title)
		assert.Equal(t, int64(3200), p.PriceCents)
		assert.True(t, p.CreatedAt.Equal(seedEpoch.Add(24*time.Hour)))

		_, err = s.GetProduct(ctx, "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Search", func(t *testing.T) {
		got, err := s.Search(ctx, "LAMP", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "prod-1002", got[0].ID)

		got, err = s.Search(ctx, "record player", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "prod-1005", got[0].ID)

		got, err = s.Search(ctx, "100%", 10)
		require.NoError(t, err)
		assert.Empty(t, got, "LIKE metacharacters are matched literally")

		got, err = s.Search(ctx, "o", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Quantity", func(t *testing.T) {
		q, err := s.ProductQuantity(ctx, "prod-1001")
		require.NoError(t, err)
		assert.Equal(t, 4, q)

		require.NoError(t, s.SetProductQuantity(ctx, "prod-1001", 1))
		q, err = s.ProductQuantity(ctx, "prod-1001")
		require.NoError(t, err)
		assert.Equal(t, 1, q)

		assert.ErrorIs(t, s.SetProductQuantity(ctx, "prod-1001", -1), ErrInvalidQuantity)
		assert.ErrorIs(t, s.SetProductQuantity(ctx, "missing", 3), ErrProductNotFound)
		_, err = s.ProductQuantity(ctx, "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestJSONStore(t *testing.T) {
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "catalog.json"), time.Minute)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestJSONStore_CreatesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "catalog.json")
	s, err := NewJSONStore(path, 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DefaultJSONCacheTTL, s.cacheTTL)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cats, err := s.Categories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestJSONStore_PersistsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.json")

	s, err := NewJSONStore(path, time.Minute)
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, s))
	require.NoError(t, s.SetProductQuantity(ctx, "prod-1001", 9))
	assert.ErrorIs(t, s.SetProductQuantity(ctx, "prod-1001", -1), ErrInvalidQuantity)
	s.Close()

	reopened, err := NewJSONStore(path, time.Minute)
	require.NoError(t, err)
	defer reopened.Close()
	q, err := reopened.ProductQuantity(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, 9, q)
}

func TestJSONStore_ReloadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.json")

	s, err := NewJSONStore(path, time.Nanosecond)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveCategory(ctx, models.Category{ID: "cat-a", Name: "Art", Slug: "art"}))

	edited := `{"categories":[{"id":"cat-b","name":"Bikes","slug":"bikes"}],"products":[]}`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0600))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Bikes", cats[0].Name)
}

func TestJSONStore_RejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0600))
	_, err := NewJSONStore(corrupt, time.Minute)
	assert.ErrorContains(t, err, "failed to unmarshal JSON")

	negative := filepath.Join(dir, "negative.json")
	require.NoError(t, os.WriteFile(negative, []byte(`{"products":[{"id":"p","quantity":-2}]}`), 0600))
	_, err = NewJSONStore(negative, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSQLiteStore_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL tests")
	}
	s, err := NewPostgresStore(context.Background(), models.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore_EmptyDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), models.DatabaseConfig{})
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, models.StorageConfig{Type: models.StorageTypeMemory, Seed: true})
	require.NoError(t, err)
	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(SeedCategories))

	s, err = NewStore(ctx, models.StorageConfig{
		Type:     models.StorageTypeSQLite,
		Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "f.db")},
	})
	require.NoError(t, err)
	cats, err = s.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats, "no seed requested")
	s.Close()

	s, err = NewStore(ctx, models.StorageConfig{
		Type: models.StorageTypeJSON,
		Path: filepath.Join(t.TempDir(), "catalog.json"),
		Seed: true,
	})
	require.NoError(t, err)
	featured, err := s.FeaturedProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, featured, 3)
	s.Close()

	_, err = NewStore(ctx, models.StorageConfig{Type: "xml"})
	assert.ErrorContains(t, err, "unsupported storage type")

	assert.Equal(t, []string{"memory", "postgres", "sqlite", "json"}, SupportedProviders())
}

// countingStore counts calls to the read paths and can be told to fail.
type countingStore struct {
	Store
	featured, categories, products, search atomic.Int32
	fail                                   atomic.Bool
}

func (c *countingStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	c.featured.Add(1)
	return c.Store.FeaturedProducts(ctx)
}

func (c *countingStore) Categories(ctx context.Context) ([]models.Category, error) {
	c.categories.Add(1)
	return c.Store.Categories(ctx)
}

func (c *countingStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	c.products.Add(1)
	if c.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return c.Store.GetProduct(ctx, id)
}

func (c *countingStore) Search(ctx context.Context, q string, limit int) ([]models.Product, error) {
	c.search.Add(1)
	return c.Store.Search(ctx, q, limit)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	mem := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), mem))
	return &countingStore{Store: mem}
}

func TestCached_TTLs(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Unix(1700000000, 0))
	inner := newCountingStore(t)
	c := NewCached(inner, models.NewDefaultConfig().Cache.Queries, fake)

	for i := 0; i < 3; i++ {
		c.FeaturedProducts(ctx)
		c.Categories(ctx)
		c.GetProduct(ctx, "prod-1001")
		c.Search(ctx, "lamp", 10)
	}
	assert.Equal(t, int32(1), inner.featured.Load())
	assert.Equal(t, int32(1), inner.categories.Load())
	assert.Equal(t, int32(1), inner.products.Load())
	assert.Equal(t, int32(1), inner.search.Load())

	// search expires at 2m
	fake.Advance(2 * time.Minute)
	c.Search(ctx, "lamp", 10)
	c.GetProduct(ctx, "prod-1001")
	assert.Equal(t, int32(2), inner.search.Load())
	assert.Equal(t, int32(1), inner.products.Load())

	// product expires at 5m
	fake.Advance(3 * time.Minute)
	c.GetProduct(ctx, "prod-1001")
	c.FeaturedProducts(ctx)
	assert.Equal(t, int32(2), inner.products.Load())
	assert.Equal(t, int32(1), inner.featured.Load())

	// featured expires at 10m, categories at 30m
	fake.Advance(5 * time.Minute)
	c.FeaturedProducts(ctx)
	c.Categories(ctx)
	assert.Equal(t, int32(2), inner.featured.Load())
	assert.Equal(t, int32(1), inner.categories.Load())

	fake.Advance(20 * time.Minute)
	c.Categories(ctx)
	assert.Equal(t, int32(2), inner.categories.Load())
}

func TestCached_ErrorsNotMemoized(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStore(t)
	c := NewCached(inner, models.NewDefaultConfig().Cache.Queries, nil)

	inner.fail.Store(true)
	_, err := c.GetProduct(ctx, "prod-1001")
	assert.Error(t, err)

	inner.fail.Store(false)
	p, err := c.GetProduct(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, "prod-1001", p.ID)
	assert.Equal(t, int32(2), inner.products.Load())
}

func TestCached_QuantityWriteInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStore(t)
	c := NewCached(inner, models.NewDefaultConfig().Cache.Queries, nil)

	p, err := c.GetProduct(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Quantity)

	p.Quantity = 99
	again, _ := c.GetProduct(ctx, "prod-1001")
	assert.Equal(t, 4, again.Quantity, "callers get copies")

	require.NoError(t, c.SetProductQuantity(ctx, "prod-1001", 2))
	p, err = c.GetProduct(ctx, "prod-1001")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Quantity)
	assert.Equal(t, int32(2), inner.products.Load())
}

func TestCached_Sweep(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Unix(1700000000, 0))
	c := NewCached(newCountingStore(t), models.NewDefaultConfig().Cache.Queries, fake)

	c.FeaturedProducts(ctx)
	c.Categories(ctx)
	c.GetProduct(ctx, "prod-1001")
	c.Search(ctx, "lamp", 10)

	fake.Advance(6 * time.Minute)
	removed, err := c.Sweep(ctx, fake.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "product and search expired, featured and categories still fresh")
}
