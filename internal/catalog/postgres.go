package catalog

import (
	"context"
	"errors"
	"fmt"
	"opshop/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL REFERENCES categories(id),
	price_cents BIGINT NOT NULL,
	condition   TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	featured    BOOLEAN NOT NULL DEFAULT FALSE,
	quantity    INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	seller_id   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_products_featured ON products(featured, created_at DESC);
`

// PostgresStore is the production catalog backend on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects using cfg.DSN, applies the pool limits and
// creates the schema if needed.
func NewPostgresStore(ctx context.Context, cfg models.DatabaseConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(min(cfg.MaxIdleConns, int(poolCfg.MaxConns)))
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (ps *PostgresStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE featured ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query featured products: %w", err)
	}
	return collectProducts(rows)
}

func (ps *PostgresStore) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := ps.pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Category, error) {
		var c models.Category
		err := row.Scan(&c.ID, &c.Name, &c.Slug)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}
	return out, nil
}

func (ps *PostgresStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	rows, err := ps.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPgProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (ps *PostgresStore) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	pattern := likePattern(query)
	rows, err := ps.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE title ILIKE $1 OR description ILIKE $1
		 ORDER BY created_at DESC, id LIMIT $2`,
		pattern, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return collectProducts(rows)
}

func (ps *PostgresStore) ProductQuantity(ctx context.Context, id string) (int, error) {
	var q int
	err := ps.pool.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, id).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quantity: %w", err)
	}
	return q, nil
}

func (ps *PostgresStore) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	tag, err := ps.pool.Exec(ctx, `UPDATE products SET quantity = $1 WHERE id = $2`, quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return nil
}

func (ps *PostgresStore) SaveCategory(ctx context.Context, c models.Category) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug`,
		c.ID, c.Name, c.Slug)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (ps *PostgresStore) SaveProduct(ctx context.Context, p models.Product) error {
	if err := validateQuantity(p.Quantity); err != nil {
		return err
	}
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			category_id = EXCLUDED.category_id, price_cents = EXCLUDED.price_cents,
			condition = EXCLUDED.condition, location = EXCLUDED.location,
			featured = EXCLUDED.featured, quantity = EXCLUDED.quantity,
			seller_id = EXCLUDED.seller_id, created_at = EXCLUDED.created_at`,
		p.ID, p.Title, p.Description, p.CategoryID, p.PriceCents, p.Condition, p.Location,
		p.Featured, p.Quantity, p.SellerID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}

func scanPgProduct(row pgx.CollectableRow) (models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.CategoryID, &p.PriceCents,
		&p.Condition, &p.Location, &p.Featured, &p.Quantity, &p.SellerID, &p.CreatedAt)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]models.Product, error) {
	out, err := pgx.CollectRows(rows, scanPgProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	if out == nil {
		out = []models.Product{}
	}
	return out, nil
}
