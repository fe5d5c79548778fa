package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"opshop/internal/models"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
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
	price_cents INTEGER NOT NULL,
	condition   TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	featured    INTEGER NOT NULL DEFAULT 0,
	quantity    INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	seller_id   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_featured ON products(featured, created_at);
`

const productColumns = `id, title, description, category_id, price_cents, condition, location, featured, quantity, seller_id, created_at`

// SQLiteStore is a lightweight single-file catalog backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn (a file path or "file::memory:") and creates the
// schema if needed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE featured = 1 ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query featured products: %w", err)
	}
	return scanSQLiteProducts(rows)
}

func (s *SQLiteStore) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, id LIMIT ?`,
		pattern, pattern, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return scanSQLiteProducts(rows)
}

func (s *SQLiteStore) ProductQuantity(ctx context.Context, id string) (int, error) {
	var q int
	err := s.db.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = ?`, id).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quantity: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) SetProductQuantity(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET quantity = ? WHERE id = ?`, quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return nil
}

func (s *SQLiteStore) SaveCategory(ctx context.Context, c models.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, slug = excluded.slug`,
		c.ID, c.Name, c.Slug)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveProduct(ctx context.Context, p models.Product) error {
	if err := validateQuantity(p.Quantity); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description,
			category_id = excluded.category_id, price_cents = excluded.price_cents,
			condition = excluded.condition, location = excluded.location,
			featured = excluded.featured, quantity = excluded.quantity,
			seller_id = excluded.seller_id, created_at = excluded.created_at`,
		p.ID, p.Title, p.Description, p.CategoryID, p.PriceCents, p.Condition, p.Location,
		boolToInt(p.Featured), p.Quantity, p.SellerID, p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (*models.Product, error) {
	var (
		p        models.Product
		featured int
		created  string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.CategoryID, &p.PriceCents,
		&p.Condition, &p.Location, &featured, &p.Quantity, &p.SellerID, &created)
	if err != nil {
		return nil, err
	}
	p.Featured = featured != 0
	p.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", p.ID, err)
	}
	return &p, nil
}

func scanSQLiteProducts(rows *sql.Rows) ([]models.Product, error) {
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
