package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"opshop/internal/models"
)

// SupportedProviders lists the storage.type values NewStore accepts.
func SupportedProviders() []string {
	return []string{models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite, models.StorageTypeJSON}
}

// NewStore instantiates the backend named by cfg.Type and, when cfg.Seed is
// set, loads the demo catalog into it.
//   - memory: in-process maps (development and tests)
//   - sqlite: single-file database via modernc.org/sqlite
//   - postgres: pgx connection pool
//   - json: a single JSON document on disk, reloaded when it changes
func NewStore(ctx context.Context, cfg models.StorageConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case models.StorageTypeMemory:
		store = NewMemoryStore()
	case models.StorageTypeSQLite:
		store, err = NewSQLiteStore(cfg.Database.DSN)
	case models.StorageTypePostgres:
		store, err = NewPostgresStore(ctx, cfg.Database)
	case models.StorageTypeJSON:
		store, err = NewJSONStore(cfg.Path, cfg.CacheTTL)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Seed {
		if err := Seed(ctx, store); err != nil {
			store.Close()
			return nil, err
		}
		slog.Info("Catalog seeded", "type", cfg.Type, "products", len(SeedProducts), "categories", len(SeedCategories))
	}

	return store, nil
}
