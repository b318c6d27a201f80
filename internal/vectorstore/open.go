package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/metrics"
)

// Open picks the backend once at startup and makes sure its collection
// exists. With backend "auto" a Postgres pool wins, then a Qdrant URL, then
// the embedded SQLite file.
func Open(ctx context.Context, cfg config.VectorStoreConfig, dimension int, pool *pgxpool.Pool) (Store, error) {
	backend := cfg.Backend
	if backend == "" || backend == "auto" {
		switch {
		case pool != nil:
			backend = "postgres"
		case cfg.QdrantURL != "":
			backend = "qdrant"
		default:
			backend = "sqlite"
		}
	}

	var (
		store Store
		err   error
	)
	switch backend {
	case "postgres", "pgvector":
		if pool == nil {
			return nil, fmt.Errorf("vector store %s requires a database connection", backend)
		}
		store = NewPgStore(pool, cfg.Collection, dimension)
	case "qdrant":
		store = NewQdrantStore(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.Collection,
			Dimension:  dimension,
		})
	case "sqlite":
		store, err = NewSQLiteStore(cfg.SQLitePath, cfg.Collection, dimension)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", backend)
	}

	if err := store.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	metrics.VectorStoreMode.WithLabelValues(backend + ":" + string(store.Mode())).Set(1)
	slog.Info("vector store opened", "backend", backend, "mode", store.Mode(), "dimension", dimension)
	return store, nil
}
