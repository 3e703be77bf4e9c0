// Package backend opens the record store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"specsbiz/backend/internal/config"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/store/memory"
	pgstore "specsbiz/backend/internal/store/postgres"
	"specsbiz/backend/internal/store/sqlite"
)

type Backend struct {
	Repo  store.Repository
	Mode  string
	Close func() error
}

// Open connects to the store for cfg.StoreMode and brings its schema up to
// date. Cloud mode never falls back to memory when Postgres is unreachable.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StoreMode {
	case config.StoreModeCloud:
		if cfg.DatabaseURL == "" {
			return Backend{}, fmt.Errorf("STORE_MODE=cloud requires DATABASE_URL")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return Backend{}, fmt.Errorf("postgres unavailable: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return Backend{}, fmt.Errorf("migrate postgres: %w", err)
		}
		return Backend{Repo: pg, Mode: cfg.StoreMode, Close: pg.Close}, nil
	case config.StoreModeLocal:
		path := cfg.SQLitePath
		if path == "" {
			path = "specsbiz.db"
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Repo: db, Mode: cfg.StoreMode, Close: db.Close}, nil
	default:
		return Backend{Repo: memory.NewSeeded(), Mode: config.StoreModeMemory, Close: func() error { return nil }}, nil
	}
}
