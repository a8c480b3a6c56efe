package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/returns-cli/internal/schema"
	"github.com/sells-group/returns-cli/internal/store"
)

// initStore opens the run registry backend named in the configuration.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "returns.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadContract reads the configured column contract, or the built-in
// returns template when no path is set.
func loadContract() (*schema.Contract, error) {
	if cfg.Schema.Path == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.Schema.Path)
}
