package main

import (
	"context"
	"fmt"
	"strings"

	"crowdedhouse/internal/config"
	"crowdedhouse/internal/store"
	"crowdedhouse/internal/store/postgres"
	"crowdedhouse/internal/store/sqlite"
)

// openDB picks the backend from the DSN scheme.
func openDB(ctx context.Context, cfg *config.ProjectConfig) (store.Store, error) {
	dsn := cfg.Database.DSN
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		db, err := sqlite.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database dsn scheme in %q", redactDSN(dsn))
	}
}

func redactDSN(dsn string) string {
	scheme, _, found := strings.Cut(dsn, "://")
	if !found {
		return "<invalid>"
	}
	return scheme + "://..."
}
