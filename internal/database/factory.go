package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"photobox/internal/box"
	"photobox/internal/config"
)

// NewStoreFromConfig creates a Store based on the database config type.
// The schema is migrated to the latest version before the store is returned.
func NewStoreFromConfig(ctx context.Context, cfg config.DatabaseConfig, instanceID string, clock box.Clock) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return newSQLite(filepath.Join(cfg.DataDir, instanceID+".db"), clock)
	case "memory":
		return newSQLite(":memory:", clock)
	case "postgres":
		if cfg.Host == "" || cfg.Name == "" {
			return nil, fmt.Errorf("host and name required for postgres database")
		}
		store, err := NewPostgresStore(ctx, ConnString(cfg), clock)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// newSQLite keeps a typed nil from escaping as a non-nil Store.
func newSQLite(path string, clock box.Clock) (Store, error) {
	store, err := NewSQLiteStore(path, clock)
	if err != nil {
		return nil, err
	}
	return store, nil
}
