package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"photobox/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory database", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewStoreFromConfig(ctx, cfg, "test-instance-123", nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := got.Persist(ctx, "abc"); err != nil {
			t.Errorf("Persist() on fresh store error = %v", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}
		got, err := NewStoreFromConfig(ctx, cfg, "test-instance-123", nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dir, "test-instance-123.db")); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewStoreFromConfig(ctx, cfg, "test-instance-123", nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("postgres without host", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "postgres", Name: "photos"}
		got, err := NewStoreFromConfig(ctx, cfg, "test-instance-123", nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing host, got nil")
		}
		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewStoreFromConfig(ctx, cfg, "test-instance-123", nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
		}
	})
}
