package testutil

import (
	"testing"

	"photobox/internal/box"
	"photobox/internal/database"
)

// NewTestStore creates a new in-memory SQLite store with schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T, clock box.Clock) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
