// Package testutil provides shared fixtures for tests: migrated stores, a
// controllable clock, an in-memory ledger and sample messages.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/smart-captures/internal/storage"
)

// SetupTestDB creates a migrated SQLite store in a temporary directory and
// closes it when the test ends.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	return OpenTestDB(t, filepath.Join(t.TempDir(), "captures.db"))
}

// OpenTestDB opens (and migrates) the store at path. Opening the same path
// twice yields two independent connections, which is how tests stand in for
// the capture process and the application process.
func OpenTestDB(t *testing.T, path string) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
