package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_KV(t *testing.T) {
	store := createTestStorage(t)
	runKVContract(t, store)
}

func TestMemoryKV(t *testing.T) {
	runKVContract(t, NewMemoryKV())
}

func TestSQLiteStorage_UpdateAcrossConnections(t *testing.T) {
	// Two storage handles on one file model the receiver process and the
	// application process sharing the relay key.
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	first, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	require.NoError(t, first.Migrate(ctx))

	second, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	const perWriter = 25
	var wg sync.WaitGroup
	for _, store := range []*SQLiteStorage{first, second} {
		wg.Add(1)
		go func(s *SQLiteStorage) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, s.Update(ctx, "counter", increment))
			}
		}(store)
	}
	wg.Wait()

	value, err := first.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "50", string(value))
}
