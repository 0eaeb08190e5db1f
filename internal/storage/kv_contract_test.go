package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/service"
)

func increment(current []byte) ([]byte, error) {
	n := 0
	if len(current) > 0 {
		var err error
		n, err = strconv.Atoi(string(current))
		if err != nil {
			return nil, err
		}
	}
	return []byte(strconv.Itoa(n + 1)), nil
}

// runKVContract exercises the behavior every service.KV backend must share.
func runKVContract(t *testing.T, kv service.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("absent key reads as nil", func(t *testing.T) {
		value, err := kv.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "greeting", []byte(`["hello"]`)))
		value, err := kv.Get(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, `["hello"]`, string(value))
	})

	t.Run("update sees current value", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "n", []byte("41")))
		require.NoError(t, kv.Update(ctx, "n", increment))
		value, err := kv.Get(ctx, "n")
		require.NoError(t, err)
		assert.Equal(t, "42", string(value))
	})

	t.Run("failed update leaves value untouched", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "keep", []byte("original")))
		boom := errors.New("boom")
		err := kv.Update(ctx, "keep", func([]byte) ([]byte, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)

		value, err := kv.Get(ctx, "keep")
		require.NoError(t, err)
		assert.Equal(t, "original", string(value))
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		const workers, perWorker = 8, 20
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					assert.NoError(t, kv.Update(ctx, "concurrent", increment))
				}
			}()
		}
		wg.Wait()

		value, err := kv.Get(ctx, "concurrent")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers*perWorker), string(value))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "gone", []byte("x")))
		require.NoError(t, kv.Delete(ctx, "gone"))
		value, err := kv.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := kv.Get(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyString)
	})
}
