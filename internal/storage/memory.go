package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryKV is an in-process service.KV. It is not shared across processes and
// is meant for tests and the "memory" backend.
type MemoryKV struct {
	data map[string][]byte
	mu   sync.Mutex
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value, or nil when absent.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.data[key]), nil
}

// Set stores a copy of value.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = clone(value)
	return nil
}

// Update holds the store lock for the whole read-modify-write.
func (m *MemoryKV) Update(_ context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: fn", ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(clone(m.data[key]))
	if err != nil {
		return err
	}
	m.data[key] = clone(next)
	return nil
}

// Delete removes key.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Ping always succeeds.
func (m *MemoryKV) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryKV) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
