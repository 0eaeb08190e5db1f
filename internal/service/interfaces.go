// Package service defines the interfaces shared between application packages.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/smart-captures/internal/model"
)

// KV is a namespaced key/value store holding small JSON documents.
// Get returns (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Update performs an atomic read-modify-write of a single key. fn receives
	// the current value (nil when absent) and returns the value to store.
	// Implementations must serialize Update against every other writer of the
	// same key, including writers in other processes.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// TransactionFilter defines filtering options for ledger queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	UserID    string
	Limit     int
}

// Ledger is the store of confirmed transactions.
type Ledger interface {
	// CreateTransaction inserts txn. When a row with the same non-empty
	// SourceRef already exists it is returned instead and no row is added.
	CreateTransaction(ctx context.Context, txn model.Transaction) (model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	// OnRetry, when set, is called before each wait with the failed attempt
	// number and its error.
	OnRetry func(attempt int, err error)
	// Operation labels retry log lines.
	Operation    string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by up to this fraction in either direction.
	// Zero keeps delays exact.
	Jitter float64
}
