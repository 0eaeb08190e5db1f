package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// MemoryLedger is an in-memory service.Ledger with failure injection.
type MemoryLedger struct {
	// CreateErr, when set, is returned by every CreateTransaction call.
	CreateErr error
	rows      map[string]model.Transaction
	mu        sync.Mutex
	creates   int
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make(map[string]model.Transaction)}
}

// FailCreates makes CreateTransaction return err until cleared with nil.
func (l *MemoryLedger) FailCreates(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CreateErr = err
}

// CreateCalls returns how many times CreateTransaction was invoked.
func (l *MemoryLedger) CreateCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates
}

// CreateTransaction implements service.Ledger.
func (l *MemoryLedger) CreateTransaction(_ context.Context, txn model.Transaction) (model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creates++

	if l.CreateErr != nil {
		return model.Transaction{}, l.CreateErr
	}
	if txn.SourceRef != "" {
		for _, existing := range l.rows {
			if existing.Source == txn.Source && existing.SourceRef == txn.SourceRef {
				return existing, nil
			}
		}
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	l.rows[txn.ID] = txn
	return txn, nil
}

// GetTransaction implements service.Ledger.
func (l *MemoryLedger) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn, ok := l.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return &txn, nil
}

// ListTransactions implements service.Ledger. Only UserID and Limit are honored.
func (l *MemoryLedger) ListTransactions(_ context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Transaction
	for _, txn := range l.rows {
		if filter.UserID != "" && txn.UserID != filter.UserID {
			continue
		}
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteTransaction implements service.Ledger.
func (l *MemoryLedger) DeleteTransaction(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[id]; !ok {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	delete(l.rows, id)
	return nil
}

var _ service.Ledger = (*MemoryLedger)(nil)
