// Package ledger stores confirmed transactions in a remote Postgres table.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// Validation errors.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// querier is the subset of *pgxpool.Pool the ledger uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements service.Ledger on a "transactions" table.
type Postgres struct {
	db   querier
	pool *pgxpool.Pool
}

// Connect opens a pool and verifies it answers.
func Connect(ctx context.Context, cfg PoolConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: ledger DSN is required", common.ErrMissingConfig)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	return &Postgres{db: pool, pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
	date TIMESTAMPTZ NOT NULL,
	category TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	source_ref TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the transactions table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

const selectColumns = `id, user_id, name, amount::text, date, category, source, COALESCE(source_ref, ''), created_at`

// CreateTransaction implements service.Ledger. A row with the same
// source_ref is returned instead of inserting a second one.
func (p *Postgres) CreateTransaction(ctx context.Context, txn model.Transaction) (model.Transaction, error) {
	if err := validate(txn); err != nil {
		return model.Transaction{}, err
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}

	row := p.db.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, name, amount, date, category, source, source_ref)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, NULLIF($8, ''))
		ON CONFLICT (source_ref) DO NOTHING
		RETURNING `+selectColumns,
		txn.ID, txn.UserID, txn.Name, txn.Amount.StringFixed(2), txn.Date.UTC(),
		txn.Category, txn.Source, txn.SourceRef)

	created, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return p.findBySourceRef(ctx, txn.SourceRef)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return created, nil
}

func (p *Postgres) findBySourceRef(ctx context.Context, ref string) (model.Transaction, error) {
	row := p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE source_ref = $1`, ref)
	txn, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("%w: source_ref %s", common.ErrNotFound, ref)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to read transaction: %w", err)
	}
	return txn, nil
}

// GetTransaction implements service.Ledger.
func (p *Postgres) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}
	return &txn, nil
}

// ListTransactions implements service.Ledger.
func (p *Postgres) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		txn, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

// DeleteTransaction implements service.Ledger.
func (p *Postgres) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return nil
}

func buildListQuery(filter service.TransactionFilter) (string, []any, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return "", nil, ErrInvalidDateRange
	}

	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.StartDate != nil {
		add("date >= $%d", filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		add("date <= $%d", filter.EndDate.UTC())
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func scan(row pgx.Row) (model.Transaction, error) {
	var (
		txn    model.Transaction
		amount string
	)
	err := row.Scan(&txn.ID, &txn.UserID, &txn.Name, &amount, &txn.Date,
		&txn.Category, &txn.Source, &txn.SourceRef, &txn.CreatedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return txn, nil
}

func validate(txn model.Transaction) error {
	switch {
	case strings.TrimSpace(txn.Name) == "":
		return fmt.Errorf("%w: transaction name is required", ErrInvalidTransaction)
	case strings.TrimSpace(txn.Category) == "":
		return fmt.Errorf("%w: transaction category is required", ErrInvalidTransaction)
	case txn.Date.IsZero():
		return fmt.Errorf("%w: transaction date is required", ErrInvalidTransaction)
	case !txn.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	return nil
}

var _ service.Ledger = (*Postgres)(nil)
