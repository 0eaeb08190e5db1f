// Package queue holds transaction candidates awaiting the user's decision.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// DefaultKey is the store key holding the candidate list.
const DefaultKey = "sms:pending"

var (
	// ErrTerminalStatus is returned when changing a candidate that was
	// already added or ignored.
	ErrTerminalStatus = errors.New("candidate status is final")
	// ErrInvalidCandidate wraps validation failures.
	ErrInvalidCandidate = errors.New("invalid candidate")
	// ErrInvalidStatus is returned for statuses outside pending/added/ignored.
	ErrInvalidStatus = errors.New("invalid candidate status")

	errUnknownID = errors.New("unknown candidate")
)

// NewCandidate carries the fields extracted at ingest time.
type NewCandidate struct {
	OccurredAt        time.Time
	Amount            decimal.Decimal
	RawText           string
	Title             string
	Bank              string
	SuggestedCategory string
}

// Queue is the persisted list of candidates, newest first. Every mutation is
// written to the store before the in-memory view changes, so a failed write
// leaves both untouched.
type Queue struct {
	kv       service.KV
	clock    service.Clock
	logger   *slog.Logger
	validate *validator.Validate
	newID    func(time.Time) string
	key      string
	items    []model.PendingCandidate
	mu       sync.RWMutex
	loaded   bool
}

// New creates a queue stored under key in kv. An empty key selects DefaultKey.
func New(kv service.KV, key string, clock service.Clock, logger *slog.Logger) *Queue {
	if key == "" {
		key = DefaultKey
	}
	if clock == nil {
		clock = service.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		kv:       kv,
		key:      key,
		clock:    clock,
		logger:   logger.With("component", "queue"),
		validate: newValidator(),
		newID:    generateID,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// generateID returns sms_<unix millis>_<6 random chars>.
func generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("sms_%d_%s", now.UnixMilli(), suffix)
}

// Load reads the persisted list. Calling it again is a no-op. An unreadable
// list is logged and treated as empty.
func (q *Queue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

func (q *Queue) loadLocked(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	data, err := q.kv.Get(ctx, q.key)
	if err != nil {
		return fmt.Errorf("failed to load candidate queue: %w", err)
	}
	q.items = q.decode(data)
	q.loaded = true
	q.logger.Debug("Loaded candidate queue", "count", len(q.items))
	return nil
}

func (q *Queue) decode(data []byte) []model.PendingCandidate {
	if len(data) == 0 {
		return nil
	}
	var items []model.PendingCandidate
	if err := json.Unmarshal(data, &items); err != nil {
		q.logger.Warn("Candidate queue unreadable, starting empty", "error", err)
		return nil
	}
	return items
}

// mutate applies fn to the stored list inside one atomic store update and
// adopts the result in memory only when the write succeeds.
func (q *Queue) mutate(ctx context.Context, fn func([]model.PendingCandidate) ([]model.PendingCandidate, error)) error {
	if err := q.loadLocked(ctx); err != nil {
		return err
	}

	var next []model.PendingCandidate
	err := q.kv.Update(ctx, q.key, func(current []byte) ([]byte, error) {
		items := q.decode(current)
		updated, err := fn(items)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			updated = []model.PendingCandidate{}
		}
		next = updated
		return json.Marshal(updated)
	})
	if err != nil {
		return err
	}
	q.items = next
	return nil
}

// Add creates a pending candidate at the head of the queue.
func (q *Queue) Add(ctx context.Context, nc NewCandidate) (model.PendingCandidate, error) {
	now := q.clock.Now()
	occurred := nc.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	candidate := model.PendingCandidate{
		ID:                q.newID(now),
		RawText:           nc.RawText,
		Amount:            nc.Amount,
		SuggestedTitle:    nc.Title,
		SuggestedBank:     nc.Bank,
		SuggestedCategory: nc.SuggestedCategory,
		OccurredAt:        occurred.UTC(),
		Status:            model.StatusPending,
	}
	if err := q.validate.Struct(candidate); err != nil {
		return model.PendingCandidate{}, fmt.Errorf("%w: %w", ErrInvalidCandidate, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.mutate(ctx, func(items []model.PendingCandidate) ([]model.PendingCandidate, error) {
		out := make([]model.PendingCandidate, 0, len(items)+1)
		out = append(out, candidate)
		return append(out, items...), nil
	})
	if err != nil {
		return model.PendingCandidate{}, fmt.Errorf("failed to persist candidate %s: %w", candidate.ID, err)
	}

	q.logger.Debug("Queued candidate", "candidate", candidate.String())
	return candidate, nil
}

// SetStatus moves a candidate to status. An unknown id is logged and ignored;
// a candidate already added or ignored cannot change.
func (q *Queue) SetStatus(ctx context.Context, id string, status model.CandidateStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.mutate(ctx, func(items []model.PendingCandidate) ([]model.PendingCandidate, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, errUnknownID
		}
		current := items[idx].Status
		if current == status {
			return items, nil
		}
		if current.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, current)
		}
		out := append([]model.PendingCandidate(nil), items...)
		out[idx].Status = status
		return out, nil
	})
	if errors.Is(err, errUnknownID) {
		q.logger.Warn("Status change for unknown candidate ignored", "id", id, "status", status)
		return nil
	}
	if err != nil {
		return err
	}

	q.logger.Debug("Candidate status changed", "id", id, "status", status)
	return nil
}

// ClearAll removes every candidate.
func (q *Queue) ClearAll(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.kv.Set(ctx, q.key, []byte("[]")); err != nil {
		return fmt.Errorf("failed to clear candidate queue: %w", err)
	}
	q.items = nil
	q.loaded = true
	return nil
}

// Get returns the candidate with id.
func (q *Queue) Get(id string) (model.PendingCandidate, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	idx := indexOf(q.items, id)
	if idx < 0 {
		return model.PendingCandidate{}, false
	}
	return q.items[idx], true
}

// ListPending returns candidates still awaiting a decision, newest first.
func (q *Queue) ListPending() []model.PendingCandidate {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.PendingCandidate
	for _, c := range q.items {
		if c.IsPending() {
			out = append(out, c)
		}
	}
	return out
}

// List returns every candidate including decided ones, newest first.
func (q *Queue) List() []model.PendingCandidate {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]model.PendingCandidate(nil), q.items...)
}

func indexOf(items []model.PendingCandidate, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
