// Package review turns pending candidates into ledger transactions or
// dismisses them.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/smart-captures/internal/classifier"
	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/service"
)

// DefaultName labels a transaction when nothing better is known.
const DefaultName = "SMS Transaction"

// Config tunes the workflow.
type Config struct {
	// UserID owns the transactions written to the ledger.
	UserID string
	// MinConfidence is the classifier threshold; weaker suggestions are
	// ignored. Zero selects classifier.DefaultMinConfidence.
	MinConfidence float64
}

// Workflow accepts and rejects candidates.
type Workflow struct {
	queue         *queue.Queue
	ledger        service.Ledger
	classifier    classifier.Classifier
	refiner       Refiner
	logger        *slog.Logger
	inFlight      map[string]struct{}
	userID        string
	minConfidence float64
	mu            sync.Mutex
}

// New creates a workflow. classifier and refiner may be nil.
func New(q *queue.Queue, ledger service.Ledger, c classifier.Classifier, refiner Refiner, cfg Config, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = classifier.DefaultMinConfidence
	}
	return &Workflow{
		queue:         q,
		ledger:        ledger,
		classifier:    c,
		refiner:       refiner,
		userID:        cfg.UserID,
		minConfidence: cfg.MinConfidence,
		logger:        logger.With("component", "review"),
		inFlight:      make(map[string]struct{}),
	}
}

func (w *Workflow) begin(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *Workflow) end(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

func (w *Workflow) pending(id string) (model.PendingCandidate, error) {
	c, ok := w.queue.Get(id)
	if !ok {
		return model.PendingCandidate{}, fmt.Errorf("%w: candidate %s", common.ErrNotFound, id)
	}
	if !c.IsPending() {
		return model.PendingCandidate{}, fmt.Errorf("%w: %s is %s", common.ErrNotPending, id, c.Status)
	}
	return c, nil
}

// Accept records the candidate in the ledger and marks it added. When the
// ledger write fails the candidate stays pending and may be accepted again;
// the ledger ignores the repeat because SourceRef carries the candidate id.
func (w *Workflow) Accept(ctx context.Context, id string) (model.Transaction, error) {
	if !w.begin(id) {
		return model.Transaction{}, fmt.Errorf("%w: %s", common.ErrInFlight, id)
	}
	defer w.end(id)

	c, err := w.pending(id)
	if err != nil {
		return model.Transaction{}, err
	}

	txn := w.buildTransaction(ctx, c)
	created, err := w.ledger.CreateTransaction(ctx, txn)
	if err != nil {
		w.logger.Error("Failed to add transaction", "id", id, "error", err)
		return model.Transaction{}, common.NewUserError("Failed to add transaction", err)
	}

	if err := w.queue.SetStatus(ctx, id, model.StatusAdded); err != nil {
		// The ledger row exists; a retried accept finds it again.
		return created, fmt.Errorf("transaction %s saved but candidate not updated: %w", created.ID, err)
	}

	w.logger.Info("Candidate accepted",
		"id", id,
		"amount", created.Amount.StringFixed(2),
		"category", created.Category)
	return created, nil
}

// Reject dismisses a pending candidate.
func (w *Workflow) Reject(ctx context.Context, id string) error {
	if !w.begin(id) {
		return fmt.Errorf("%w: %s", common.ErrInFlight, id)
	}
	defer w.end(id)

	if _, err := w.pending(id); err != nil {
		return err
	}
	if err := w.queue.SetStatus(ctx, id, model.StatusIgnored); err != nil {
		return common.NewUserError("Failed to dismiss candidate", err)
	}
	w.logger.Info("Candidate ignored", "id", id)
	return nil
}

// buildTransaction merges the refined fields over what was extracted at
// ingest time.
func (w *Workflow) buildTransaction(ctx context.Context, c model.PendingCandidate) model.Transaction {
	refined := w.refine(ctx, c.RawText)

	txn := model.Transaction{
		UserID:    w.userID,
		Name:      firstNonEmpty(refined.Name, c.SuggestedTitle, c.SuggestedBank, DefaultName),
		Amount:    c.Amount,
		Date:      c.OccurredAt,
		Source:    model.TransactionSourceSMS,
		SourceRef: c.ID,
	}
	if refined.Amount != nil {
		txn.Amount = *refined.Amount
	}
	if !refined.Date.IsZero() {
		txn.Date = refined.Date
	}
	txn.Category = w.category(ctx, c, refined)
	return txn
}

func (w *Workflow) refine(ctx context.Context, text string) llm.Extraction {
	if w.refiner == nil {
		return llm.Extraction{}
	}
	out, err := w.refiner.Refine(ctx, text)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		w.logger.Log(ctx, level, "Refinement failed, using extracted fields", "error", err)
		return llm.Extraction{}
	}
	return out
}

func (w *Workflow) category(ctx context.Context, c model.PendingCandidate, refined llm.Extraction) string {
	if name, ok := model.NormalizeCategory(refined.Category); ok {
		return name
	}
	if name, ok := model.NormalizeCategory(c.SuggestedCategory); ok {
		return name
	}
	if w.classifier != nil {
		amount := c.Amount
		s := w.classifier.Classify(ctx, c.RawText, &amount)
		if s.Usable(w.minConfidence) {
			if name, ok := model.NormalizeCategory(s.Category); ok {
				return name
			}
		}
		w.logger.Debug("Ignoring weak category suggestion",
			"candidate_id", c.ID, "category", s.Category, "confidence", s.Confidence)
	}
	return model.CategoryMisc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
