// Package ingest turns raw messages into queued transaction candidates.
//
// Every message goes through the same steps in the same order: staleness,
// deduplication, amount, bank, title, optional category suggestion, queue.
// Live deliveries and relay drains share one Pipeline, and Process is
// serialized so the two paths never interleave.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/smart-captures/internal/classifier"
	"github.com/Veraticus/smart-captures/internal/dedup"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/relay"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/sms"
)

// DefaultStalenessWindow is how old a message may be and still be ingested.
const DefaultStalenessWindow = 30 * 24 * time.Hour

// Outcome is what happened to one message.
type Outcome string

// Pipeline outcomes.
const (
	OutcomeQueued    Outcome = "queued"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeEmpty     Outcome = "empty"
	OutcomeNoAmount  Outcome = "no_amount"
	OutcomeFailed    Outcome = "failed"
)

// Config tunes the pipeline.
type Config struct {
	StalenessWindow time.Duration
	TitleMaxLen     int
	MinConfidence   float64
	SuggestCategory bool
}

// Deps are the collaborators a Pipeline needs. Classifier may be nil when
// SuggestCategory is off.
type Deps struct {
	History    *dedup.History
	Queue      *queue.Queue
	Classifier classifier.Classifier
	Clock      service.Clock
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Pipeline processes messages into the candidate queue.
type Pipeline struct {
	history    *dedup.History
	queue      *queue.Queue
	classifier classifier.Classifier
	clock      service.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
	parser     *sms.Parser
	cfg        Config
	mu         sync.Mutex
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultStalenessWindow
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = classifier.DefaultMinConfidence
	}
	if deps.Clock == nil {
		deps.Clock = service.RealClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		history:    deps.History,
		queue:      deps.Queue,
		classifier: deps.Classifier,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "ingest"),
		parser:     sms.NewParser(cfg.TitleMaxLen),
		cfg:        cfg,
	}
}

// Process runs one message through the pipeline. An error is returned only
// with OutcomeFailed.
func (p *Pipeline) Process(ctx context.Context, msg model.RawMessage) (Outcome, error) {
	outcome, _, err := p.process(ctx, msg)
	return outcome, err
}

func (p *Pipeline) process(ctx context.Context, msg model.RawMessage) (outcome Outcome, candidate *model.PendingCandidate, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		p.metrics.IngestTotal.WithLabelValues(string(outcome)).Inc()
	}()

	if !msg.HasBody() {
		return OutcomeEmpty, nil, nil
	}

	now := p.clock.Now()
	if msg.HasTimestamp() && now.Sub(msg.ObservedAt) > p.cfg.StalenessWindow {
		p.logger.Debug("Skipping stale message", "sender", msg.Sender, "observed_at", msg.ObservedAt)
		return OutcomeStale, nil, nil
	}

	if p.history.CheckAndRecord(ctx, msg.Fingerprint()) {
		p.logger.Debug("Skipping duplicate message", "sender", msg.Sender)
		return OutcomeDuplicate, nil, nil
	}

	return p.extractAndQueue(ctx, msg)
}

// extractAndQueue covers the steps whose failure must not stop a batch.
func (p *Pipeline) extractAndQueue(ctx context.Context, msg model.RawMessage) (outcome Outcome, candidate *model.PendingCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while ingesting message", "panic", r, "sender", msg.Sender)
			outcome, candidate, err = OutcomeFailed, nil, fmt.Errorf("ingest panic: %v", r)
		}
	}()

	fields := p.parser.Parse(msg.Body)
	if !fields.HasAmount() {
		p.logger.Debug("No amount in message", "sender", msg.Sender)
		return OutcomeNoAmount, nil, nil
	}

	var category string
	if p.cfg.SuggestCategory && p.classifier != nil {
		suggestion := p.classifier.Classify(ctx, msg.Body, fields.Amount)
		if suggestion.Usable(p.cfg.MinConfidence) {
			category = suggestion.Category
		}
	}

	added, err := p.queue.Add(ctx, queue.NewCandidate{
		RawText:           msg.Body,
		Amount:            *fields.Amount,
		Title:             fields.Title,
		Bank:              fields.Bank,
		SuggestedCategory: category,
		OccurredAt:        msg.ObservedAt,
	})
	if err != nil {
		p.logger.Error("Candidate lost: queue write failed", "error", err, "sender", msg.Sender, "amount", fields.Amount.String())
		return OutcomeFailed, nil, err
	}

	p.metrics.PendingCandidates.Set(float64(len(p.queue.ListPending())))
	p.logger.Info("Queued candidate", "id", added.ID, "amount", added.Amount.StringFixed(2), "bank", added.SuggestedBank)
	return OutcomeQueued, &added, nil
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Counts map[Outcome]int
	Queued []model.PendingCandidate
	Errors []error
	Total  int
}

// Count returns how many messages ended with outcome.
func (r BatchResult) Count(outcome Outcome) int {
	return r.Counts[outcome]
}

// ProcessBatch processes msgs in order. One message failing does not stop
// the rest. The batch ignores cancellation of ctx: by the time a batch runs
// its messages have left the relay and would otherwise be lost.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []model.RawMessage, progress func(done, total int)) BatchResult {
	ctx = context.WithoutCancel(ctx)
	result := BatchResult{
		Counts: make(map[Outcome]int),
		Total:  len(msgs),
	}

	for i, msg := range msgs {
		outcome, candidate, err := p.process(ctx, msg)
		result.Counts[outcome]++
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		if candidate != nil {
			result.Queued = append(result.Queued, *candidate)
		}
		if progress != nil {
			progress(i+1, len(msgs))
		}
	}

	if result.Total > 0 {
		p.logger.Info("Processed batch",
			"total", result.Total,
			"queued", result.Count(OutcomeQueued),
			"duplicate", result.Count(OutcomeDuplicate),
			"stale", result.Count(OutcomeStale),
			"no_amount", result.Count(OutcomeNoAmount),
			"failed", result.Count(OutcomeFailed))
	}
	return result
}

// DrainAndIngest empties the relay and processes what it held.
func (p *Pipeline) DrainAndIngest(ctx context.Context, r *relay.Relay, progress func(done, total int)) BatchResult {
	msgs := r.DrainAll(ctx)
	p.metrics.RelayDrained.Add(float64(len(msgs)))
	return p.ProcessBatch(ctx, msgs, progress)
}
