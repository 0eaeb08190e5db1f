package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/smart-captures/internal/capture"
	"github.com/Veraticus/smart-captures/internal/classifier"
	"github.com/Veraticus/smart-captures/internal/config"
	"github.com/Veraticus/smart-captures/internal/dedup"
	"github.com/Veraticus/smart-captures/internal/engine"
	"github.com/Veraticus/smart-captures/internal/ingest"
	"github.com/Veraticus/smart-captures/internal/ledger"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/metrics"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/relay"
	"github.com/Veraticus/smart-captures/internal/review"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/storage"
)

// registerer receives the process metrics.
var registerer prometheus.Registerer = prometheus.DefaultRegisterer

// app wires the components for one command invocation.
type app struct {
	kv      service.KV
	sqlite  *storage.SQLiteStorage
	ledger  service.Ledger
	clock   service.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	closers []func()
	cfg     config.Config
}

// openApp opens the configured store. The ledger is opened on first use.
func openApp(ctx context.Context) (*app, error) {
	cfg := appConfig
	a := &app{
		cfg:     cfg,
		clock:   service.RealClock{},
		logger:  slog.Default(),
		metrics: metrics.New(registerer),
	}

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.kv, a.sqlite = store, store
	case config.BackendRedis:
		kv, err := storage.NewRedisKV(ctx, storage.RedisOptions{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			Prefix:   cfg.Storage.RedisPrefix,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.kv = kv
	case config.BackendMemory:
		a.kv = storage.NewMemoryKV()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	kv := a.kv
	a.closers = append(a.closers, func() { _ = kv.Close() })
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) openLedger(ctx context.Context) (service.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	switch a.cfg.Ledger.Backend {
	case config.BackendSQLite:
		if a.sqlite == nil {
			return nil, fmt.Errorf("sqlite ledger needs sqlite storage")
		}
		a.ledger = a.sqlite
	case config.BackendPostgres:
		pg, err := ledger.Connect(ctx, ledger.PoolConfig{
			DSN:      a.cfg.Ledger.DSN,
			MaxConns: int32(a.cfg.Ledger.MaxConns),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.ledger = pg
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", a.cfg.Ledger.Backend)
	}
	return a.ledger, nil
}

func (a *app) relay() *relay.Relay {
	return relay.New(a.kv, a.cfg.Keys.Relay, a.logger)
}

func (a *app) queue() *queue.Queue {
	return queue.New(a.kv, a.cfg.Keys.Queue, a.clock, a.logger)
}

func (a *app) history() *dedup.History {
	return dedup.New(a.kv, a.cfg.Keys.Dedup, a.cfg.Ingest.DedupCapacity, a.logger)
}

func (a *app) preferences() *engine.Preferences {
	return engine.NewPreferences(a.kv, a.cfg.Keys.Preference)
}

func (a *app) llmConfig() llm.Config {
	c := a.cfg.Classifier
	return llm.Config{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
	}
}

func (a *app) classifier() (classifier.Classifier, error) {
	c := a.cfg.Classifier
	return classifier.New(classifier.Config{
		Mode:          c.Mode,
		EndpointURL:   c.EndpointURL,
		EndpointToken: c.EndpointToken,
		LLM:           a.llmConfig(),
		Retry: service.RetryOptions{
			MaxAttempts:  c.MaxRetries,
			InitialDelay: c.RetryDelay,
			MaxDelay:     10 * c.RetryDelay,
			Jitter:       0.2,
			Multiplier:   2,
		},
		MinConfidence: c.MinConfidence,
		CacheTTL:      c.CacheTTL,
		Timeout:       c.Timeout,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
	}, a.metrics, a.logger)
}

func (a *app) pipeline(q *queue.Queue) (*ingest.Pipeline, error) {
	var c classifier.Classifier
	if a.cfg.Ingest.SuggestCategory {
		var err error
		if c, err = a.classifier(); err != nil {
			return nil, err
		}
	}
	return ingest.New(ingest.Config{
		StalenessWindow: a.cfg.Ingest.StalenessWindow,
		TitleMaxLen:     a.cfg.Ingest.TitleMaxLen,
		MinConfidence:   a.cfg.Classifier.MinConfidence,
		SuggestCategory: a.cfg.Ingest.SuggestCategory,
	}, ingest.Deps{
		History:    a.history(),
		Queue:      q,
		Classifier: c,
		Clock:      a.clock,
		Metrics:    a.metrics,
		Logger:     a.logger,
	}), nil
}

func (a *app) workflow(ctx context.Context, q *queue.Queue) (*review.Workflow, error) {
	l, err := a.openLedger(ctx)
	if err != nil {
		return nil, err
	}
	c, err := a.classifier()
	if err != nil {
		return nil, err
	}

	var refiner review.Refiner
	if a.cfg.Classifier.Refine {
		client, err := llm.NewClient(a.llmConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create refiner: %w", err)
		}
		refiner = review.NewLLMRefiner(client)
	}
	return review.New(q, l, c, refiner, review.Config{
		UserID:        a.cfg.Ledger.UserID,
		MinConfidence: a.cfg.Classifier.MinConfidence,
	}, a.logger), nil
}

func (a *app) permissions() capture.PermissionGate {
	var granted []capture.Permission
	for _, p := range a.cfg.Capture.Permissions {
		granted = append(granted, capture.Permission(strings.ToLower(strings.TrimSpace(p))))
	}
	return capture.NewStaticGate(granted...)
}

func (a *app) engineConfig() engine.Config {
	e := a.cfg.Engine
	return engine.Config{
		LiveEnabled: a.cfg.Capture.LiveEnabled,
		ForceLive:   a.cfg.Capture.ForceLive,
		ReadyRetry: service.RetryOptions{
			MaxAttempts:  e.ReadyAttempts,
			InitialDelay: e.ReadyDelay,
			MaxDelay:     e.ReadyDelay,
			Multiplier:   1,
		},
	}
}

// loadedQueue returns the candidate queue read from the store.
func (a *app) loadedQueue(ctx context.Context) (*queue.Queue, error) {
	q := a.queue()
	if err := q.Load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}
