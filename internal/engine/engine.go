// Package engine runs the capture lifecycle of the application: it waits for
// the relay to become reachable, loads the candidate queue, drains messages
// captured while the application was away and, when allowed, listens for
// live deliveries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/smart-captures/internal/capture"
	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/ingest"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/relay"
	"github.com/Veraticus/smart-captures/internal/service"
)

// Readiness defaults: up to 10 probes, 300ms apart.
const (
	DefaultReadyAttempts = 10
	DefaultReadyDelay    = 300 * time.Millisecond
)

// Config controls startup and live capture.
type Config struct {
	// LiveEnabled is the default when no stored preference exists.
	LiveEnabled bool
	// ForceLive turns live capture on regardless of the stored preference.
	ForceLive  bool
	ReadyRetry service.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ReadyRetry: service.RetryOptions{
			MaxAttempts:  DefaultReadyAttempts,
			InitialDelay: DefaultReadyDelay,
			MaxDelay:     DefaultReadyDelay,
			Multiplier:   1,
		},
	}
}

// Deps are the engine's collaborators. Receiver, Hub, Preferences and
// Permissions are optional; without a Receiver there is no live capture.
type Deps struct {
	Relay       *relay.Relay
	Queue       *queue.Queue
	Pipeline    *ingest.Pipeline
	Receiver    *capture.Receiver
	Hub         *capture.Hub
	Preferences *Preferences
	Permissions capture.PermissionGate
	Logger      *slog.Logger
}

// Engine owns the application side of the relay.
type Engine struct {
	relay       *relay.Relay
	queue       *queue.Queue
	pipeline    *ingest.Pipeline
	receiver    *capture.Receiver
	hub         *capture.Hub
	preferences *Preferences
	permissions capture.PermissionGate
	logger      *slog.Logger
	sub         *capture.Subscription
	drains      singleflight.Group
	cfg         Config
	mu          sync.Mutex
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.ReadyRetry.MaxAttempts <= 0 {
		cfg.ReadyRetry = DefaultConfig().ReadyRetry
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = capture.NewHub(0, deps.Logger)
	}
	if deps.Permissions == nil {
		deps.Permissions = capture.NewStaticGate(capture.PermissionReceiveSMS, capture.PermissionReadSMS)
	}
	return &Engine{
		relay:       deps.Relay,
		queue:       deps.Queue,
		pipeline:    deps.Pipeline,
		receiver:    deps.Receiver,
		hub:         deps.Hub,
		preferences: deps.Preferences,
		permissions: deps.Permissions,
		logger:      deps.Logger.With("component", "engine"),
		cfg:         cfg,
	}
}

// Start brings the engine up. It fails only when the relay never becomes
// reachable or the queue cannot be read; everything after that is best
// effort.
func (e *Engine) Start(ctx context.Context) (ingest.BatchResult, error) {
	if err := e.waitReady(ctx); err != nil {
		return ingest.BatchResult{}, err
	}
	if err := e.queue.Load(ctx); err != nil {
		return ingest.BatchResult{}, fmt.Errorf("failed to load candidate queue: %w", err)
	}

	result := e.Resume(ctx)

	if e.liveAllowed(ctx) {
		e.startLive(ctx)
	}
	return result, nil
}

func (e *Engine) waitReady(ctx context.Context) error {
	opts := e.cfg.ReadyRetry
	opts.Operation = "relay readiness"
	opts.Jitter = 0
	opts.OnRetry = func(attempt int, err error) {
		e.logger.Info("Relay not ready yet", "attempt", attempt, "max_attempts", opts.MaxAttempts, "error", err)
	}
	err := common.WithRetry(ctx, func(int) error {
		if err := e.relay.Ready(ctx); err != nil {
			return fmt.Errorf("%w: %w", common.ErrNotReady, err)
		}
		return nil
	}, opts)
	if err != nil {
		e.logger.Error("Relay never became ready", "attempts", e.cfg.ReadyRetry.MaxAttempts, "error", err)
		return fmt.Errorf("relay unavailable: %w", err)
	}
	return nil
}

// Resume drains the relay and ingests what it held. Concurrent calls share a
// single drain.
func (e *Engine) Resume(ctx context.Context) ingest.BatchResult {
	v, _, shared := e.drains.Do("drain", func() (any, error) {
		return e.pipeline.DrainAndIngest(ctx, e.relay, nil), nil
	})
	if shared {
		e.logger.Debug("Joined drain already in progress")
	}
	result, _ := v.(ingest.BatchResult)
	return result
}

// Run resumes every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("%w: resume interval must be positive", common.ErrInvalidConfig)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			e.Resume(ctx)
		}
	}
}

// liveAllowed combines the developer override, the stored preference and
// the receive permission.
func (e *Engine) liveAllowed(ctx context.Context) bool {
	if e.receiver == nil {
		return false
	}

	enabled := e.cfg.ForceLive
	if !enabled {
		enabled = e.cfg.LiveEnabled
		if e.preferences != nil {
			stored, set, err := e.preferences.LiveCapture(ctx)
			switch {
			case err != nil:
				e.logger.Warn("Could not read live capture preference", "error", err)
			case set:
				enabled = stored
			}
		}
	}
	if !enabled {
		e.logger.Info("Live capture disabled by settings")
		return false
	}

	if !e.permissions.Granted(ctx, capture.PermissionReceiveSMS) {
		e.logger.Info("Live capture unavailable: receive permission denied")
		return false
	}
	if !e.permissions.Granted(ctx, capture.PermissionReadSMS) {
		e.logger.Warn("Read permission denied, message bodies may be missing")
	}
	return true
}

func (e *Engine) startLive(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil {
		return
	}

	// Live processing outlives the call that enabled it; Stop ends it.
	e.sub = e.hub.Subscribe(context.WithoutCancel(ctx), e.handleLive)
	e.receiver.Attach(e.hub)
	e.logger.Info("Live capture started")
}

// handleLive processes a live message. The message also sits in the relay,
// so the next drain finds it again and dedup discards it.
func (e *Engine) handleLive(ctx context.Context, msg model.RawMessage) {
	outcome, err := e.pipeline.Process(ctx, msg)
	if err != nil {
		e.logger.Error("Live message failed", "outcome", outcome, "error", err)
		return
	}
	e.logger.Debug("Live message processed", "outcome", outcome)
}

// Live reports whether a live subscription is active.
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sub != nil
}

// SetLive stores the user's live capture switch and applies it.
func (e *Engine) SetLive(ctx context.Context, enabled bool) error {
	if e.preferences != nil {
		if err := e.preferences.SetLiveCapture(ctx, enabled); err != nil {
			return err
		}
	}
	if enabled && e.liveAllowed(ctx) {
		e.startLive(ctx)
		return nil
	}
	if !enabled && !e.cfg.ForceLive {
		e.Stop()
	}
	return nil
}

// Stop ends live capture. Messages already handed to the subscription are
// still processed before Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	if sub == nil {
		return
	}
	if e.receiver != nil {
		e.receiver.Detach()
	}
	sub.Cancel()
	<-sub.Done()
	e.logger.Info("Live capture stopped")
}
