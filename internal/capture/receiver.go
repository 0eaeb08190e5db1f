package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/relay"
	"github.com/Veraticus/smart-captures/internal/service"
)

// Receiver is the delivery entry point. Every accepted message is appended to
// the relay; when a hub is attached it is also published live.
type Receiver struct {
	relay  *relay.Relay
	clock  service.Clock
	logger *slog.Logger
	hub    *Hub
	mu     sync.RWMutex
}

// NewReceiver creates a receiver writing to r.
func NewReceiver(r *relay.Relay, clock service.Clock, logger *slog.Logger) *Receiver {
	if clock == nil {
		clock = service.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		relay:  r,
		clock:  clock,
		logger: logger.With("component", "receiver"),
	}
}

// Attach starts publishing to h in addition to the relay.
func (r *Receiver) Attach(h *Hub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = h
}

// Detach stops live publishing.
func (r *Receiver) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = nil
}

// Deliver normalizes payload and hands it on. It reports false when the
// payload carried no body.
func (r *Receiver) Deliver(ctx context.Context, payload map[string]any) bool {
	msg, ok := Normalize(payload, r.clock.Now())
	if !ok {
		r.logger.Debug("Ignoring delivery without body")
		return false
	}
	r.DeliverMessage(ctx, msg)
	return true
}

// DeliverMessage hands an already normalized message on.
func (r *Receiver) DeliverMessage(ctx context.Context, msg model.RawMessage) {
	if !msg.HasBody() {
		return
	}

	r.relay.Append(ctx, msg)

	r.mu.RLock()
	hub := r.hub
	r.mu.RUnlock()
	if hub != nil {
		hub.Publish(msg)
	}
}
