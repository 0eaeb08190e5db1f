package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Veraticus/smart-captures/internal/model"
)

// DefaultSubscriptionBuffer is how many live messages may wait for a slow
// subscriber before further deliveries are dropped.
const DefaultSubscriptionBuffer = 64

// Handler receives live messages, one at a time, in delivery order.
type Handler func(ctx context.Context, msg model.RawMessage)

// Hub fans live messages out to in-process subscribers.
type Hub struct {
	subs   map[*Subscription]struct{}
	logger *slog.Logger
	buffer int
	mu     sync.Mutex
}

// NewHub creates a hub. A non-positive buffer selects the default.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "hub"),
	}
}

// Subscription is a live registration. Cancel stops new deliveries; messages
// already queued are still handled, after which Done is closed.
type Subscription struct {
	hub    *Hub
	queue  chan model.RawMessage
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// Subscribe registers fn. Each subscription handles its messages sequentially
// on its own goroutine.
func (h *Hub) Subscribe(ctx context.Context, fn Handler) *Subscription {
	sub := &Subscription{
		hub:   h,
		queue: make(chan model.RawMessage, h.buffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(sub.done)
		for msg := range sub.queue {
			fn(ctx, msg)
		}
	}()

	return sub
}

// Publish offers msg to every subscriber and returns how many accepted it.
func (h *Hub) Publish(msg model.RawMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.subs {
		if sub.offer(msg) {
			delivered++
		} else {
			// The relay still holds the message; the next drain picks it up.
			h.logger.Warn("Live subscriber busy, message left for next drain", "sender", msg.Sender)
		}
	}
	return delivered
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Subscription) offer(msg model.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// Cancel stops further deliveries. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

// Done is closed once the subscription is cancelled and its queue is empty.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
