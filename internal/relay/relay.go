// Package relay hands captured messages from the capture context to the main
// application through a single key in a shared key/value store.
//
// The capture side appends; the application drains. Both sides go through
// service.KV.Update so an append can never be lost to a concurrent drain.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/service"
)

// DefaultKey is the store key holding the pending relay array.
const DefaultKey = "sms:relay:pending"

var emptyArray = []byte("[]")

// Relay is the durable hand-off between the capture boundary and ingestion.
type Relay struct {
	kv     service.KV
	logger *slog.Logger
	key    string
}

// New creates a relay on kv. An empty key selects DefaultKey.
func New(kv service.KV, key string, logger *slog.Logger) *Relay {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		kv:     kv,
		key:    key,
		logger: logger.With("component", "relay"),
	}
}

// Key returns the store key the relay uses.
func (r *Relay) Key() string {
	return r.key
}

// Append adds msg to the end of the relay. Messages without a body are
// dropped. Failures are logged and never surfaced: the capture context has
// nobody to report them to.
func (r *Relay) Append(ctx context.Context, msg model.RawMessage) {
	if !msg.HasBody() {
		r.logger.Debug("Dropping message without body", "sender", msg.Sender)
		return
	}

	err := r.kv.Update(ctx, r.key, func(current []byte) ([]byte, error) {
		entries, decodeErr := decode(current)
		if decodeErr != nil {
			// Starting over loses the unreadable value but keeps capture working.
			r.logger.Warn("Relay contents unreadable, starting a new list", "error", decodeErr)
			entries = nil
		}
		entries = append(entries, model.NewRelayEntry(msg))
		return json.Marshal(entries)
	})
	if err != nil {
		r.logger.Warn("Failed to append message to relay", "error", err, "sender", msg.Sender)
	}
}

// DrainAll returns every pending message in append order and clears the relay
// in the same atomic step. It never fails: on a storage error it logs and
// returns nothing, and an unreadable value is reset so later appends succeed.
func (r *Relay) DrainAll(ctx context.Context) []model.RawMessage {
	var (
		entries []model.RelayEntry
		corrupt error
	)
	// fn may run more than once when the store retries a conflicting write.
	err := r.kv.Update(ctx, r.key, func(current []byte) ([]byte, error) {
		entries, corrupt = decode(current)
		if corrupt != nil {
			entries = nil
		}
		return emptyArray, nil
	})
	if err != nil {
		r.logger.Warn("Failed to drain relay", "error", err)
		return nil
	}
	if corrupt != nil {
		r.logger.Warn("Relay contents unreadable, reset to empty", "error", corrupt)
		return nil
	}

	messages := make([]model.RawMessage, 0, len(entries))
	for _, entry := range entries {
		msg := entry.ToRawMessage()
		if !msg.HasBody() {
			continue
		}
		messages = append(messages, msg)
	}

	if len(messages) > 0 {
		r.logger.Debug("Drained relay", "count", len(messages))
	}
	return messages
}

// Clear discards everything in the relay.
func (r *Relay) Clear(ctx context.Context) error {
	if err := r.kv.Set(ctx, r.key, emptyArray); err != nil {
		return fmt.Errorf("failed to clear relay: %w", err)
	}
	return nil
}

// Peek returns the pending messages without removing them.
func (r *Relay) Peek(ctx context.Context) ([]model.RawMessage, error) {
	data, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay: %w", err)
	}
	entries, err := decode(data)
	if err != nil {
		return nil, err
	}
	messages := make([]model.RawMessage, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.ToRawMessage())
	}
	return messages, nil
}

// Ready verifies the backing store answers.
func (r *Relay) Ready(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

// ErrCorrupt is returned by Peek when the stored value is not a relay array.
var ErrCorrupt = errors.New("relay contents are not a valid message list")

func decode(data []byte) ([]model.RelayEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []model.RelayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return entries, nil
}
