// Package dedup remembers recently processed message fingerprints so a
// message seen through both the live path and the relay is ingested once.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/Veraticus/smart-captures/internal/service"
)

// Defaults for the persisted history.
const (
	DefaultKey      = "sms:lastProcessedKeys"
	DefaultCapacity = 50
)

// errSeen aborts the store update when the fingerprint is already recorded.
var errSeen = errors.New("fingerprint already recorded")

// History is a bounded FIFO of fingerprints. The stored array is
// authoritative: every check-and-insert runs as one atomic update of the
// key, so processes sharing the store never overwrite each other's entries.
// The in-memory copy mirrors the last stored state and only answers on its
// own while the store is failing.
type History struct {
	kv       service.KV
	logger   *slog.Logger
	key      string
	order    []string
	capacity int
	mu       sync.Mutex
}

// New creates a history persisted under key in kv. Zero values select the
// defaults.
func New(kv service.KV, key string, capacity int, logger *slog.Logger) *History {
	if key == "" {
		key = DefaultKey
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		kv:       kv,
		key:      key,
		capacity: capacity,
		logger:   logger.With("component", "dedup"),
	}
}

// CheckAndRecord reports whether fingerprint was already seen. When it was
// not, it is recorded, evicting the oldest entry if the history is full.
func (h *History) CheckAndRecord(ctx context.Context, fingerprint string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	var latest []string
	err := h.kv.Update(ctx, h.key, func(current []byte) ([]byte, error) {
		stored := h.decode(current)
		if slices.Contains(stored, fingerprint) {
			latest = stored
			return nil, errSeen
		}
		stored = h.push(stored, fingerprint)
		data, err := json.Marshal(stored)
		if err != nil {
			return nil, err
		}
		latest = stored
		return data, nil
	})

	switch {
	case err == nil:
		h.order = latest
		return false
	case errors.Is(err, errSeen):
		h.order = latest
		return true
	}

	h.logger.Warn("Dedup history store unavailable, using in-memory copy", "error", err)
	if slices.Contains(h.order, fingerprint) {
		return true
	}
	h.order = h.push(h.order, fingerprint)
	return false
}

// Contains reports whether fingerprint is currently remembered.
func (h *History) Contains(ctx context.Context, fingerprint string) bool {
	return slices.Contains(h.Snapshot(ctx), fingerprint)
}

// Snapshot returns the remembered fingerprints, oldest first.
func (h *History) Snapshot(ctx context.Context) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.kv.Get(ctx, h.key)
	if err != nil {
		h.logger.Warn("Failed to load dedup history, using in-memory copy", "error", err)
	} else {
		h.order = h.decode(data)
	}
	return slices.Clone(h.order)
}

// Reset forgets everything, in memory and in the store.
func (h *History) Reset(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	return h.kv.Delete(ctx, h.key)
}

// decode parses the stored array, keeping the newest capacity entries.
// Unreadable data counts as an empty history and is replaced on next write.
func (h *History) decode(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var stored []string
	if err := json.Unmarshal(data, &stored); err != nil {
		h.logger.Warn("Dedup history unreadable, starting empty", "error", err)
		return nil
	}
	if len(stored) > h.capacity {
		stored = stored[len(stored)-h.capacity:]
	}
	return stored
}

func (h *History) push(order []string, fingerprint string) []string {
	order = append(slices.Clone(order), fingerprint)
	if over := len(order) - h.capacity; over > 0 {
		order = order[over:]
	}
	return order
}
