package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/smart-captures/internal/service"
)

// DefaultPreferenceKey stores the user's live capture switch as "1" or "0".
const DefaultPreferenceKey = "settings:smartSmsCapture"

// Preferences reads and writes user settings kept in the shared store.
type Preferences struct {
	kv  service.KV
	key string
}

// NewPreferences creates a preference accessor. An empty key selects
// DefaultPreferenceKey.
func NewPreferences(kv service.KV, key string) *Preferences {
	if key == "" {
		key = DefaultPreferenceKey
	}
	return &Preferences{kv: kv, key: key}
}

// LiveCapture returns the stored switch and whether it was ever set.
func (p *Preferences) LiveCapture(ctx context.Context) (enabled, set bool, err error) {
	data, err := p.kv.Get(ctx, p.key)
	if err != nil {
		return false, false, fmt.Errorf("failed to read live capture preference: %w", err)
	}
	if data == nil {
		return false, false, nil
	}
	return strings.TrimSpace(string(data)) == "1", true, nil
}

// SetLiveCapture stores the switch.
func (p *Preferences) SetLiveCapture(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	if err := p.kv.Set(ctx, p.key, []byte(value)); err != nil {
		return fmt.Errorf("failed to save live capture preference: %w", err)
	}
	return nil
}
