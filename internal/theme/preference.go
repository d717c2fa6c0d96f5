package theme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/csheth/shiyuan/internal/kv"
)

// DefaultSlot names the kv slot holding the theme preference.
const DefaultSlot = "theme"

// Preference persists the chosen theme.
type Preference struct {
	backend kv.Store
	slot    string
	logger  *slog.Logger
}

// NewPreference returns a Preference stored under slot, or DefaultSlot when
// slot is empty.
func NewPreference(backend kv.Store, slot string, logger *slog.Logger) *Preference {
	if slot == "" {
		slot = DefaultSlot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preference{backend: backend, slot: slot, logger: logger}
}

// Load returns the persisted theme. A missing or unreadable preference
// yields Default.
func (p *Preference) Load(ctx context.Context) Theme {
	data, err := p.backend.Get(ctx, p.slot)
	if errors.Is(err, kv.ErrNotFound) {
		return Default()
	}
	if err != nil {
		p.logger.Warn("theme preference unreadable, using default", "slot", p.slot, "error", err)
		return Default()
	}
	var t Theme
	if err := json.Unmarshal(data, &t); err != nil {
		p.logger.Warn("theme preference corrupt, using default", "slot", p.slot, "error", err)
		return Default()
	}
	return t
}

// Save persists t.
func (p *Preference) Save(ctx context.Context, t Theme) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := p.backend.Put(ctx, p.slot, data); err != nil {
		return fmt.Errorf("persist theme: %w", err)
	}
	return nil
}

// Restore loads the persisted theme and applies it.
func (p *Preference) Restore(ctx context.Context) Theme {
	t := p.Load(ctx)
	Apply(t)
	return t
}

// Choose applies t and persists it.
func (p *Preference) Choose(ctx context.Context, t Theme) error {
	Apply(t)
	return p.Save(ctx, t)
}
