// Package catalog holds badge definitions and loads them from JSON files.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"badgekit/core"
)

var validate = validator.New()

// Static is an in-memory catalog safe for concurrent reads and replacement.
type Static struct {
	mu   sync.RWMutex
	defs []core.BadgeDefinition
}

// New builds a catalog from definitions after validating them.
func New(defs ...core.BadgeDefinition) (*Static, error) {
	c := &Static{}
	if err := c.Replace(defs); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is New that panics on invalid definitions.
func MustNew(defs ...core.BadgeDefinition) *Static {
	c, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Static) Definitions(_ context.Context) ([]core.BadgeDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.BadgeDefinition, len(c.defs))
	copy(out, c.defs)
	return out, nil
}

// Get returns a single definition.
func (c *Static) Get(id core.BadgeID) (core.BadgeDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return core.BadgeDefinition{}, fmt.Errorf("%w: %s", core.ErrUnknownBadge, id)
}

// Replace swaps the full definition set.
func (c *Static) Replace(defs []core.BadgeDefinition) error {
	normalized, err := normalize(defs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.defs = normalized
	c.mu.Unlock()
	return nil
}

// Validate checks one definition.
func Validate(d core.BadgeDefinition) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("badge %q: %w", d.ID, err)
	}
	if err := core.ValidateBadgeID(d.ID); err != nil {
		return fmt.Errorf("badge %q: %w", d.ID, err)
	}
	if d.Reset.Frequency == core.FrequencyCustom && d.Reset.Interval <= 0 {
		return fmt.Errorf("badge %q: custom reset requires a positive interval: %w", d.ID, core.ErrInvalidSchedule)
	}
	if d.Reward.Multiplier.IsNegative() {
		return fmt.Errorf("badge %q: multiplier cannot be negative", d.ID)
	}
	return nil
}

func normalize(defs []core.BadgeDefinition) ([]core.BadgeDefinition, error) {
	var errs []string
	seen := map[core.BadgeID]struct{}{}
	out := make([]core.BadgeDefinition, 0, len(defs))
	for _, d := range defs {
		if err := Validate(d); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if _, dup := seen[d.ID]; dup {
			errs = append(errs, fmt.Sprintf("badge %q: duplicate id", d.ID))
			continue
		}
		seen[d.ID] = struct{}{}
		assigned := make([]core.IndividualID, 0, len(d.Assigned))
		for _, id := range d.Assigned {
			n, err := core.NormalizeIndividualID(id)
			if err != nil {
				errs = append(errs, fmt.Sprintf("badge %q: %v", d.ID, err))
				continue
			}
			assigned = append(assigned, n)
		}
		d.Assigned = assigned
		out = append(out, d)
	}
	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return out, nil
}

type file struct {
	Badges []core.BadgeDefinition `json:"badges"`
}

// LoadFile reads a JSON catalog of the form {"badges": [...]}.
func LoadFile(path string) (*Static, error) {
	clean := filepath.Clean(path)
	if !strings.HasSuffix(strings.ToLower(clean), ".json") {
		return nil, errors.New("catalog file must have .json extension")
	}
	data, err := os.ReadFile(clean) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", clean, err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", clean, err)
	}
	return New(f.Badges...)
}
