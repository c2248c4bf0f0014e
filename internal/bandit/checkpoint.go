package bandit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoCheckpoint is returned by a Checkpointer that has nothing stored under an id.
var ErrNoCheckpoint = errors.New("no bandit checkpoint")

// Snapshot is the persisted form of a bandit.
type Snapshot struct {
	Arms      []NamedArm                     `json:"arms"`
	Contexts  map[string]map[string]ArmState `json:"contexts,omitempty"`
	Features  []string                       `json:"features,omitempty"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// NamedArm is an arm with its name, in registration order.
type NamedArm struct {
	Name string `json:"name"`
	ArmState
}

// Checkpointer persists snapshots in an external key-value store.
type Checkpointer interface {
	SaveArms(ctx context.Context, id string, snap Snapshot) error
	LoadArms(ctx context.Context, id string) (Snapshot, error)
}

// Snapshot returns a copy of the global table.
func (b *Bandit) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{UpdatedAt: time.Now().UTC()}
	for _, name := range b.names {
		snap.Arms = append(snap.Arms, NamedArm{Name: name, ArmState: *b.arms[name]})
	}
	return snap
}

// Restore replaces arm states found in the snapshot. Arms missing from the
// snapshot keep their current state; snapshot arms not yet registered are added.
func (b *Bandit) Restore(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, arm := range snap.Arms {
		if arm.Alpha < 1 || arm.Beta < 1 {
			continue
		}
		state := arm.ArmState
		if _, ok := b.arms[arm.Name]; !ok {
			b.names = append(b.names, arm.Name)
		}
		b.arms[arm.Name] = &state
	}
}

// Snapshot includes the per-context tables.
func (c *ContextualBandit) Snapshot() Snapshot {
	snap := c.Bandit.Snapshot()
	snap.Features = c.features

	c.cmu.RLock()
	defer c.cmu.RUnlock()
	if len(c.contexts) > 0 {
		snap.Contexts = make(map[string]map[string]ArmState, len(c.contexts))
		for key, table := range c.contexts {
			copied := make(map[string]ArmState, len(table))
			for name, s := range table {
				copied[name] = *s
			}
			snap.Contexts[key] = copied
		}
	}
	return snap
}

// Restore loads the global and per-context tables.
func (c *ContextualBandit) Restore(snap Snapshot) {
	c.Bandit.Restore(snap)

	c.cmu.Lock()
	defer c.cmu.Unlock()
	for key, table := range snap.Contexts {
		restored := make(map[string]*ArmState, len(table))
		for name, s := range table {
			state := s
			restored[name] = &state
		}
		c.contexts[key] = restored
	}
}

// Save writes the bandit to a checkpointer.
func (c *ContextualBandit) Save(ctx context.Context, cp Checkpointer, id string) error {
	if cp == nil {
		return fmt.Errorf("bandit checkpointer not configured")
	}
	if err := cp.SaveArms(ctx, id, c.Snapshot()); err != nil {
		return fmt.Errorf("failed to save bandit %s: %w", id, err)
	}
	return nil
}

// Load reads the bandit from a checkpointer. A missing checkpoint is not an error.
func (c *ContextualBandit) Load(ctx context.Context, cp Checkpointer, id string) error {
	if cp == nil {
		return fmt.Errorf("bandit checkpointer not configured")
	}
	snap, err := cp.LoadArms(ctx, id)
	if errors.Is(err, ErrNoCheckpoint) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load bandit %s: %w", id, err)
	}
	c.Restore(snap)
	return nil
}
