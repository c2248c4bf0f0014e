package bandit

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
)

// ContextualBandit keeps a Beta table per context key next to the global one.
type ContextualBandit struct {
	*Bandit

	features []string

	cmu      sync.RWMutex
	contexts map[string]map[string]*ArmState
}

// NewContextual returns a contextual bandit keyed by the given feature names.
func NewContextual(names, features []string) *ContextualBandit {
	sorted := slices.Clone(features)
	slices.Sort(sorted)
	return &ContextualBandit{
		Bandit:   New(names),
		features: sorted,
		contexts: make(map[string]map[string]*ArmState),
	}
}

// ContextKey renders the tracked features as sorted "feature=value" pairs
// joined by "|". Missing features render as "unknown".
func (c *ContextualBandit) ContextKey(ctx map[string]string) string {
	parts := make([]string, 0, len(c.features))
	for _, f := range c.features {
		v, ok := ctx[f]
		if !ok {
			v = "unknown"
		}
		parts = append(parts, f+"="+v)
	}
	return strings.Join(parts, "|")
}

// SelectArmWithContext samples the context table when it exists. For an unseen
// context it samples the global table and blends each sample 50/50 with the
// arm's global mean.
func (c *ContextualBandit) SelectArmWithContext(r *rand.Rand, ctx map[string]string) string {
	key := c.ContextKey(ctx)

	c.cmu.RLock()
	table, seen := c.contexts[key]
	var local map[string]ArmState
	if seen {
		local = make(map[string]ArmState, len(table))
		for name, s := range table {
			local[name] = *s
		}
	}
	c.cmu.RUnlock()

	selected := ""
	best := -1.0
	for _, name := range c.Arms() {
		var sample float64
		if seen {
			state, ok := local[name]
			if !ok {
				continue
			}
			sample = sampleBeta(r, state.Alpha, state.Beta)
		} else {
			global, ok := c.State(name)
			if !ok {
				continue
			}
			sample = 0.5*sampleBeta(r, global.Alpha, global.Beta) + 0.5*global.Mean()
		}
		if sample > best {
			best = sample
			selected = name
		}
	}
	return selected
}

// UpdateWithContext updates the global table and the context table, creating
// the latter at Beta(1,1) for every known arm on first use.
func (c *ContextualBandit) UpdateWithContext(arm string, reward float64, ctx map[string]string) error {
	if err := c.Update(arm, reward); err != nil {
		return err
	}

	key := c.ContextKey(ctx)
	names := c.Arms()

	c.cmu.Lock()
	defer c.cmu.Unlock()

	table, ok := c.contexts[key]
	if !ok {
		table = make(map[string]*ArmState, len(names))
		for _, name := range names {
			table[name] = &ArmState{Alpha: 1, Beta: 1}
		}
		c.contexts[key] = table
	}
	if state, ok := table[arm]; ok {
		applyReward(state, reward)
	}
	return nil
}

// ContextCount is the number of contexts with observations.
func (c *ContextualBandit) ContextCount() int {
	c.cmu.RLock()
	defer c.cmu.RUnlock()
	return len(c.contexts)
}

// ResetContexts drops every per-context table.
func (c *ContextualBandit) ResetContexts() {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.contexts = make(map[string]map[string]*ArmState)
}
