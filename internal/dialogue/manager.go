package dialogue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of live persona trackers.
const DefaultCapacity = 100

// StateRepo persists tracker snapshots.
type StateRepo interface {
	SaveDialogueStates(ctx context.Context, states []Snapshot) error
	LoadDialogueStates(ctx context.Context) ([]Snapshot, error)
}

type entry struct {
	mu      sync.Mutex
	tracker *Tracker
}

// Manager owns one tracker per persona, keyed by lowercased name. Trackers
// are created lazily and the least recently used one is evicted past capacity.
type Manager struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
}

// NewManager returns a manager holding at most capacity trackers.
func NewManager(capacity int) (*Manager, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogue cache: %w", err)
	}
	return &Manager{cache: cache}, nil
}

func (m *Manager) get(persona string) *entry {
	key := strings.ToLower(persona)
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache.Get(key); ok {
		return e
	}
	e := &entry{tracker: NewTracker(persona)}
	m.cache.Add(key, e)
	return e
}

// Update advances the persona's tracker on a user message.
func (m *Manager) Update(r *rand.Rand, persona, message string, history []Turn) State {
	e := m.get(persona)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Update(r, message, history)
}

// State returns the persona's current state, creating the tracker if needed.
func (m *Manager) State(persona string) State {
	e := m.get(persona)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.State()
}

// History returns the persona's recent turns.
func (m *Manager) History(persona string) []Turn {
	e := m.get(persona)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.History()
}

// MoodFiller returns an emote for the persona's current mood.
func (m *Manager) MoodFiller(r *rand.Rand, persona string) string {
	e := m.get(persona)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.MoodFiller(r)
}

// Reset returns a persona's tracker to its initial state. Unknown personas
// are ignored.
func (m *Manager) Reset(persona string) {
	m.mu.Lock()
	e, ok := m.cache.Peek(strings.ToLower(persona))
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.tracker.Reset()
	e.mu.Unlock()
}

// Len returns the number of live trackers.
func (m *Manager) Len() int {
	return m.cache.Len()
}

// Snapshots returns every live tracker, oldest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	entries := m.cache.Values()
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.tracker.Snapshot())
		e.mu.Unlock()
	}
	return out
}

// Restore replaces trackers with the given snapshots.
func (m *Manager) Restore(states []Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		t := FromSnapshot(s)
		m.cache.Add(strings.ToLower(t.Persona()), &entry{tracker: t})
	}
}

// Save writes every tracker to repo.
func (m *Manager) Save(ctx context.Context, repo StateRepo) error {
	if repo == nil {
		return fmt.Errorf("dialogue state repo not configured")
	}
	if err := repo.SaveDialogueStates(ctx, m.Snapshots()); err != nil {
		return fmt.Errorf("failed to save dialogue states: %w", err)
	}
	return nil
}

// Load restores trackers from repo.
func (m *Manager) Load(ctx context.Context, repo StateRepo) error {
	if repo == nil {
		return fmt.Errorf("dialogue state repo not configured")
	}
	states, err := repo.LoadDialogueStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dialogue states: %w", err)
	}
	m.Restore(states)
	return nil
}
