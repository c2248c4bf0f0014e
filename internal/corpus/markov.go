package corpus

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/utils"
)

const (
	markovStateSep = "|"
	historyWindow  = 10
)

type transitions struct {
	order  []string
	counts map[string]int
}

func (t *transitions) add(tok string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, ok := t.counts[tok]; !ok {
		t.order = append(t.order, tok)
	}
	t.counts[tok]++
}

// Markov is a word-level chain of order 1-3.
type Markov struct {
	order  int
	states []string
	table  map[string]*transitions
}

// NewMarkov returns an empty chain; order is clamped to [1,3].
func NewMarkov(order int) *Markov {
	return &Markov{order: max(1, min(order, 3)), table: make(map[string]*transitions)}
}

// Order is the chain order.
func (m *Markov) Order() int {
	return m.order
}

// Train adds every line. Lines no longer than the order are ignored.
func (m *Markov) Train(lines []string) *Markov {
	for _, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) <= m.order {
			continue
		}
		for i := 0; i+m.order < len(tokens); i++ {
			key := strings.Join(tokens[i:i+m.order], markovStateSep)
			t, ok := m.table[key]
			if !ok {
				t = &transitions{}
				m.table[key] = t
				m.states = append(m.states, key)
			}
			t.add(tokens[i+m.order])
		}
	}
	return m
}

// Empty reports whether the chain has no transitions.
func (m *Markov) Empty() bool {
	return len(m.table) == 0
}

// Generate walks the chain from seed's last tokens, or a random state when
// the seed is too short. The output includes the starting state and has at
// most maxLen tokens.
func (m *Markov) Generate(r *rand.Rand, seed string, maxLen int, temperature, repPenalty float64) string {
	if m.Empty() {
		return ""
	}
	state := m.seedState(r, seed)
	output := append([]string(nil), state...)

	for len(output) < maxLen {
		t, ok := m.table[strings.Join(output[len(output)-m.order:], markovStateSep)]
		if !ok {
			break
		}
		output = append(output, m.sample(r, t, output, temperature, repPenalty))
	}
	return strings.Join(output, " ")
}

func (m *Markov) seedState(r *rand.Rand, seed string) []string {
	tokens := strings.Fields(seed)
	if len(tokens) >= m.order {
		return tokens[len(tokens)-m.order:]
	}
	return strings.Split(utils.Choice(r, m.states), markovStateSep)
}

func (m *Markov) sample(r *rand.Rand, t *transitions, history []string, temperature, repPenalty float64) string {
	recent := make(map[string]int)
	for _, tok := range history[max(0, len(history)-historyWindow):] {
		recent[tok]++
	}

	weights := make([]float64, len(t.order))
	total := 0.0
	for i, tok := range t.order {
		w := float64(t.counts[tok])
		if c := recent[tok]; c > 0 && repPenalty > 0 {
			w /= math.Pow(repPenalty, float64(c))
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return utils.Choice(r, t.order)
	}
	exp := 1 / max(0.1, temperature)
	for i := range weights {
		weights[i] = math.Pow(weights[i]/total, exp)
	}
	return t.order[utils.WeightedIndex(r, weights, 0)]
}

type markovSnapshot struct {
	Order       int                       `json:"order"`
	Transitions map[string]map[string]int `json:"transitions"`
}

// MarshalJSON encodes states as tokens joined by "|".
func (m *Markov) MarshalJSON() ([]byte, error) {
	snap := markovSnapshot{Order: m.order, Transitions: make(map[string]map[string]int, len(m.table))}
	for key, t := range m.table {
		snap.Transitions[key] = t.counts
	}
	return json.Marshal(snap)
}

// UnmarshalJSON restores a chain written by MarshalJSON.
func (m *Markov) UnmarshalJSON(data []byte) error {
	var snap markovSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode markov snapshot: %w", err)
	}
	restored := NewMarkov(snap.Order)
	if snap.Order == 0 {
		restored = NewMarkov(2)
	}
	keys := make([]string, 0, len(snap.Transitions))
	for key := range snap.Transitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t := &transitions{}
		next := make([]string, 0, len(snap.Transitions[key]))
		for tok := range snap.Transitions[key] {
			next = append(next, tok)
		}
		sort.Strings(next)
		t.order = next
		t.counts = snap.Transitions[key]
		restored.table[key] = t
		restored.states = append(restored.states, key)
	}
	*m = *restored
	return nil
}
