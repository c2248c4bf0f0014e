package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// ErrNoSamples means neither the persona nor the default bucket has data.
var ErrNoSamples = errors.New("no samples for persona")

const (
	// StrategyRetrieval tags replies chosen by TF-IDF similarity.
	StrategyRetrieval = "tfidf_retrieval"
	// StrategyFallback tags the no-data reply.
	StrategyFallback = "fallback"

	markovOrder = 2
)

// Reply is a baseline answer.
type Reply struct {
	Text       string
	Base       string
	Persona    string
	Strategy   string
	Scenario   string
	User       string
	Similarity float64
}

// ReplyRequest is the input to Store.Reply.
type ReplyRequest struct {
	Persona string
	Message string
	History []types.Message
	Mood    string
	TopK    int
}

type personaModel struct {
	samples []types.TrainingSample
	tfidf   *TFIDF
	markov  *Markov
}

// Store is an immutable snapshot of the corpus and its per-persona TF-IDF
// and Markov models. Build a new Store to reload.
type Store struct {
	personas types.PersonaSet
	samples  Samples
	models   map[string]*personaModel
}

// Build indexes samples per persona plus a pooled default bucket.
func Build(samples Samples, personas types.PersonaSet) *Store {
	if personas == nil {
		personas = make(types.PersonaSet)
	}
	s := &Store{personas: personas, samples: make(Samples, len(samples)+1), models: make(map[string]*personaModel)}

	names := make([]string, 0, len(samples))
	for name := range samples {
		if name != types.DefaultPersona {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var pooled []types.TrainingSample
	for _, name := range names {
		s.samples[name] = samples[name]
		pooled = append(pooled, samples[name]...)
	}
	// Samples tagged "default" in the corpus join the pool.
	pooled = append(pooled, samples[types.DefaultPersona]...)
	if len(pooled) > 0 {
		s.samples[types.DefaultPersona] = pooled
	}

	for name, list := range s.samples {
		if len(list) == 0 {
			continue
		}
		s.models[name] = buildModel(list)
	}
	return s
}

func buildModel(samples []types.TrainingSample) *personaModel {
	texts := make([]string, len(samples))
	replies := make([]string, 0, len(samples))
	for i, smp := range samples {
		combined := strings.TrimSpace(smp.User + " " + smp.Scenario)
		if combined == "" {
			combined = smp.Reply
		}
		texts[i] = combined
		if smp.Reply != "" {
			replies = append(replies, smp.Reply)
		}
	}
	return &personaModel{
		samples: samples,
		tfidf:   FitTFIDF(texts),
		markov:  NewMarkov(markovOrder).Train(replies),
	}
}

// Personas returns the persona metadata the store was built with.
func (s *Store) Personas() types.PersonaSet {
	return s.personas
}

// Profile returns persona metadata, zero when unknown.
func (s *Store) Profile(persona string) types.PersonaProfile {
	return s.personas[persona]
}

// Samples returns the per-persona samples including the default pool.
func (s *Store) Samples() Samples {
	return s.samples
}

// SampleCount is the number of loaded samples, excluding the pooled copy.
func (s *Store) SampleCount() int {
	return s.samples.Count()
}

// PersonaCount is the number of persona buckets excluding default.
func (s *Store) PersonaCount() int {
	n := 0
	for name := range s.samples {
		if name != types.DefaultPersona {
			n++
		}
	}
	return n
}

// Resolve maps a requested persona name onto a configured one.
func (s *Store) Resolve(persona string) string {
	return ResolvePersona(s.personas, persona)
}

func (s *Store) model(persona string) *personaModel {
	if m, ok := s.models[persona]; ok {
		return m
	}
	return s.models[types.DefaultPersona]
}

// Reply retrieves a reply by TF-IDF similarity over the top k samples,
// draws one weighted by similarity (floor 0.05) and wraps it in the
// persona's style.
func (s *Store) Reply(r *rand.Rand, req ReplyRequest) (Reply, error) {
	persona := s.Resolve(req.Persona)
	m := s.model(persona)
	if m == nil || len(m.samples) == 0 {
		return Reply{}, fmt.Errorf("failed to reply as %s: %w", persona, ErrNoSamples)
	}

	sims := m.tfidf.Similarities(BuildQuery(req.Message, req.History))
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	top := TopIndices(sims, min(topK, len(m.samples)))

	weights := make([]float64, len(top))
	for i, idx := range top {
		weights[i] = sims[idx]
	}
	pick := top[utils.WeightedIndex(r, weights, 0.05)]
	sample := m.samples[pick]
	if sample.Reply == "" {
		return Reply{}, fmt.Errorf("failed to reply as %s: %w", persona, ErrNoSamples)
	}

	return Reply{
		Text:       StyleWrap(r, s.Profile(persona), persona, sample.Reply, req.Mood),
		Base:       sample.Reply,
		Persona:    persona,
		Strategy:   StrategyRetrieval,
		Scenario:   sample.Scenario,
		User:       sample.User,
		Similarity: sims[pick],
	}, nil
}

// NoDataReply is what callers send when Reply fails with ErrNoSamples.
func (s *Store) NoDataReply(persona string) Reply {
	resolved := s.Resolve(persona)
	return Reply{
		Text:     resolved + ": I'm here, but I need more data to answer.",
		Persona:  resolved,
		Strategy: StrategyFallback,
	}
}

// Continue runs the persona's Markov chain from seed.
func (s *Store) Continue(r *rand.Rand, persona, seed string, maxLen int, temperature, repPenalty float64) string {
	m := s.model(s.Resolve(persona))
	if m == nil {
		return ""
	}
	return m.markov.Generate(r, seed, maxLen, temperature, repPenalty)
}

// Nearest returns the sample whose utterance and scenario are most similar
// to query, with its cosine similarity. ok is false when the persona has no
// samples.
func (s *Store) Nearest(persona, query string) (sample types.TrainingSample, similarity float64, ok bool) {
	m := s.model(s.Resolve(persona))
	if m == nil || len(m.samples) == 0 {
		return types.TrainingSample{}, 0, false
	}
	sims := m.tfidf.Similarities(query)
	best := TopIndices(sims, 1)[0]
	return m.samples[best], sims[best], true
}

// Extend continues text with at most maxNew Markov tokens and returns only
// the new tokens.
func (s *Store) Extend(r *rand.Rand, persona, text string, maxNew int, temperature, repPenalty float64) string {
	m := s.model(s.Resolve(persona))
	if m == nil || maxNew <= 0 {
		return ""
	}
	out := strings.Fields(m.markov.Generate(r, text, markovOrder+maxNew, temperature, repPenalty))
	if len(out) <= markovOrder {
		return ""
	}
	return strings.Join(out[markovOrder:], " ")
}

// Scenarios returns the distinct scenario tags of a persona in name order.
func (s *Store) Scenarios(persona string) []string {
	m := s.model(persona)
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, smp := range m.samples {
		if _, ok := seen[smp.Scenario]; !ok {
			seen[smp.Scenario] = struct{}{}
			out = append(out, smp.Scenario)
		}
	}
	sort.Strings(out)
	return out
}

// BuildQuery joins the last three history turns with the message. Bot turns
// are rendered as "they said ...".
func BuildQuery(message string, history []types.Message) string {
	start := max(0, len(history)-3)
	parts := make([]string, 0, 4)
	for _, turn := range history[start:] {
		if turn.Role == types.RoleAssistant {
			parts = append(parts, "they said "+turn.Content)
			continue
		}
		parts = append(parts, turn.Content)
	}
	parts = append(parts, message)
	return strings.Join(parts, " ")
}
