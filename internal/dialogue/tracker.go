// Package dialogue tracks per-persona conversation mood and topic with a
// two-layer hidden Markov model.
package dialogue

import (
	"math/rand/v2"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

const (
	maxHistory      = 10
	snapshotHistory = 5
	maxTurnChars    = 100

	baseLikelihood = 0.1
	keywordBoost   = 0.2
	generalBoost   = 0.3
)

// Turn is one observed user message and the state it produced.
type Turn struct {
	Message string `json:"message"`
	Mood    string `json:"mood"`
	Topic   string `json:"topic"`
}

// State is the current mood and topic.
type State struct {
	Mood  string `json:"mood"`
	Topic string `json:"topic"`
}

// Snapshot is the persisted form of a tracker.
type Snapshot struct {
	Persona string `json:"persona"`
	Mood    string `json:"current_mood"`
	Topic   string `json:"current_topic"`
	History []Turn `json:"history"`
}

// matrix rows and columns follow types.Moods or types.Topics order.
type matrix [][]float64

var baseMoodTransitions = matrix{
	{0.15, 0.25, 0.25, 0.15, 0.1, 0.1},
	{0.1, 0.35, 0.2, 0.15, 0.1, 0.1},
	{0.1, 0.2, 0.35, 0.15, 0.1, 0.1},
	{0.1, 0.15, 0.2, 0.35, 0.05, 0.15},
	{0.15, 0.1, 0.3, 0.05, 0.3, 0.1},
	{0.1, 0.2, 0.2, 0.2, 0.05, 0.25},
}

var baseTopicTransitions = matrix{
	{0.1, 0.25, 0.15, 0.2, 0.15, 0.15},
	{0.05, 0.35, 0.2, 0.1, 0.2, 0.1},
	{0.05, 0.2, 0.35, 0.1, 0.15, 0.15},
	{0.05, 0.1, 0.1, 0.4, 0.1, 0.25},
	{0.05, 0.3, 0.2, 0.05, 0.3, 0.1},
	{0.1, 0.2, 0.15, 0.15, 0.15, 0.25},
}

type delta struct {
	from, to string
	add      float64
}

// First persona substring match wins.
var personaMoodDeltas = []struct {
	persona string
	deltas  []delta
}{
	{"elio", []delta{
		{types.MoodNeutral, types.MoodCurious, 0.1},
		{types.MoodNeutral, types.MoodExcited, 0.05},
		{types.MoodCurious, types.MoodExcited, 0.1},
		{types.MoodWarm, types.MoodCurious, 0.05},
	}},
	{"glordon", []delta{
		{types.MoodNeutral, types.MoodPlayful, 0.1},
		{types.MoodPlayful, types.MoodPlayful, 0.1},
		{types.MoodCurious, types.MoodPlayful, 0.1},
	}},
	{"olga", []delta{
		{types.MoodNeutral, types.MoodNeutral, 0.1},
		{types.MoodWarm, types.MoodNeutral, 0.1},
		{types.MoodPlayful, types.MoodNeutral, 0.1},
	}},
}

var moodKeywords = map[string][]string{
	types.MoodCurious:   {"what", "how", "why", "when", "where", "who", "wonder", "curious", "?", "explain", "tell me"},
	types.MoodWarm:      {"thank", "appreciate", "love", "glad", "happy", "nice", "kind", "friend", "care", "miss"},
	types.MoodPlayful:   {"lol", "haha", "funny", "joke", "play", "game", "fun", "😂", "😄", "kidding"},
	types.MoodConcerned: {"worried", "problem", "issue", "help", "wrong", "sad", "afraid", "scared", "anxious", "stress"},
	types.MoodExcited:   {"wow", "amazing", "awesome", "cool", "incredible", "!", "omg", "exciting", "love", "best"},
}

var topicKeywords = map[string][]string{
	types.TopicGreeting: {"hi", "hello", "hey", "morning", "evening", "night", "what's up", "sup", "greetings"},
	types.TopicPersonal: {"you", "your", "yourself", "life", "day", "doing", "been", "family", "work"},
	types.TopicAdvice:   {"should", "advice", "help", "what do", "recommend", "suggest", "think", "opinion"},
	types.TopicLore:     {"communiverse", "space", "alien", "elio", "glordon", "olga", "story", "world", "universe"},
	types.TopicFeelings: {"feel", "emotion", "sad", "happy", "angry", "love", "hate", "like", "dislike", "mood"},
}

// Tracker is one persona's dialogue HMM. It is not safe for concurrent use;
// Manager serializes access.
type Tracker struct {
	persona    string
	mood       string
	topic      string
	moodTrans  matrix
	topicTrans matrix
	history    []Turn
}

// NewTracker returns a tracker in the neutral/greeting state with persona
// adjusted mood transitions.
func NewTracker(persona string) *Tracker {
	return &Tracker{
		persona:    persona,
		mood:       types.MoodNeutral,
		topic:      types.TopicGreeting,
		moodTrans:  moodTransitions(persona),
		topicTrans: cloneMatrix(baseTopicTransitions),
	}
}

func moodTransitions(persona string) matrix {
	m := cloneMatrix(baseMoodTransitions)
	lower := strings.ToLower(persona)
	for _, p := range personaMoodDeltas {
		if !strings.Contains(lower, p.persona) {
			continue
		}
		for _, d := range p.deltas {
			m[index(types.Moods, d.from)][index(types.Moods, d.to)] += d.add
		}
		break
	}
	for _, row := range m {
		utils.Normalize(row)
	}
	return m
}

// Persona returns the persona the tracker was created for.
func (t *Tracker) Persona() string { return t.persona }

// State returns the current mood and topic.
func (t *Tracker) State() State {
	return State{Mood: t.mood, Topic: t.topic}
}

// History returns a copy of the bounded turn history.
func (t *Tracker) History() []Turn {
	out := make([]Turn, len(t.history))
	copy(out, t.history)
	return out
}

// Update advances both chains on a user message. When history is non-empty
// it replaces the tracker's own history (last 10 turns) before the new turn
// is appended.
func (t *Tracker) Update(r *rand.Rand, message string, history []Turn) State {
	if len(history) > 0 {
		if len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
		t.history = append([]Turn(nil), history...)
	}

	lower := strings.ToLower(message)
	t.mood = sampleNext(r, types.Moods, index(types.Moods, t.mood), t.moodTrans, MoodLikelihoods(lower))
	t.topic = sampleNext(r, types.Topics, index(types.Topics, t.topic), t.topicTrans, TopicLikelihoods(lower))

	t.history = append(t.history, Turn{Message: truncate(message, maxTurnChars), Mood: t.mood, Topic: t.topic})
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}
	return t.State()
}

// Reset returns to neutral/greeting and clears history.
func (t *Tracker) Reset() {
	t.mood = types.MoodNeutral
	t.topic = types.TopicGreeting
	t.history = nil
}

// Snapshot keeps the last five turns.
func (t *Tracker) Snapshot() Snapshot {
	h := t.history
	if len(h) > snapshotHistory {
		h = h[len(h)-snapshotHistory:]
	}
	return Snapshot{
		Persona: t.persona,
		Mood:    t.mood,
		Topic:   t.topic,
		History: append([]Turn(nil), h...),
	}
}

// FromSnapshot rebuilds a tracker. Unknown states fall back to the initial ones.
func FromSnapshot(s Snapshot) *Tracker {
	persona := s.Persona
	if persona == "" {
		persona = types.DefaultPersona
	}
	t := NewTracker(persona)
	if types.IsMood(s.Mood) {
		t.mood = s.Mood
	}
	if types.IsTopic(s.Topic) {
		t.topic = s.Topic
	}
	t.history = append([]Turn(nil), s.History...)
	return t
}

// MoodLikelihoods scores each mood against a lowercased message, in
// types.Moods order, normalized to sum 1.
func MoodLikelihoods(message string) []float64 {
	out := keywordLikelihoods(message, types.Moods, moodKeywords)
	utils.Normalize(out)
	return out
}

// TopicLikelihoods is MoodLikelihoods for topics. A message with no topic
// keyword leans toward general.
func TopicLikelihoods(message string) []float64 {
	out := keywordLikelihoods(message, types.Topics, topicKeywords)
	peak := 0.0
	for _, v := range out {
		peak = max(peak, v)
	}
	if peak < 0.2 {
		out[index(types.Topics, types.TopicGeneral)] += generalBoost
	}
	utils.Normalize(out)
	return out
}

func keywordLikelihoods(message string, states []string, keywords map[string][]string) []float64 {
	out := make([]float64, len(states))
	for i, state := range states {
		out[i] = baseLikelihood
		for _, kw := range keywords[state] {
			if strings.Contains(message, kw) {
				out[i] += keywordBoost
			}
		}
	}
	return out
}

// sampleNext draws the next state from transition × likelihood.
func sampleNext(r *rand.Rand, states []string, current int, trans matrix, likelihoods []float64) string {
	if current < 0 {
		current = 0
	}
	combined := make([]float64, len(states))
	total := 0.0
	for i := range states {
		combined[i] = trans[current][i] * likelihoods[i]
		total += combined[i]
	}
	if total <= 0 {
		return states[current]
	}
	x := r.Float64() * total
	cum := 0.0
	for i, p := range combined {
		cum += p
		if x <= cum {
			return states[i]
		}
	}
	return states[current]
}

func cloneMatrix(m matrix) matrix {
	out := make(matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func index(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
