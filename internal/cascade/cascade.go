// Package cascade filters, scores and picks a final reply in three stages:
// hard safety rules, multiplicative context scoring and a weighted random
// draw. It always returns a candidate.
package cascade

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// SourceFallback marks a synthesized reply.
const SourceFallback = "fallback"

const (
	minWords          = 2
	maxWords          = 150
	consistencyWords  = 20
	consistencyFactor = 0.7

	moodStep       = 0.1
	moodMaxMatches = 3
	moodMismatch   = 0.9

	historyTurns   = 3
	historyOverlap = 0.5
	historyPenalty = 0.5

	styleWords    = 5
	styleMinChars = 3
	styleBoost    = 1.1
	styleCap      = 1.5

	minContextScore = 0.1
	selectionFloor  = 0.05
	fallbackConf    = 0.1
)

// DefaultBlockedPattern is the built-in deny list.
const DefaultBlockedPattern = `(?i)\b(fuck|shit|damn|hell)\b`

var fallbackPhrases = []string{
	"I'm here to help!",
	"That's interesting.",
	"Tell me more!",
	"I appreciate you sharing that.",
}

var personaKeywords = map[string][]string{
	"elio":    {"space", "cosmic", "stars", "alien", "lonely", "curious", "amazing"},
	"glordon": {"haha", "funny", "friend", "play", "joke"},
	"olga":    {"discipline", "proper", "important", "listen", "understand"},
}

type scenarioBoost struct {
	words []string
	boost float64
}

var scenarioBoosts = map[string]scenarioBoost{
	"greeting": {[]string{"hi", "hello", "hey", "welcome", "nice to"}, 1.3},
	"advice":   {[]string{"think", "suggest", "maybe", "try", "could"}, 1.2},
	"feelings": {[]string{"feel", "understand", "care", "support"}, 1.2},
}

var moodIndicators = map[string][]string{
	"excited":   {"!", "wow", "amazing", "awesome", "incredible"},
	"curious":   {"?", "wonder", "how", "why", "what"},
	"warm":      {"smile", "glad", "happy", "care", "appreciate"},
	"playful":   {"haha", "lol", "funny", "joke", "play"},
	"concerned": {"worried", "careful", "make sure", "okay"},
}

// Router is safe for concurrent use; the deny list and persona metadata sit
// behind one read/write lock.
type Router struct {
	mu       sync.RWMutex
	blocked  []*regexp.Regexp
	personas types.PersonaSet
}

// NewRouter returns a router with the default deny list.
func NewRouter(personas types.PersonaSet) *Router {
	return &Router{
		blocked:  []*regexp.Regexp{regexp.MustCompile(DefaultBlockedPattern)},
		personas: personas,
	}
}

// AddBlockedPattern compiles pattern case-insensitively and appends it.
func (r *Router) AddBlockedPattern(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("failed to compile blocked pattern: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, re)
	return nil
}

// SetPersonaMeta replaces the persona profiles used for style scoring and
// fallbacks.
func (r *Router) SetPersonaMeta(personas types.PersonaSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personas = personas
}

// profile prefers the profile carried on the request, which comes from the
// same index generation as the candidates.
func (r *Router) profile(gc *types.GenerationContext) (types.PersonaProfile, bool) {
	if gc.Profile.Name != "" {
		return gc.Profile, true
	}
	persona := gc.Persona
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[persona]
	return p, ok
}

// Blocked reports whether text matches the deny list.
func (r *Router) Blocked(text string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, re := range r.blocked {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Route applies CF scores by position, then runs all three stages.
func (r *Router) Route(rng *rand.Rand, gc *types.GenerationContext, candidates []types.Candidate, cfScores []float64) types.Candidate {
	if len(candidates) == 0 {
		return r.Fallback(rng, gc)
	}
	work := append([]types.Candidate(nil), candidates...)
	for i := range work {
		if i < len(cfScores) {
			work[i].CFScore = cfScores[i]
		}
	}
	screened := r.Screen(gc, work)
	if len(screened) == 0 {
		return r.Fallback(rng, gc)
	}
	return Pick(rng, screened)
}

// Screen runs the safety and context stages and returns the survivors with
// their context scores set.
func (r *Router) Screen(gc *types.GenerationContext, candidates []types.Candidate) []types.Candidate {
	safe := r.SafetyCheck(gc, candidates)
	for i := range safe {
		safe[i].ContextScore = r.ContextScore(gc, safe[i].Text)
	}
	return safe
}

// SafetyCheck drops empty, blocked, too short or long, and malformed
// candidates. Persona-inconsistent ones survive at 0.7 confidence.
func (r *Router) SafetyCheck(gc *types.GenerationContext, candidates []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Text) == "" || r.Blocked(c.Text) {
			continue
		}
		words := len(strings.Fields(c.Text))
		if words < minWords || words > maxWords {
			continue
		}
		if !balanced(c.Text) {
			continue
		}
		if !personaConsistent(gc.Persona, c.Text) {
			c.Confidence *= consistencyFactor
		}
		out = append(out, c)
	}
	return out
}

// balanced rejects unfilled template slots and broken emote markers.
func balanced(text string) bool {
	return strings.Count(text, "{") == strings.Count(text, "}") && strings.Count(text, "*")%2 == 0
}

func personaConsistent(persona, text string) bool {
	keywords := personaKeywords[strings.ToLower(persona)]
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	return utils.ContainsAny(lower, keywords...) || len(strings.Fields(lower)) < consistencyWords
}

// ContextScore is the product of the scenario, mood, history and persona
// style factors, floored at 0.1.
func (r *Router) ContextScore(gc *types.GenerationContext, text string) float64 {
	lower := strings.ToLower(text)
	score := 1.0
	if gc.Topic != "" {
		score *= scenarioScore(lower, gc.Topic)
	}
	if gc.Mood != "" {
		score *= moodScore(lower, gc.Mood)
	}
	if len(gc.History) > 0 {
		score *= historyScore(lower, gc.History)
	}
	if gc.Persona != "" {
		score *= r.styleScore(lower, gc)
	}
	return max(minContextScore, score)
}

func scenarioScore(lower, scenario string) float64 {
	b, ok := scenarioBoosts[strings.ToLower(scenario)]
	if ok && utils.ContainsAny(lower, b.words...) {
		return b.boost
	}
	return 1
}

func moodScore(lower, mood string) float64 {
	indicators := moodIndicators[mood]
	if len(indicators) == 0 {
		return 1
	}
	if n := utils.CountContained(lower, indicators); n > 0 {
		return 1 + moodStep*float64(min(n, moodMaxMatches))
	}
	return moodMismatch
}

func historyScore(lower string, history []types.Message) float64 {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	words := utils.WordSet(lower)
	for _, m := range history {
		if m.Role != types.RoleAssistant {
			continue
		}
		if utils.JaccardSets(words, utils.WordSet(m.Content)) > historyOverlap {
			return historyPenalty
		}
	}
	return 1
}

func (r *Router) styleScore(lower string, gc *types.GenerationContext) float64 {
	p, ok := r.profile(gc)
	if !ok || p.SpeakingStyle == "" {
		return 1
	}
	score := 1.0
	words := strings.Fields(strings.ToLower(p.SpeakingStyle))
	if len(words) > styleWords {
		words = words[:styleWords]
	}
	for _, w := range words {
		if len(w) > styleMinChars && strings.Contains(lower, w) {
			score *= styleBoost
		}
	}
	return min(styleCap, score)
}

// Pick draws one candidate with probability proportional to its final
// score, each floored at 0.05.
func Pick(rng *rand.Rand, candidates []types.Candidate) types.Candidate {
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = c.FinalScore()
	}
	return candidates[utils.WeightedIndex(rng, weights, selectionFloor)]
}

// Fallback synthesizes a reply from the persona's openers, or a generic
// phrase when it has none.
func (r *Router) Fallback(rng *rand.Rand, gc *types.GenerationContext) types.Candidate {
	text := ""
	if p, ok := r.profile(gc); ok && len(p.Openers) > 0 {
		text = utils.Choice(rng, p.Openers)
	} else {
		text = utils.Choice(rng, fallbackPhrases)
	}
	c := types.NewCandidate(text, SourceFallback, fallbackConf)
	c.Metadata["reason"] = "safety_fallback"
	return c
}
