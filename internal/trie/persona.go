package trie

import (
	"sort"
	"strings"
	"sync"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// KeywordMatch is one persona keyword spotted in a text.
type KeywordMatch struct {
	Keyword string  `json:"keyword"`
	Persona string  `json:"persona"`
	Weight  float64 `json:"weight"`
	Pos     int     `json:"pos"`
}

var defaultKeywords = []struct {
	persona  string
	keywords []string
}{
	{"Elio", []string{
		"elio", "space", "alien", "stars", "cosmic", "universe", "amazing", "wow", "cool",
		"astronomy", "rocket", "planet", "galaxy", "satellite", "ambassador", "communiverse",
	}},
	{"Glordon", []string{
		"glordon", "friend", "potato", "kind", "hug", "love", "gentle", "soft", "warm",
		"together", "buddy", "pal",
	}},
	{"Olga", []string{
		"olga", "aunt", "discipline", "military", "air force", "proper", "important", "safety",
		"protect", "careful", "training", "duty", "major",
	}},
	{"Lord Grigon", []string{
		"grigon", "hylurg", "warrior", "honor", "battle", "conquest", "power", "strength",
		"tradition", "glory",
	}},
	{"Questa", []string{
		"questa", "gom", "mind", "thoughts", "sense", "feel", "never alone", "connection", "empathy",
	}},
	{"Auva", []string{
		"auva", "manual", "positive", "vibes", "optimist", "peace", "love", "user's manual",
	}},
}

// PersonaKeywordTrie spots persona keywords with one trie per persona and a
// shared trie over all of them.
type PersonaKeywordTrie struct {
	mu     sync.RWMutex
	order  []string
	tries  map[string]*Trie
	shared *Trie
}

// NewPersonaKeywordTrie returns a detector seeded with the built-in keywords.
func NewPersonaKeywordTrie() *PersonaKeywordTrie {
	p := &PersonaKeywordTrie{tries: make(map[string]*Trie), shared: New()}
	for _, d := range defaultKeywords {
		p.AddKeywords(d.persona, d.keywords, 1)
	}
	return p
}

// AddKeywords registers keywords for persona at weight.
func (p *PersonaKeywordTrie) AddKeywords(persona string, keywords []string, weight float64) {
	p.mu.Lock()
	t, ok := p.tries[persona]
	if !ok {
		t = New()
		p.tries[persona] = t
		p.order = append(p.order, persona)
	}
	p.mu.Unlock()

	payload := Payload{Persona: persona, Weight: weight}
	for _, kw := range keywords {
		t.Insert(kw, payload)
		p.shared.Insert(kw, payload)
	}
}

// DetectKeywords lists every persona keyword in text. A keyword shared by
// several personas yields one match per persona.
func (p *PersonaKeywordTrie) DetectKeywords(text string) []KeywordMatch {
	var out []KeywordMatch
	for _, m := range p.shared.FindAllMatches(text) {
		for _, pl := range m.Payloads {
			out = append(out, KeywordMatch{Keyword: m.Word, Persona: pl.Persona, Weight: pl.Weight, Pos: m.Pos})
		}
	}
	return out
}

// Keywords returns the distinct keywords found in text in order of first
// appearance.
func (p *PersonaKeywordTrie) Keywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range p.shared.FindAllMatches(text) {
		if _, ok := seen[m.Word]; ok {
			continue
		}
		seen[m.Word] = struct{}{}
		out = append(out, m.Word)
	}
	return out
}

// ScoreForPersona is min(1, Σweight / (words·0.5)) over the persona's keyword
// hits.
func (p *PersonaKeywordTrie) ScoreForPersona(text, persona string) float64 {
	p.mu.RLock()
	t, ok := p.tries[persona]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	total := 0.0
	for _, m := range t.FindAllMatches(text) {
		w := 1.0
		if len(m.Payloads) > 0 {
			w = m.Payloads[0].Weight
		}
		total += w
	}
	return min(1, total/(float64(words)*0.5))
}

// DetectPersona returns the best scoring persona, or the default bucket with
// confidence 0 when nothing matches. Ties go to the earlier registered persona.
func (p *PersonaKeywordTrie) DetectPersona(text string) (string, float64) {
	best, bestScore := types.DefaultPersona, 0.0
	for _, persona := range p.Personas() {
		if s := p.ScoreForPersona(text, persona); s > bestScore {
			best, bestScore = persona, s
		}
	}
	return best, bestScore
}

// Personas lists personas in registration order.
func (p *PersonaKeywordTrie) Personas() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// LearnFromSamples adds each persona's 20 most frequent reply words (longer
// than three characters, seen more than twice, not stop words) at weight 0.5.
func (p *PersonaKeywordTrie) LearnFromSamples(samples map[string][]types.TrainingSample) {
	personas := make([]string, 0, len(samples))
	for persona := range samples {
		personas = append(personas, persona)
	}
	sort.Strings(personas)

	for _, persona := range personas {
		if persona == "" || persona == types.DefaultPersona {
			continue
		}
		counts := make(map[string]int)
		for _, s := range samples[persona] {
			for _, w := range utils.Tokenize(s.Reply) {
				counts[w]++
			}
		}
		words := make([]string, 0, len(counts))
		for w, c := range counts {
			if c > 2 && len(w) > 3 && !utils.IsStopWord(w) {
				words = append(words, w)
			}
		}
		sort.Slice(words, func(i, j int) bool {
			if counts[words[i]] == counts[words[j]] {
				return words[i] < words[j]
			}
			return counts[words[i]] > counts[words[j]]
		})
		if len(words) > 20 {
			words = words[:20]
		}
		if len(words) > 0 {
			p.AddKeywords(persona, words, 0.5)
		}
	}
}
