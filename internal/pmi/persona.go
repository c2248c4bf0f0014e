package pmi

import (
	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

const fitVocab = 100

// PersonaModels keeps one model per persona and a global one over all replies.
// It is read-only once built.
type PersonaModels struct {
	global *Model
	models map[string]*Model
	top    map[string][]string
}

// BuildPersonaModels trains on assistant replies.
func BuildPersonaModels(samples map[string][]types.TrainingSample, opts ...Option) *PersonaModels {
	p := &PersonaModels{
		global: New(opts...),
		models: make(map[string]*Model, len(samples)),
		top:    make(map[string][]string, len(samples)),
	}
	for persona, list := range samples {
		m := New(opts...)
		for _, s := range list {
			if s.Reply == "" {
				continue
			}
			m.Add(s.Reply)
			p.global.Add(s.Reply)
		}
		if m.VocabSize() > 0 {
			p.models[persona] = m
			p.top[persona] = m.TopWords(fitVocab)
		}
	}
	return p
}

// For returns the persona model or the global one.
func (p *PersonaModels) For(persona string) *Model {
	if m, ok := p.models[persona]; ok {
		return m
	}
	return p.global
}

// Associations ranks words related to word for a persona.
func (p *PersonaModels) Associations(word, persona string, k int) []Association {
	return p.For(persona).Associations(word, k)
}

// ExpandQuery expands query with the persona's associations at decay 0.5.
func (p *PersonaModels) ExpandQuery(query, persona string, perWord int) []WeightedTerm {
	return p.For(persona).ExpandQuery(query, perWord, 0.5)
}

// VocabularySimilarity is the Jaccard overlap of the association sets reached
// from each persona's top words.
func (p *PersonaModels) VocabularySimilarity(a, b string, sample int) float64 {
	ma, okA := p.models[a]
	mb, okB := p.models[b]
	if !okA || !okB {
		return 0
	}
	setA := associationSet(ma, sample)
	setB := associationSet(mb, sample)
	return utils.JaccardSets(setA, setB)
}

func associationSet(m *Model, sample int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range m.TopWords(sample) {
		for _, a := range m.Associations(w, 5) {
			set[a.Word] = struct{}{}
		}
	}
	return set
}

// ResponseFit scores how well text matches a persona's vocabulary as the mean
// positive PPMI against its top 100 words, scaled by 1/5 and capped at 1.
// Unknown personas and texts with no associations score 0.5.
func (p *PersonaModels) ResponseFit(text, persona string) float64 {
	m, ok := p.models[persona]
	if !ok {
		return 0.5
	}
	tokens := utils.Words(text)
	if len(tokens) == 0 {
		return 0.5
	}
	vocab := p.top[persona]
	sum, n := 0.0, 0
	for _, t := range tokens {
		for _, v := range vocab {
			if t == v {
				continue
			}
			if s := m.PPMI(t, v); s > 0 {
				sum += s
				n++
			}
		}
	}
	if n == 0 {
		return 0.5
	}
	return min(1, sum/float64(n)/5)
}

// Global is the model over every persona's replies.
func (p *PersonaModels) Global() *Model {
	return p.global
}
