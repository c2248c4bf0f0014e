package ngram

import (
	"math"
	"math/rand/v2"

	"github.com/easeaico/persona-engine/internal/types"
)

// PersonaOrder is the order used for per-persona models.
const PersonaOrder = 3

// PersonaModels holds one reply model per persona plus a pooled default.
type PersonaModels struct {
	models map[string]*Model
}

// BuildPersonaModels trains a model on each persona's replies.
func BuildPersonaModels(samples map[string][]types.TrainingSample) *PersonaModels {
	p := &PersonaModels{models: make(map[string]*Model, len(samples)+1)}
	var all []string
	for persona, list := range samples {
		replies := make([]string, 0, len(list))
		for _, s := range list {
			if s.Reply != "" {
				replies = append(replies, s.Reply)
			}
		}
		if len(replies) == 0 {
			continue
		}
		p.models[persona] = New(PersonaOrder).Train(replies)
		all = append(all, replies...)
	}
	if len(all) > 0 {
		p.models[types.DefaultPersona] = New(PersonaOrder).Train(all)
	}
	return p
}

// For returns the persona model or the default one. It may be nil.
func (p *PersonaModels) For(persona string) *Model {
	if m, ok := p.models[persona]; ok {
		return m
	}
	return p.models[types.DefaultPersona]
}

// Generate continues seed with the persona's model.
func (p *PersonaModels) Generate(r *rand.Rand, persona, seed string, maxLen int, temperature, repPenalty float64) string {
	m := p.For(persona)
	if m == nil {
		return ""
	}
	return m.Generate(r, seed, maxLen, temperature, repPenalty)
}

// Score is the persona model's fluency score for text, 0 without a model.
func (p *PersonaModels) Score(persona, text string) float64 {
	m := p.For(persona)
	if m == nil {
		return 0
	}
	return m.Score(text)
}

// Perplexity under the persona model, +Inf without a model.
func (p *PersonaModels) Perplexity(persona, text string) float64 {
	m := p.For(persona)
	if m == nil {
		return math.Inf(1)
	}
	return m.Perplexity(text)
}

// Len is the number of trained models including the default.
func (p *PersonaModels) Len() int {
	return len(p.models)
}
