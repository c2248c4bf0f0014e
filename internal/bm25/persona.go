package bm25

import (
	"fmt"
	"sort"

	"github.com/easeaico/persona-engine/internal/types"
)

// Match is a retrieved reply for a persona.
type Match struct {
	Reply    string
	User     string
	Scenario string
	Score    float64
}

// PersonaIndex holds one index per persona plus a pooled default.
type PersonaIndex struct {
	indices map[string]*Index
}

// BuildPersonaIndex indexes each sample by its user utterance and keeps the
// reply and scenario as metadata. Personas are visited in name order so the
// pooled default is identical across builds.
func BuildPersonaIndex(samples map[string][]types.TrainingSample, opts ...Option) *PersonaIndex {
	p := &PersonaIndex{indices: make(map[string]*Index, len(samples)+1)}
	personas := make([]string, 0, len(samples))
	for persona := range samples {
		personas = append(personas, persona)
	}
	sort.Strings(personas)

	var all []Document
	for _, persona := range personas {
		list := samples[persona]
		docs := make([]Document, 0, len(list))
		for i, s := range list {
			if s.User == "" || s.Reply == "" {
				continue
			}
			docs = append(docs, Document{
				ID:   fmt.Sprintf("%s_%d", persona, i),
				Text: s.User,
				Metadata: map[string]string{
					"reply":    s.Reply,
					"scenario": s.Scenario,
					"persona":  persona,
				},
			})
		}
		if len(docs) == 0 {
			continue
		}
		p.indices[persona] = Build(docs, opts...)
		all = append(all, docs...)
	}
	if len(all) > 0 {
		p.indices[types.DefaultPersona] = Build(all, opts...)
	}
	return p
}

// For returns the persona index, falling back to the pooled default.
func (p *PersonaIndex) For(persona string) *Index {
	if ix, ok := p.indices[persona]; ok {
		return ix
	}
	return p.indices[types.DefaultPersona]
}

// Search ranks replies for a persona.
func (p *PersonaIndex) Search(persona, query string, k int) []Match {
	ix := p.For(persona)
	if ix == nil {
		return nil
	}
	return toMatches(ix.Search(query, k))
}

// SearchWithExpansion is Search with pseudo-relevance feedback.
func (p *PersonaIndex) SearchWithExpansion(persona, query string, k int) []Match {
	ix := p.For(persona)
	if ix == nil {
		return nil
	}
	return toMatches(ix.SearchWithExpansion(query, k, 3, 5))
}

func toMatches(results []Result) []Match {
	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{
			Reply:    r.Document.Metadata["reply"],
			User:     r.Document.Text,
			Scenario: r.Document.Metadata["scenario"],
			Score:    r.Score,
		})
	}
	return out
}

// Personas lists indexed personas including the default bucket.
func (p *PersonaIndex) Personas() []string {
	out := make([]string, 0, len(p.indices))
	for name := range p.indices {
		out = append(out, name)
	}
	return out
}
