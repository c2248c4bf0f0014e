package pmi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/types"
)

var docs = []string{
	"black holes bend light in space",
	"black holes swallow light forever",
	"the ocean is deep and blue",
	"the ocean waves are blue today",
	"space is full of stars",
	"stars shine in space tonight",
}

func TestPMIRelatedPairsScoreHigher(t *testing.T) {
	m := New().Train(docs)
	assert.Greater(t, m.PMI("black", "holes"), m.PMI("black", "space"))
	assert.True(t, math.IsInf(m.PMI("holes", "ocean"), -1))
	assert.Equal(t, 0.0, m.PMI("black", "tonight"), "rare words score zero")
}

func TestPPMIAndNPMIBounds(t *testing.T) {
	m := New().Train(docs)
	assert.GreaterOrEqual(t, m.PPMI("holes", "ocean"), 0.0)
	n := m.NPMI("black", "holes")
	assert.GreaterOrEqual(t, n, -1.0)
	assert.LessOrEqual(t, n, 1.0)
	assert.Equal(t, -1.0, m.NPMI("holes", "ocean"))
}

func TestAssociations(t *testing.T) {
	m := New().Train(docs)
	assoc := m.Associations("Ocean", 3)
	require.NotEmpty(t, assoc)
	words := make([]string, 0, len(assoc))
	for _, a := range assoc {
		assert.Greater(t, a.Score, 0.0)
		words = append(words, a.Word)
	}
	assert.Contains(t, words, "blue")
	assert.Empty(t, m.Associations("unknown", 3))
}

func TestExpandQuery(t *testing.T) {
	m := New().Train(docs)
	terms := m.ExpandQuery("ocean", 3, 0.5)
	require.NotEmpty(t, terms)
	assert.Equal(t, "ocean", terms[0].Term)
	assert.Equal(t, 1.0, terms[0].Weight)
	for _, term := range terms[1:] {
		assert.LessOrEqual(t, term.Weight, 0.5)
	}
	assert.Empty(t, m.ExpandQuery("", 3, 0.5))
}

func TestTopicCoherence(t *testing.T) {
	m := New().Train(docs)
	related := m.TopicCoherence([]string{"black", "holes", "light"})
	unrelated := m.TopicCoherence([]string{"holes", "ocean", "waves"})
	assert.Greater(t, related, unrelated)
	assert.Equal(t, 0.0, m.TopicCoherence([]string{"one"}))
}

func TestStats(t *testing.T) {
	m := New(WithWindow(1)).Train([]string{"aa bb cc"})
	st := m.Stats()
	assert.Equal(t, 3, st.TotalWords)
	assert.Equal(t, 3, st.UniqueWords)
	assert.Equal(t, 4, st.TotalPairs)
	assert.Equal(t, 2, st.UniquePairs)
}

func TestPersonaModels(t *testing.T) {
	samples := map[string][]types.TrainingSample{
		"Elio":  {{Reply: docs[0]}, {Reply: docs[1]}, {Reply: docs[4]}, {Reply: docs[5]}},
		"Olga":  {{Reply: docs[2]}, {Reply: docs[3]}},
		"Empty": {{User: "hi"}},
	}
	p := BuildPersonaModels(samples)
	assert.Same(t, p.Global(), p.For("Empty"))
	assert.NotSame(t, p.Global(), p.For("Elio"))

	assert.NotEmpty(t, p.Associations("holes", "Elio", 5))
	assert.Empty(t, p.Associations("holes", "Olga", 5))
	assert.NotEmpty(t, p.ExpandQuery("space", "Elio", 3))

	assert.Equal(t, 0.5, p.ResponseFit("anything", "Nobody"))
	fit := p.ResponseFit("black holes in space", "Elio")
	assert.Greater(t, fit, 0.0)
	assert.LessOrEqual(t, fit, 1.0)
	assert.Equal(t, p.For("Elio").TopWords(fitVocab), p.top["Elio"])
	assert.NotContains(t, p.top, "Empty")
	assert.Equal(t, fit, p.ResponseFit("black holes in space", "Elio"))

	assert.Equal(t, 1.0, p.VocabularySimilarity("Elio", "Elio", 50))
	assert.Equal(t, 0.0, p.VocabularySimilarity("Elio", "Nobody", 50))
}
