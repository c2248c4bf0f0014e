package trie

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/types"
)

func TestInsertSearchDelete(t *testing.T) {
	tr := New()
	tr.Insert("Planet")
	tr.Insert("plan")
	assert.True(t, tr.Search("planet"))
	assert.True(t, tr.Search("PLAN"))
	assert.False(t, tr.Search("pla"))
	assert.True(t, tr.StartsWith("pla"))
	assert.Equal(t, 2, tr.Len())

	assert.True(t, tr.Delete("planet"))
	assert.False(t, tr.Search("planet"))
	assert.True(t, tr.Search("plan"), "sibling prefix survives")
	assert.False(t, tr.Delete("planet"))
	assert.Equal(t, 1, tr.Len())
}

func TestCaseSensitive(t *testing.T) {
	tr := NewCaseSensitive()
	tr.Insert("Elio")
	assert.True(t, tr.Search("Elio"))
	assert.False(t, tr.Search("elio"))
	assert.True(t, tr.Stats().CaseSensitive)
}

func TestCountAndPayload(t *testing.T) {
	tr := New()
	tr.Insert("love", Payload{Persona: "Glordon", Weight: 1})
	tr.Insert("love", Payload{Persona: "Auva", Weight: 1})
	tr.Insert("love", Payload{Persona: "Glordon", Weight: 0.5})
	assert.Equal(t, 3, tr.Count("love"))
	payloads, ok := tr.Lookup("love")
	require.True(t, ok)
	assert.Equal(t, []Payload{{"Glordon", 0.5}, {"Auva", 1}}, payloads)
}

func TestPrefixScanAndAutocomplete(t *testing.T) {
	tr := New()
	for _, w := range []string{"star", "stars", "start", "stop", "space"} {
		tr.Insert(w)
	}
	assert.Equal(t, []string{"star", "stars", "start"}, tr.Autocomplete("sta", 5))
	assert.Len(t, tr.PrefixScan("s", 2), 2)
	assert.Empty(t, tr.Autocomplete("x", 5))
}

func TestFindAllMatchesOffsets(t *testing.T) {
	tr := New()
	tr.Insert("air force")
	tr.Insert("air")
	text := "my aunt was in the Air Force"
	matches := tr.FindAllMatches(text)
	require.Len(t, matches, 2)
	assert.Equal(t, 19, matches[0].Pos)
	assert.Equal(t, "air", matches[0].Word)
	assert.Equal(t, "air force", matches[1].Word)
	assert.Equal(t, 19, matches[1].Pos)
}

func TestFindAllMatchesOffsetsAfterFolding(t *testing.T) {
	tr := New()
	tr.Insert("elio")
	tr.Insert("kid")

	for _, tc := range []struct {
		text string
		pos  int
	}{
		{"\xffelio", 1},
		{"\u212A Elio", 4},
		{"Ünd ELIO", 5},
	} {
		matches := tr.FindAllMatches(tc.text)
		require.Len(t, matches, 1, tc.text)
		assert.Equal(t, "elio", matches[0].Word)
		assert.Equal(t, tc.pos, matches[0].Pos, tc.text)
		assert.Equal(t, "elio", strings.ToLower(tc.text[matches[0].Pos:matches[0].End]))
	}

	// the Kelvin sign folds to k and is reported at its own width
	matches := tr.FindAllMatches("a \u212Aid")
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Pos)
	assert.Equal(t, 7, matches[0].End)
}

func TestLongestMatchAfterFolding(t *testing.T) {
	tr := New()
	tr.Insert("never alone")
	text := "\xff\u212A never alone"
	m, ok := tr.LongestMatch(text, 5)
	require.True(t, ok)
	assert.Equal(t, "never alone", m.Word)
	assert.Equal(t, 5, m.Pos)
	assert.Equal(t, len(text), m.End)

	_, ok = tr.LongestMatch(text, 2)
	assert.False(t, ok, "offset inside a rune")
}

func TestLongestMatch(t *testing.T) {
	tr := New()
	tr.Insert("never")
	tr.Insert("never alone")
	m, ok := tr.LongestMatch("you are never alone", 8)
	require.True(t, ok)
	assert.Equal(t, "never alone", m.Word)
	_, ok = tr.LongestMatch("you are never alone", 0)
	assert.False(t, ok)
	_, ok = tr.LongestMatch("short", 99)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	tr := New()
	tr.Insert("ab")
	tr.Insert("ac")
	st := tr.Stats()
	assert.Equal(t, 2, st.Words)
	assert.Equal(t, 4, st.Nodes)
}

func TestDetectPersona(t *testing.T) {
	p := NewPersonaKeywordTrie()
	persona, conf := p.DetectPersona("Tell me about the stars and the galaxy")
	assert.Equal(t, "Elio", persona)
	assert.Greater(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 1.0)

	persona, conf = p.DetectPersona("zzz qqq")
	assert.Equal(t, types.DefaultPersona, persona)
	assert.Equal(t, 0.0, conf)
}

func TestDetectKeywordsSharedWord(t *testing.T) {
	p := NewPersonaKeywordTrie()
	matches := p.DetectKeywords("I love you")
	personas := map[string]bool{}
	for _, m := range matches {
		assert.Equal(t, "love", m.Keyword)
		assert.Equal(t, 2, m.Pos)
		personas[m.Persona] = true
	}
	assert.True(t, personas["Glordon"])
	assert.True(t, personas["Auva"])
	assert.Equal(t, []string{"love"}, p.Keywords("I love you, love"))
}

func TestScoreForPersona(t *testing.T) {
	p := NewPersonaKeywordTrie()
	assert.Equal(t, 0.0, p.ScoreForPersona("stars", "Nobody"))
	assert.Equal(t, 0.0, p.ScoreForPersona("", "Elio"))
	// one hit over four words: 1 / (4 * 0.5)
	assert.InDelta(t, 0.5, p.ScoreForPersona("look at the rocket", "Elio"), 1e-9)
	assert.Equal(t, 1.0, p.ScoreForPersona("rocket galaxy", "Elio"))
}

func TestLearnFromSamples(t *testing.T) {
	p := NewPersonaKeywordTrie()
	var list []types.TrainingSample
	for i := 0; i < 3; i++ {
		list = append(list, types.TrainingSample{Reply: "blorp blorp marvelous the it"})
	}
	p.LearnFromSamples(map[string][]types.TrainingSample{"Newbie": list})

	assert.Contains(t, p.Personas(), "Newbie")
	matches := p.DetectKeywords("marvelous")
	require.Len(t, matches, 1)
	assert.Equal(t, "Newbie", matches[0].Persona)
	assert.Equal(t, 0.5, matches[0].Weight)
	assert.Empty(t, p.DetectKeywords("the"))
}
