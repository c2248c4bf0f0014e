package corpus

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/types"
)

const personasYAML = `personas:
  - name: Elio
    openers: ["Whoa!"]
    speaking_style: "Curious and earnest. Loves space."
  - name: Glordon
    openers: ["Hey hey"]
    speaking_style: "Gentle"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func line(persona, scenario, user, reply string) string {
	rec := map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": "ignored"},
			{"role": "user", "content": user},
			{"role": "assistant", "content": reply},
		},
		"metadata": map[string]string{"character": persona, "scenario": scenario},
	}
	b, _ := json.Marshal(rec)
	return string(b)
}

func TestLoadPersonas(t *testing.T) {
	dir := t.TempDir()
	set, err := LoadPersonas(writeFile(t, dir, "personas.yaml", personasYAML))
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, []string{"Whoa!"}, set["Elio"].Openers)

	jsonSet, err := LoadPersonas(writeFile(t, dir, "personas.json", `{"personas":[{"name":"Olga","openers":["Listen"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Listen", jsonSet["Olga"].Openers[0])

	missing, err := LoadPersonas(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestResolvePersona(t *testing.T) {
	set := types.PersonaSet{"Elio": {Name: "Elio"}, "Lord Grigon": {Name: "Lord Grigon"}}
	assert.Equal(t, "Elio", ResolvePersona(set, "elio"))
	assert.Equal(t, "Elio", ResolvePersona(set, "Elio Solis"))
	assert.Equal(t, "Lord Grigon", ResolvePersona(set, "grigon"))
	assert.Equal(t, "Bryce", ResolvePersona(set, "bRYCE the kid"))
	assert.Equal(t, types.DefaultPersona, ResolvePersona(set, "  "))
	assert.Equal(t, types.DefaultPersona, ResolvePersona(set, "default"))
}

func TestLoadSamples(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "training")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "a.jsonl", strings.Join([]string{
		line("elio", "greeting", "hi there", "hello friend"),
		"",
		"{not json",
		line("Glordon", "", "hug?", "always"),
	}, "\n"))
	writeFile(t, sub, "ignored.txt", line("Elio", "x", "y", "z"))
	single := writeFile(t, dir, "extra.jsonl", line("Unknown Person", "lore", "q", "a"))

	set := types.PersonaSet{"Elio": {Name: "Elio"}, "Glordon": {Name: "Glordon"}}
	samples, report, err := LoadSamples([]string{sub, single, filepath.Join(dir, "missing.jsonl")}, set)
	require.NoError(t, err)

	assert.Equal(t, 1, report.SkippedRows)
	assert.Len(t, report.Files, 2)
	assert.Len(t, report.Missing, 1)
	require.Len(t, samples["Elio"], 1)
	assert.Equal(t, types.TrainingSample{Persona: "Elio", User: "hi there", Reply: "hello friend", Scenario: "greeting"}, samples["Elio"][0])
	assert.Equal(t, "generic", samples["Glordon"][0].Scenario)
	assert.Len(t, samples["Unknown"], 1)
	assert.Equal(t, 3, samples.Count())
}

func TestTFIDFSimilarity(t *testing.T) {
	m := FitTFIDF([]string{
		"what is your favorite planet lore",
		"do you like hugs feelings",
		"tell me about the military advice",
	})
	sims := m.Similarities("favorite planet")
	require.Len(t, sims, 3)
	assert.Greater(t, sims[0], sims[1])
	assert.Greater(t, sims[0], sims[2])
	assert.LessOrEqual(t, sims[0], 1.0+1e-9)
	assert.Equal(t, []int{0, 1}, TopIndices(sims, 2))
}

func TestTFIDFSingleDocKeepsVocabulary(t *testing.T) {
	m := FitTFIDF([]string{"only planet here"})
	assert.Positive(t, m.VocabSize())
	assert.Greater(t, m.Similarities("planet")[0], 0.0)
}

func TestMarkovGenerate(t *testing.T) {
	m := NewMarkov(2).Train([]string{
		"the stars are bright tonight",
		"the stars are far away",
		"short",
	})
	r := rand.New(rand.NewPCG(1, 2))
	out := m.Generate(r, "look at the stars", 6, 1, 1.1)
	tokens := strings.Fields(out)
	require.GreaterOrEqual(t, len(tokens), 3)
	assert.LessOrEqual(t, len(tokens), 6)
	assert.Equal(t, []string{"the", "stars", "are"}, tokens[:3])

	assert.Equal(t, "", NewMarkov(2).Generate(r, "x", 5, 1, 1))
	assert.Equal(t, 3, NewMarkov(7).Order())
}

func TestMarkovJSONRoundTrip(t *testing.T) {
	m := NewMarkov(2).Train([]string{"a b c d", "a b e"})
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var restored Markov
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, 2, restored.Order())
	out := restored.Generate(rand.New(rand.NewPCG(3, 3)), "a b", 3, 1, 1)
	assert.Contains(t, []string{"a b c", "a b e"}, out)
}

func buildStore(t *testing.T) *Store {
	t.Helper()
	set := types.PersonaSet{
		"Elio": {Name: "Elio", Openers: []string{"Whoa!"}, SpeakingStyle: "Curious. Earnest."},
	}
	samples := Samples{
		"Elio": {
			{Persona: "Elio", User: "what is your favorite planet", Reply: "Saturn, because of the rings!", Scenario: "lore"},
			{Persona: "Elio", User: "are you lonely", Reply: "Sometimes, but the stars help.", Scenario: "feelings"},
		},
		"Glordon": {
			{Persona: "Glordon", User: "want a hug", Reply: "Always, buddy.", Scenario: "greeting"},
		},
	}
	return Build(samples, set)
}

func TestStoreReply(t *testing.T) {
	s := buildStore(t)
	assert.Equal(t, 3, s.SampleCount())
	assert.Equal(t, 2, s.PersonaCount())

	r := rand.New(rand.NewPCG(5, 6))
	hits := 0
	for i := 0; i < 50; i++ {
		reply, err := s.Reply(r, ReplyRequest{Persona: "elio", Message: "What's your favorite planet?", Mood: "curious"})
		require.NoError(t, err)
		assert.Equal(t, "Elio", reply.Persona)
		assert.Equal(t, StrategyRetrieval, reply.Strategy)
		assert.Contains(t, reply.Text, reply.Base)
		if reply.Scenario == "lore" {
			hits++
		}
	}
	assert.Greater(t, hits, 25, "most similar sample should win most draws")
}

func TestStoreUnknownPersonaUsesDefault(t *testing.T) {
	s := buildStore(t)
	reply, err := s.Reply(rand.New(rand.NewPCG(1, 1)), ReplyRequest{Persona: "Nobody", Message: "hug"})
	require.NoError(t, err)
	assert.Equal(t, "Nobody", reply.Persona)
	assert.NotEmpty(t, reply.Base)
}

func TestStoreNoData(t *testing.T) {
	s := Build(nil, nil)
	_, err := s.Reply(rand.New(rand.NewPCG(1, 1)), ReplyRequest{Persona: "elio", Message: "hi"})
	require.ErrorIs(t, err, ErrNoSamples)
	fallback := s.NoDataReply("elio")
	assert.Equal(t, "Elio: I'm here, but I need more data to answer.", fallback.Text)
	assert.Equal(t, StrategyFallback, fallback.Strategy)
}

func TestBuildQuery(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleUser, Content: "one"},
		{Role: types.RoleUser, Content: "two"},
		{Role: types.RoleAssistant, Content: "three"},
		{Role: types.RoleUser, Content: "four"},
	}
	assert.Equal(t, "two they said three four five", BuildQuery("five", history))
	assert.Equal(t, "solo", BuildQuery("solo", nil))
}

func TestStyleWrapKeepsText(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	profile := types.PersonaProfile{Openers: []string{"Whoa!"}, SpeakingStyle: "Curious. Earnest."}
	for i := 0; i < 20; i++ {
		out := StyleWrap(r, profile, "Elio", "the stars", "warm")
		assert.True(t, strings.HasSuffix(out, "the stars"))
		assert.NotContains(t, out, "  ")
	}
	assert.Equal(t, "", MoodFiller(r, "Nobody", "neutral"))
}

func TestStoreNearestAndExtend(t *testing.T) {
	s := buildStore(t)
	sample, sim, ok := s.Nearest("elio", "favorite planet")
	require.True(t, ok)
	assert.Equal(t, "lore", sample.Scenario)
	assert.Greater(t, sim, 0.0)

	r := rand.New(rand.NewPCG(2, 2))
	assert.Equal(t, "of the rings!", s.Extend(r, "elio", "Saturn, because", 3, 1, 1))
	assert.Equal(t, "of", s.Extend(r, "elio", "Saturn, because", 1, 1, 1))
	assert.Empty(t, s.Extend(r, "elio", "Saturn, because", 0, 1, 1))

	_, _, ok = Build(nil, nil).Nearest("elio", "planet")
	assert.False(t, ok)
}
