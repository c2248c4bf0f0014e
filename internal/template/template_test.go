package template

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillGreetingForElio(t *testing.T) {
	f := New()
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 30; i++ {
		res := f.Fill(r, "Elio", "greeting", "excited", nil)
		require.NotEmpty(t, res.Text)
		assert.Equal(t, Source, res.Source)
		assert.NotContains(t, res.Text, "{")
		assert.NotContains(t, res.Text, "  ")
		assert.GreaterOrEqual(t, res.Confidence, 0.5)
		assert.LessOrEqual(t, res.Confidence, 0.8)
		tmpl := res.Metadata["template"].(string)
		assert.Contains(t, []string{
			"{emote} {opener}! {feeling_phrase} {topic_hook}",
			"{emote} Oh, {opener}... {feeling_phrase}",
		}, tmpl)
	}
}

func TestFillUnknownScenarioUsesFallback(t *testing.T) {
	f := New()
	res := f.Fill(rand.New(rand.NewPCG(3, 4)), "Olga", "no-such-scenario", "neutral", nil)
	assert.NotEmpty(t, res.Text)
	assert.Equal(t, "no-such-scenario", res.Metadata["scenario"])
}

func TestContextSlotsWin(t *testing.T) {
	f := New()
	f.AddTemplate("custom", "{emote} {name} is here .", "")
	res := f.Fill(rand.New(rand.NewPCG(5, 6)), "Nobody", "custom", "neutral", map[string]string{
		"emote": "*waves*",
		"name":  "Zed",
	})
	assert.Equal(t, "*waves* Zed is here.", res.Text)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestMissingSlotLowersConfidence(t *testing.T) {
	f := New()
	f.AddTemplate("sparse", "{unknown_slot} hello", "")
	res := f.Fill(rand.New(rand.NewPCG(1, 1)), "x", "sparse", "neutral", nil)
	assert.Equal(t, "hello", res.Text)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestOlgaCalmsExclamations(t *testing.T) {
	f := New()
	f.AddTemplate("shout", "Go now!", "olga")
	r := rand.New(rand.NewPCG(7, 8))
	calmed := 0
	for i := 0; i < 200; i++ {
		if f.Fill(r, "Olga", "shout", "neutral", nil).Text == "Go now." {
			calmed++
		}
	}
	// 30% expected.
	assert.Greater(t, calmed, 30)
	assert.Less(t, calmed, 100)
}

func TestWeightedChoiceMoodBoost(t *testing.T) {
	options := []Choice{{"plain", 0.5}, {"wow!", 0.5}}
	r := rand.New(rand.NewPCG(9, 9))
	wow := 0
	for i := 0; i < 2000; i++ {
		if weightedChoice(r, options, "excited") == "wow!" {
			wow++
		}
	}
	// 1.3 / 2.3 is about 0.565.
	assert.Greater(t, wow, 1050)
	assert.Equal(t, "", weightedChoice(r, nil, "excited"))
	assert.Equal(t, "a", weightedChoice(r, []Choice{{"a", 0}, {"b", 0}}, "neutral"))
}

func TestScenariosAndPersonas(t *testing.T) {
	f := New()
	assert.Equal(t, []string{"curiosity", "encouragement", "fallback", "greeting", "question_response"}, f.Scenarios())
	assert.Equal(t, []string{"elio", "glordon", "olga"}, f.Personas())
	f.AddFiller("emote", []Choice{{"*waves*", 1}}, "Questa")
	assert.Contains(t, f.Personas(), "questa")
	assert.True(t, f.HasScenario("greeting"))
	assert.False(t, f.HasScenario("lore"))
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, New().Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, New().Scenarios(), loaded.Scenarios())

	missing, err := Load(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, missing.Scenarios())

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates: {}\n"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"templates":{"greeting":{"default":["{opener}!"]}},"slot_fillers":{"default":{"opener":[{"text":"Yo","weight":1}]}}}`), 0o644))
	j, err := Load(jsonPath)
	require.NoError(t, err)
	res := j.Fill(rand.New(rand.NewPCG(1, 1)), "any", "greeting", "neutral", nil)
	assert.True(t, strings.HasPrefix(res.Text, "Yo"))
}
