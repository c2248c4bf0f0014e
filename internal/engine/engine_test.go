package engine

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/config"
	"github.com/easeaico/persona-engine/internal/corpus"
	"github.com/easeaico/persona-engine/internal/dialogue"
	"github.com/easeaico/persona-engine/internal/ensemble"
	"github.com/easeaico/persona-engine/internal/storage"
	"github.com/easeaico/persona-engine/internal/stylecf"
	"github.com/easeaico/persona-engine/internal/trie"
	"github.com/easeaico/persona-engine/internal/types"
)

const personasYAML = `personas:
  - name: Elio
    openers: ["Whoa!", "Hi there!"]
    speaking_style: "Curious and earnest. Loves space."
  - name: Glordon
    openers: ["Hey hey"]
    speaking_style: "Gentle and warm."
`

var corpusRows = [][4]string{
	{"Elio", "lore", "What's your favorite planet?", "Saturn, because of the rings! They look like a cosmic hula hoop."},
	{"Elio", "lore", "Do you like the stars?", "I love the stars, they make me feel less alone out here."},
	{"Elio", "feelings", "Are you lonely?", "Sometimes, but the stars help me feel connected to everything."},
	{"Elio", "greeting", "Hello Elio", "Whoa, hi! Are you from space too? I always wanted to meet someone new."},
	{"Elio", "curiosity", "Tell me about aliens", "Aliens are the coolest thing ever, I want to visit their planet someday."},
	{"Glordon", "greeting", "Hey Glordon", "Hey hey buddy, want a potato? I saved the best one for you."},
	{"Glordon", "feelings", "I feel sad", "Oh no, that is okay buddy. I am here and we can sit together."},
	{"Glordon", "lore", "What is your planet like?", "My planet is big and gray but my friends make it feel warm."},
}

func rowLine(persona, scenario, user, reply string) string {
	rec := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": user},
			{"role": "assistant", "content": reply},
		},
		"metadata": map[string]string{"character": persona, "scenario": scenario},
	}
	b, _ := json.Marshal(rec)
	return string(b)
}

func writeCorpus(t *testing.T, path string, rows [][4]string) {
	t.Helper()
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, rowLine(r[0], r[1], r[2], r[3]))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func testSources(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	personas := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(personas, []byte(personasYAML), 0o644))
	data := filepath.Join(dir, "chat.jsonl")
	writeCorpus(t, data, corpusRows)
	return Sources{
		PersonasFile:  personas,
		CorpusFiles:   []string{data},
		TemplatesFile: filepath.Join(dir, "templates.json"),
	}
}

func newTestEngine(t *testing.T, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Sources:           testSources(t),
		Seed:              42,
		StrategyTimeout:   2 * time.Second,
		CFWeight:          0.25,
		DialogueCacheSize: 10,
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func allowedStrategies(e *Engine) []string {
	names := append([]string(nil), e.live.Load().ensemble.Names()...)
	return append(names, StrategyFallbackBase, StrategyFallbackCascade, StrategyFallback)
}

func TestReplyEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 8, e.Indices().Report.Samples)

	resp, err := e.Reply(context.Background(), types.Request{Persona: "Elio", Message: "What's your favorite planet?"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, "Elio", resp.Persona)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.True(t, types.IsMood(resp.Mood), resp.Mood)
	assert.True(t, types.IsTopic(resp.Topic), resp.Topic)
	assert.Contains(t, allowedStrategies(e), resp.Strategy)
	assert.NotEmpty(t, resp.Metadata["request_id"])
	assert.NotEmpty(t, resp.MLAnalysis.Intent)
	assert.NotEmpty(t, resp.MLAnalysis.Mood)
	assert.LessOrEqual(t, len(resp.MLAnalysis.Keywords), maxKeywords)
}

func TestReplyAcrossSelectionMethods(t *testing.T) {
	for _, method := range []string{ensemble.MethodBest, ensemble.MethodWeightedRandom, ensemble.MethodThompson} {
		t.Run(method, func(t *testing.T) {
			e := newTestEngine(t, func(o *Options) { o.SelectionMethod = method })
			history := []types.Message{
				{Role: types.RoleUser, Content: "Hello Elio"},
				{Role: types.RoleAssistant, Content: "Whoa, hi!"},
			}
			for i := 0; i < 5; i++ {
				resp, err := e.Reply(context.Background(), types.Request{
					Persona: "elio",
					Message: "Tell me about the stars",
					History: history,
					UserID:  "u1",
				})
				require.NoError(t, err)
				assert.NotEmpty(t, resp.Text)
				assert.Contains(t, allowedStrategies(e), resp.Strategy)
			}
		})
	}
}

func TestReplyUnknownPersonaAndEmptyCorpus(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Sources.CorpusFiles = []string{filepath.Join(t.TempDir(), "missing.jsonl")} })
	assert.Equal(t, 0, e.Indices().Report.Samples)
	assert.Len(t, e.Indices().Report.Missing, 1)

	resp, err := e.Reply(context.Background(), types.Request{Persona: "Nobody", Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	assert.Contains(t, allowedStrategies(e), resp.Strategy)
}

func TestReplyNotReady(t *testing.T) {
	_, err := (&Engine{}).Reply(context.Background(), types.Request{Message: "hi"})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDetectPersona(t *testing.T) {
	assert.Equal(t, "", detectPersona(nil))
	got := detectPersona([]trie.KeywordMatch{
		{Keyword: "potato", Persona: "Glordon", Weight: 0.4},
		{Keyword: "space", Persona: "Elio", Weight: 0.5},
		{Keyword: "stars", Persona: "Elio", Weight: 0.3},
		{Keyword: "buddy", Persona: "Glordon", Weight: 0.2},
	})
	assert.Equal(t, "Elio", got)
}

func TestRecordFeedbackUpdatesLearners(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Reply(ctx, types.Request{Persona: "Elio", Message: "Are you lonely?", UserID: "u1"})
	require.NoError(t, err)

	before := e.Stats().Bandit[StrategyBM25]
	require.NoError(t, e.RecordFeedback(ctx, 1, StrategyBM25, "u1"))
	after := e.Stats().Bandit[StrategyBM25]
	assert.InDelta(t, before.Alpha+1, after.Alpha, 1e-9)
	assert.Equal(t, before.Beta, after.Beta)

	require.NoError(t, e.RecordFeedback(ctx, 0, StrategyBM25, ""))
	assert.InDelta(t, after.Beta+1, e.Stats().Bandit[StrategyBM25].Beta, 1e-9)

	assert.Equal(t, 1, e.Stats().CF.Users)
	assert.Error(t, e.RecordFeedback(ctx, math.NaN(), "", ""))

	// feedback for a strategy outside the bandit is accepted
	require.NoError(t, e.RecordFeedback(ctx, 1, StrategyFallback, ""))

	e.ResetBandit(StrategyBM25)
	assert.Equal(t, 1.0, e.Stats().Bandit[StrategyBM25].Alpha)
	e.ResetBandit("")
	assert.Equal(t, 0, e.Stats().BanditContexts)
}

func TestRecordFeedbackDefaultsToLastStrategy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	resp, err := e.Reply(ctx, types.Request{Persona: "Glordon", Message: "I feel sad"})
	require.NoError(t, err)

	require.NoError(t, e.RecordFeedback(ctx, 1, "", ""))
	if st, ok := e.Stats().Bandit[resp.Strategy]; ok {
		assert.InDelta(t, 2.0, st.Alpha, 1e-9)
		assert.Equal(t, 1, e.Stats().BanditContexts)
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	e := newTestEngine(t)
	src := e.opts.Sources
	before := e.Indices().Report.Samples

	writeCorpus(t, src.CorpusFiles[0], corpusRows[:3])

	var wg sync.WaitGroup
	stop := make(chan struct{})
	seen := make(chan int, 4096)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				select {
				case seen <- e.Indices().Report.Samples:
				default:
				}
			}
		}()
	}

	report, err := e.Reload(context.Background())
	close(stop)
	wg.Wait()
	close(seen)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Samples)

	for n := range seen {
		assert.Contains(t, []int{before, report.Samples}, n)
	}
	assert.Equal(t, 3, e.Indices().Report.Samples)
}

func TestReloadCarriesPersonaProfiles(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, os.WriteFile(e.opts.Sources.PersonasFile, []byte(`personas:
  - name: Elio
    openers: ["Greetings!"]
    speaking_style: "Dreamy wanderer."
`), 0o644))
	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	profile := e.Indices().Corpus.Profile("Elio")
	assert.Equal(t, []string{"Greetings!"}, profile.Openers)

	// persona metadata travels with the index generation, not the router
	bare := &types.GenerationContext{Persona: "Elio"}
	assert.InDelta(t, 1.0, e.router.ContextScore(bare, "a dreamy wanderer."), 1e-9)
	withProfile := &types.GenerationContext{Persona: "Elio", Profile: profile}
	assert.InDelta(t, 1.21, e.router.ContextScore(withProfile, "a dreamy wanderer."), 1e-9)
}

func TestReloadFailureKeepsIndices(t *testing.T) {
	e := newTestEngine(t)
	live := e.Indices()
	require.NoError(t, os.WriteFile(e.opts.Sources.PersonasFile, []byte("personas: [unclosed"), 0o644))

	_, err := e.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, live, e.Indices())

	resp, err := e.Reply(context.Background(), types.Request{Persona: "Elio", Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
}

type memDialogue struct{ states []dialogue.Snapshot }

func (m *memDialogue) SaveDialogueStates(ctx context.Context, states []dialogue.Snapshot) error {
	m.states = states
	return nil
}

func (m *memDialogue) LoadDialogueStates(ctx context.Context) ([]dialogue.Snapshot, error) {
	return m.states, nil
}

type memStyles struct{ snap stylecf.Snapshot }

func (m *memStyles) SaveStylePrefs(ctx context.Context, snap stylecf.Snapshot) error {
	m.snap = snap
	return nil
}

func (m *memStyles) LoadStylePrefs(ctx context.Context) (stylecf.Snapshot, error) {
	return m.snap, nil
}

func TestCheckpointRestore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stores := Stores{
		Bandit:   storage.NewRedisArmStore(rdb, "test"),
		Dialogue: &memDialogue{},
		Styles:   &memStyles{},
	}
	ctx := context.Background()

	e := newTestEngine(t, func(o *Options) { o.Stores = stores })
	_, err := e.Reply(ctx, types.Request{Persona: "Elio", Message: "Do you like the stars?", UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, e.RecordFeedback(ctx, 1, StrategyTemplateFill, "u1"))
	require.NoError(t, e.Checkpoint(ctx))

	restored := newTestEngine(t, func(o *Options) { o.Stores = stores })
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, e.Stats().Bandit[StrategyTemplateFill].Alpha, restored.Stats().Bandit[StrategyTemplateFill].Alpha)
	assert.Equal(t, 1, restored.Stats().Dialogues)
	assert.Equal(t, 1, restored.Stats().CF.Users)
}

func TestCheckpointWithoutStores(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.Checkpoint(context.Background()))
	assert.NoError(t, e.Restore(context.Background()))
	assert.Error(t, e.RunCheckpoints(context.Background(), time.Second))
}

func TestStrategiesOnSmallCorpus(t *testing.T) {
	set, err := BuildIndexSet(testSources(t))
	require.NoError(t, err)
	list := strategies(set)
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{
		StrategyTFIDFMarkov, StrategyTemplateFill, StrategyNgramBlend, StrategyRetrievalMod,
		StrategyBM25, StrategyNgramLM, StrategyPMIExpand, StrategyHybridBlend,
	}, names)

	gc := &types.GenerationContext{
		Persona: "Elio",
		Profile: set.Corpus.Profile("Elio"),
		Message: "What's your favorite planet?",
		Mood:    types.MoodCurious,
		Topic:   types.TopicLore,
	}
	produced := 0
	for _, s := range list {
		r := rand.New(rand.NewPCG(7, 8))
		res, err := s.Generate(context.Background(), r, gc)
		require.NoError(t, err, s.Name())
		assert.GreaterOrEqual(t, res.Confidence, 0.0, s.Name())
		if res.Text != "" {
			produced++
		}
	}
	assert.GreaterOrEqual(t, produced, 3)

	r := rand.New(rand.NewPCG(1, 2))
	res, err := tfidfMarkov{store: set.Corpus}.Generate(context.Background(), r, gc)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.Contains(t, res.Metadata, "similarity")

	res, err = templateFill{filler: set.Templates}.Generate(context.Background(), r, gc)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
}

func TestStrategiesWithoutData(t *testing.T) {
	set := NewIndexSet(corpus.Samples{}, nil, nil)
	gc := &types.GenerationContext{Persona: "Elio", Message: "hello"}
	for _, s := range strategies(set) {
		if s.Name() == StrategyTemplateFill {
			continue
		}
		res, err := s.Generate(context.Background(), rand.New(rand.NewPCG(3, 4)), gc)
		require.NoError(t, err, s.Name())
		assert.Empty(t, res.Text, s.Name())
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Config{
		PersonasFile:      "p.yaml",
		CorpusFiles:       []string{"a.jsonl", "b"},
		TemplatesFile:     "t.json",
		RandomSeed:        9,
		StrategyTimeout:   time.Second,
		SelectionMethod:   ensemble.MethodThompson,
		CFWeight:          0.4,
		DialogueCacheSize: 3,
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, []string{"p.yaml", "a.jsonl", "b", "t.json"}, opts.Sources.Paths())
	assert.Equal(t, uint64(9), opts.Seed)
	assert.Equal(t, ensemble.MethodThompson, opts.SelectionMethod)
	assert.Equal(t, 3, opts.DialogueCacheSize)

	e := newTestEngine(t)
	assert.Equal(t, ensemble.MethodWeightedRandom, e.opts.SelectionMethod)
}
