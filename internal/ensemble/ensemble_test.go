package ensemble

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/bandit"
	"github.com/easeaico/persona-engine/internal/types"
)

type fakeStrategy struct {
	name  string
	text  string
	conf  float64
	err   error
	panic bool
	delay time.Duration
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (Result, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Text: f.text, Confidence: f.conf, Metadata: map[string]any{"from": f.name}}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (f *fakeRecorder) ObserveStrategy(name, outcome string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[name] = outcome
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestGenerateCandidatesIsolatesFailures(t *testing.T) {
	strategies := []Strategy{
		fakeStrategy{name: "first", text: "hello there friend", conf: 0.8},
		fakeStrategy{name: "broken", err: errors.New("no index")},
		fakeStrategy{name: "panics", panic: true},
		fakeStrategy{name: "slow", text: "too late", delay: 300 * time.Millisecond},
		fakeStrategy{name: "empty"},
		fakeStrategy{name: "last", text: "see you soon", conf: DefaultConfidence},
	}
	b := bandit.New(nil)
	rec := &fakeRecorder{outcomes: map[string]string{}}
	e := New(strategies, b, NewRing(10), WithTimeout(30*time.Millisecond), WithRecorder(rec))

	require.Equal(t, []string{"first", "broken", "panics", "slow", "empty", "last"}, b.Arms())

	cands := e.GenerateCandidates(context.Background(), newRand(1), &types.GenerationContext{Persona: "Elio"})
	require.Len(t, cands, 2)
	assert.Equal(t, "first", cands[0].Source)
	assert.Equal(t, "last", cands[1].Source)
	assert.InDelta(t, 0.8, cands[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, cands[1].Confidence, 1e-9)
	assert.InDelta(t, 0.5, cands[0].Weight, 1e-9)
	assert.Equal(t, "first", cands[0].Metadata["from"])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, OutcomeOK, rec.outcomes["first"])
	assert.Equal(t, OutcomeError, rec.outcomes["broken"])
	assert.Equal(t, OutcomePanic, rec.outcomes["panics"])
	assert.Equal(t, OutcomeTimeout, rec.outcomes["slow"])
	assert.Equal(t, OutcomeEmpty, rec.outcomes["empty"])
}

func TestGenerateCandidatesKeepsZeroConfidence(t *testing.T) {
	strategies := []Strategy{
		fakeStrategy{name: "unsure", text: "maybe so", conf: 0},
		fakeStrategy{name: "unknown", text: "who knows", conf: math.NaN()},
		fakeStrategy{name: "eager", text: "definitely", conf: 1.7},
	}
	e := New(strategies, bandit.New(nil), NewRing(10))
	cands := e.GenerateCandidates(context.Background(), newRand(2), &types.GenerationContext{Persona: "Elio"})
	require.Len(t, cands, 3)
	assert.Equal(t, 0.0, cands[0].Confidence)
	assert.InDelta(t, DefaultConfidence, cands[1].Confidence, 1e-9)
	assert.InDelta(t, 1.0, cands[2].Confidence, 1e-9)
}

func TestGenerateCandidatesUsesBanditWeight(t *testing.T) {
	b := bandit.New(nil)
	e := New([]Strategy{fakeStrategy{name: "a", text: "alpha beta"}}, b, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Update("a", 1))
	}
	cands := e.GenerateCandidates(context.Background(), newRand(2), &types.GenerationContext{})
	require.Len(t, cands, 1)
	assert.InDelta(t, b.Weight("a"), cands[0].Weight, 1e-9)
	assert.Greater(t, cands[0].Weight, 0.9)
}

func TestScoreAppliesDiversity(t *testing.T) {
	e := New(nil, nil, NewRing(10))
	cands := []types.Candidate{
		types.NewCandidate("the stars are bright", "a", 1),
		types.NewCandidate("completely new words", "b", 1),
	}
	e.Score(cands, []float64{0.5}, nil)
	assert.InDelta(t, 0.5, cands[0].CFScore, 1e-9)
	assert.InDelta(t, 1.2, cands[0].ContextScore, 1e-9)

	e.TrackOutput("the stars are bright")
	again := []types.Candidate{
		types.NewCandidate("the stars are bright", "a", 1),
		types.NewCandidate("completely new words", "b", 1),
	}
	e.Score(again, nil, []float64{2, 1})
	assert.InDelta(t, 2.0, again[0].ContextScore, 1e-9)
	assert.InDelta(t, 1.2, again[1].ContextScore, 1e-9)
}

func TestSelectBest(t *testing.T) {
	e := New(nil, nil, nil)
	cands := []types.Candidate{
		types.NewCandidate("low", "a", 0.2),
		types.NewCandidate("high", "b", 0.9),
	}
	c, ok := e.Select(newRand(3), cands, MethodBest)
	require.True(t, ok)
	assert.Equal(t, "b", c.Source)

	_, ok = e.Select(newRand(3), nil, MethodBest)
	assert.False(t, ok)

	c, _ = e.Select(newRand(3), cands, "unknown")
	assert.Equal(t, "a", c.Source)
}

func TestSelectWeightedRandomDeterministic(t *testing.T) {
	e := New(nil, nil, nil)
	cands := []types.Candidate{
		types.NewCandidate("one", "a", 0.3),
		types.NewCandidate("two", "b", 0.6),
		types.NewCandidate("three", "c", 0),
	}
	r1, r2 := newRand(4), newRand(4)
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		x, _ := e.Select(r1, cands, MethodWeightedRandom)
		y, _ := e.Select(r2, cands, MethodWeightedRandom)
		require.Equal(t, x.Source, y.Source)
		counts[x.Source]++
	}
	assert.Greater(t, counts["b"], counts["a"])
	assert.Greater(t, counts["c"], 0)
}

type fixedArms struct{ arm string }

func (f fixedArms) Weight(string) float64        { return 0.5 }
func (f fixedArms) SelectArm(*rand.Rand) string  { return f.arm }
func (f fixedArms) Update(string, float64) error { return nil }
func (f fixedArms) AddArm(string)                {}

func TestSelectThompson(t *testing.T) {
	cands := []types.Candidate{
		types.NewCandidate("one", "a", 0.9),
		types.NewCandidate("two", "b", 0.1),
	}
	e := New(nil, fixedArms{arm: "b"}, nil)
	c, ok := e.Select(newRand(5), cands, MethodThompson)
	require.True(t, ok)
	assert.Equal(t, "b", c.Source)

	e = New(nil, fixedArms{arm: "missing"}, nil)
	c, ok = e.Select(newRand(5), cands, MethodThompson)
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b"}, c.Source)
}

func TestRingBoundedAndDiversity(t *testing.T) {
	r := NewRing(3)
	assert.InDelta(t, 1.0, r.Diversity("anything"), 1e-9)
	for _, s := range []string{"a b", "c d", "e f", "g h"} {
		r.Push(s)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"c d", "e f", "g h"}, r.Items())
	assert.InDelta(t, 1.0, r.Diversity("a b"), 1e-9)
	assert.InDelta(t, 0.0, r.Diversity("G H"), 1e-9)
	assert.InDelta(t, 1-1.0/3, r.Diversity("c x"), 1e-9)
}

func TestRecordFeedbackAndStats(t *testing.T) {
	b := bandit.New(nil)
	e := New([]Strategy{fakeStrategy{name: "a"}}, b, nil)
	require.NoError(t, e.RecordFeedback("a", 1))
	require.ErrorIs(t, e.RecordFeedback("nope", 1), bandit.ErrUnknownArm)

	e.TrackOutput("hello")
	st := e.Stats()
	assert.Equal(t, []string{"a"}, st.Strategies)
	assert.InDelta(t, 2.0/3, st.Weights["a"], 1e-9)
	assert.Equal(t, 1, st.RecentOutput)

	assert.Error(t, New(nil, nil, nil).RecordFeedback("a", 1))
}
