package dialogue

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/easeaico/persona-engine/internal/types"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestLikelihoodsNormalized(t *testing.T) {
	for _, msg := range []string{"", "hello there", "haha that is so funny!", "i feel sad about the universe"} {
		if got := sum(MoodLikelihoods(msg)); math.Abs(got-1) > 1e-9 {
			t.Fatalf("mood likelihoods for %q sum to %v", msg, got)
		}
		if got := sum(TopicLikelihoods(msg)); math.Abs(got-1) > 1e-9 {
			t.Fatalf("topic likelihoods for %q sum to %v", msg, got)
		}
	}
}

func TestTopicLikelihoodsPreferKeywords(t *testing.T) {
	greeting := TopicLikelihoods("hello")
	if greeting[index(types.Topics, types.TopicGreeting)] <= greeting[index(types.Topics, types.TopicLore)] {
		t.Fatalf("expected greeting to dominate: %v", greeting)
	}

	none := TopicLikelihoods("the weather")
	general := none[index(types.Topics, types.TopicGeneral)]
	for i, p := range none {
		if i != index(types.Topics, types.TopicGeneral) && p >= general {
			t.Fatalf("expected general to dominate an unmatched message: %v", none)
		}
	}
}

func TestMoodTransitionsRowsSumToOne(t *testing.T) {
	for _, persona := range []string{"Elio", "Glordon", "Olga", "Questa"} {
		m := moodTransitions(persona)
		for i, row := range m {
			if got := sum(row); math.Abs(got-1) > 1e-9 {
				t.Fatalf("%s row %d sums to %v", persona, i, got)
			}
		}
	}

	base := moodTransitions("nobody")
	elio := moodTransitions("Elio Solis")
	n, c := index(types.Moods, types.MoodNeutral), index(types.Moods, types.MoodCurious)
	if elio[n][c] <= base[n][c] {
		t.Fatalf("expected elio to lean curious: %v vs %v", elio[n][c], base[n][c])
	}
}

func TestTrackerUpdateDeterministic(t *testing.T) {
	messages := []string{"hi!", "what is the communiverse?", "haha funny", "i feel worried", "thanks friend"}
	a, b := NewTracker("Elio"), NewTracker("Elio")
	ra, rb := newRand(7), newRand(7)
	for _, msg := range messages {
		sa := a.Update(ra, msg, nil)
		sb := b.Update(rb, msg, nil)
		if sa != sb {
			t.Fatalf("expected identical states, got %v and %v", sa, sb)
		}
		if !types.IsMood(sa.Mood) || !types.IsTopic(sa.Topic) {
			t.Fatalf("unexpected state %v", sa)
		}
	}
}

func TestTrackerHistoryBounded(t *testing.T) {
	tr := NewTracker("Olga")
	r := newRand(1)
	for i := 0; i < 15; i++ {
		tr.Update(r, fmt.Sprintf("message %d", i), nil)
	}
	h := tr.History()
	if len(h) != maxHistory {
		t.Fatalf("expected %d turns, got %d", maxHistory, len(h))
	}
	if h[len(h)-1].Message != "message 14" {
		t.Fatalf("unexpected last turn %q", h[len(h)-1].Message)
	}

	snap := tr.Snapshot()
	if len(snap.History) != snapshotHistory {
		t.Fatalf("expected snapshot to keep %d turns, got %d", snapshotHistory, len(snap.History))
	}
	restored := FromSnapshot(snap)
	if restored.State() != tr.State() || restored.Persona() != "Olga" {
		t.Fatalf("restore mismatch: %v vs %v", restored.State(), tr.State())
	}

	tr.Reset()
	if tr.State() != (State{Mood: types.MoodNeutral, Topic: types.TopicGreeting}) || len(tr.History()) != 0 {
		t.Fatalf("reset did not clear tracker: %v", tr.State())
	}
}

func TestTrackerReplacesHistory(t *testing.T) {
	tr := NewTracker("Elio")
	given := []Turn{{Message: "a"}, {Message: "b"}}
	tr.Update(newRand(3), "c", given)
	h := tr.History()
	if len(h) != 3 || h[0].Message != "a" || h[2].Message != "c" {
		t.Fatalf("unexpected history %v", h)
	}
}

func TestFromSnapshotRejectsUnknownStates(t *testing.T) {
	tr := FromSnapshot(Snapshot{Mood: "grumpy", Topic: "sports"})
	if tr.State() != (State{Mood: types.MoodNeutral, Topic: types.TopicGreeting}) {
		t.Fatalf("unexpected state %v", tr.State())
	}
	if tr.Persona() != types.DefaultPersona {
		t.Fatalf("expected default persona, got %q", tr.Persona())
	}
}

func TestMoodFiller(t *testing.T) {
	r := newRand(5)
	for i := 0; i < 20; i++ {
		f := MoodFiller(r, types.MoodPlayful)
		if f != "*chuckles*" && f != "*grins*" && f != "*winks*" {
			t.Fatalf("unexpected playful filler %q", f)
		}
	}
	if MoodFiller(r, "unknown") != "" {
		t.Fatalf("expected empty filler for unknown mood")
	}
}

func TestManagerKeysCaseInsensitive(t *testing.T) {
	m, err := NewManager(DefaultCapacity)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	st := m.Update(newRand(2), "Elio", "hello", nil)
	if m.State("ELIO") != st {
		t.Fatalf("expected shared tracker across case")
	}
	if m.Len() != 1 {
		t.Fatalf("expected one tracker, got %d", m.Len())
	}

	m.Reset("elio")
	if m.State("Elio") != (State{Mood: types.MoodNeutral, Topic: types.TopicGreeting}) {
		t.Fatalf("reset not applied")
	}
	m.Reset("nobody")
	if m.Len() != 1 {
		t.Fatalf("reset must not create trackers")
	}
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	m, err := NewManager(2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	r := newRand(4)
	m.Update(r, "a", "hi", nil)
	m.Update(r, "b", "hi", nil)
	m.State("a")
	m.Update(r, "c", "hi", nil)
	if m.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", m.Len())
	}
	for _, s := range m.Snapshots() {
		if s.Persona == "b" {
			t.Fatalf("expected b to be evicted")
		}
	}
}

type fakeStateRepo struct {
	saved []Snapshot
}

func (f *fakeStateRepo) SaveDialogueStates(ctx context.Context, states []Snapshot) error {
	f.saved = states
	return nil
}

func (f *fakeStateRepo) LoadDialogueStates(ctx context.Context) ([]Snapshot, error) {
	return f.saved, nil
}

func TestManagerSaveLoad(t *testing.T) {
	m, _ := NewManager(10)
	r := newRand(9)
	m.Update(r, "Elio", "what is space?", nil)
	m.Update(r, "Olga", "i need advice", nil)
	want := map[string]State{"elio": m.State("Elio"), "olga": m.State("Olga")}

	repo := &fakeStateRepo{}
	if err := m.Save(context.Background(), repo); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(repo.saved) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(repo.saved))
	}

	fresh, _ := NewManager(10)
	if err := fresh.Load(context.Background(), repo); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	for key, st := range want {
		if got := fresh.State(key); got != st {
			t.Fatalf("%s: expected %v, got %v", key, st, got)
		}
	}

	if err := fresh.Save(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil repo")
	}
}

func TestManagerConcurrentUpdates(t *testing.T) {
	m, _ := NewManager(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := newRand(seed)
			for j := 0; j < 50; j++ {
				m.Update(r, "Glordon", "haha hello", nil)
			}
		}(uint64(i))
	}
	wg.Wait()
	if got := len(m.History("glordon")); got != maxHistory {
		t.Fatalf("expected %d turns, got %d", maxHistory, got)
	}
}
