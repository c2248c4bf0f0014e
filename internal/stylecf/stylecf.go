// Package stylecf learns per-user reply style preferences from engagement
// feedback and re-ranks candidates with them.
package stylecf

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/easeaico/persona-engine/internal/utils"
)

// Style dimensions.
const (
	DimLength    = "length"
	DimTone      = "tone"
	DimStructure = "structure"
	DimTopic     = "topic"
)

// Dimensions lists the style dimensions in reporting order.
var Dimensions = []string{DimLength, DimTone, DimStructure, DimTopic}

// Styles lists the values of each dimension.
var Styles = map[string][]string{
	DimLength:    {"short", "medium", "long"},
	DimTone:      {"casual", "formal", "playful", "warm", "enthusiastic"},
	DimStructure: {"question", "statement", "exclamation", "mixed"},
	DimTopic:     {"lore", "humor", "advice", "empathy", "action", "observation"},
}

const (
	decay          = 0.95
	priorPositive  = 1.0
	priorTotal     = 2.0
	globalRate     = 0.1
	lowCredit      = 0.5
	simThreshold   = 0.1
	neighborDamp   = 0.5
	defaultSimilar = 5
	neutralPref    = 0.5
)

// Counts is a decayed (positive, total) pair.
type Counts struct {
	Positive float64 `json:"positive"`
	Total    float64 `json:"total"`
}

func (c Counts) score() float64 {
	return c.Positive / max(1, c.Total)
}

type table map[string]map[string]Counts

func (t table) get(dim, style string) (Counts, bool) {
	c, ok := t[dim][style]
	return c, ok
}

func (t table) set(dim, style string, c Counts) {
	if t[dim] == nil {
		t[dim] = map[string]Counts{}
	}
	t[dim][style] = c
}

func (t table) clone() table {
	out := make(table, len(t))
	for dim, styles := range t {
		for style, c := range styles {
			out.set(dim, style, c)
		}
	}
	return out
}

// Neighbor is a similar user.
type Neighbor struct {
	User       string  `json:"user"`
	Similarity float64 `json:"similarity"`
}

// Store holds per-user and global style counts. One mutex guards the counts
// and the user similarity cache, which is rebuilt lazily after any write.
type Store struct {
	mu     sync.Mutex
	users  map[string]table
	global table
	sims   map[[2]string]float64
	dirty  bool
}

// New returns a store with every global style at the (1, 2) prior.
func New() *Store {
	s := &Store{users: map[string]table{}, global: table{}, dirty: true}
	for _, dim := range Dimensions {
		for _, style := range Styles[dim] {
			s.global.set(dim, style, Counts{Positive: priorPositive, Total: priorTotal})
		}
	}
	return s
}

func validStyle(dim, style string) bool {
	for _, s := range Styles[dim] {
		if s == style {
			return true
		}
	}
	return false
}

// Update decays and credits every known (dimension, style) pair in styles.
// Engagement of at least 0.5 is credited in full; lower engagement earns
// half credit. Global counts move at a tenth of the rate.
func (s *Store) Update(user string, styles map[string]string, engagement float64) {
	engagement = max(0, min(1, engagement))
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := s.users[user]
	if prefs == nil {
		prefs = table{}
		s.users[user] = prefs
	}
	for dim, style := range styles {
		if !validStyle(dim, style) {
			continue
		}
		c, ok := prefs.get(dim, style)
		if !ok {
			c = Counts{Positive: priorPositive, Total: priorTotal}
		}
		c.Positive *= decay
		c.Total = c.Total*decay + 1
		if engagement >= 0.5 {
			c.Positive += engagement
		} else {
			c.Positive += engagement * lowCredit
		}
		prefs.set(dim, style, c)

		g, ok := s.global.get(dim, style)
		if !ok {
			g = Counts{Positive: priorPositive, Total: priorTotal}
		}
		g.Total += globalRate
		if engagement >= 0.5 {
			g.Positive += globalRate * engagement
		}
		s.global.set(dim, style, g)
	}
	s.dirty = true
}

// Score is the user's own preference for a style, falling back to the global
// counts when the user has none for it.
func (s *Store) Score(user, dim, style string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(user, dim, style)
}

func (s *Store) scoreLocked(user, dim, style string) float64 {
	if c, ok := s.users[user].get(dim, style); ok {
		return c.score()
	}
	if c, ok := s.global.get(dim, style); ok {
		return c.score()
	}
	return Counts{Positive: priorPositive, Total: priorTotal}.score()
}

// Preferences returns dimension → style → score. With blend set, each score
// is averaged with up to five similar users, each weighted similarity × 0.5
// against the user's own weight of 1.
func (s *Store) Preferences(user string, blend bool) map[string]map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var neighbors []Neighbor
	if blend {
		neighbors = s.similarLocked(user, defaultSimilar)
	}
	out := make(map[string]map[string]float64, len(Dimensions))
	for _, dim := range Dimensions {
		out[dim] = make(map[string]float64, len(Styles[dim]))
		for _, style := range Styles[dim] {
			sum, weight := s.scoreLocked(user, dim, style), 1.0
			for _, n := range neighbors {
				w := n.Similarity * neighborDamp
				sum += s.scoreLocked(n.User, dim, style) * w
				weight += w
			}
			out[dim][style] = sum / weight
		}
	}
	return out
}

// SimilarUsers returns up to n users whose cosine similarity to user exceeds
// 0.1, most similar first.
func (s *Store) SimilarUsers(user string, n int) []Neighbor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.similarLocked(user, n)
}

func (s *Store) similarLocked(user string, n int) []Neighbor {
	if s.dirty {
		s.rebuildLocked()
	}
	var out []Neighbor
	for other := range s.users {
		if other == user {
			continue
		}
		if sim := s.sims[pairKey(user, other)]; sim > simThreshold {
			out = append(out, Neighbor{User: other, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].User < out[j].User
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *Store) rebuildLocked() {
	users := make([]string, 0, len(s.users))
	for u := range s.users {
		users = append(users, u)
	}
	sort.Strings(users)

	vectors := make(map[string]map[string]float64, len(users))
	for _, u := range users {
		vectors[u] = s.vectorLocked(u)
	}
	s.sims = make(map[[2]string]float64)
	for i, a := range users {
		for _, b := range users[i+1:] {
			s.sims[pairKey(a, b)] = cosine(vectors[a], vectors[b])
		}
	}
	s.dirty = false
}

func (s *Store) vectorLocked(user string) map[string]float64 {
	vec := map[string]float64{}
	for dim, styles := range s.users[user] {
		for style, c := range styles {
			vec[dim+":"+style] = c.score()
		}
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dot, na, nb := 0.0, 0.0, 0.0
	for k, v := range a {
		dot += v * b[k]
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SampleStyle draws a style of dim from a softmax over the user's blended
// preferences. An unknown dimension samples a length style uniformly.
func (s *Store) SampleStyle(r *rand.Rand, user, dim string, temperature float64) string {
	styles, ok := Styles[dim]
	if !ok {
		return utils.Choice(r, Styles[DimLength])
	}
	if temperature <= 0 {
		temperature = 1
	}
	prefs := s.Preferences(user, true)[dim]
	peak := math.Inf(-1)
	for _, style := range styles {
		peak = max(peak, prefs[style])
	}
	weights := make([]float64, len(styles))
	for i, style := range styles {
		weights[i] = math.Exp((prefs[style] - peak) / temperature)
	}
	return styles[utils.WeightedIndex(r, weights, 0)]
}

// Recommendations returns the top k styles per dimension.
func (s *Store) Recommendations(user string, k int) map[string][]string {
	prefs := s.Preferences(user, true)
	out := make(map[string][]string, len(Dimensions))
	for _, dim := range Dimensions {
		ranked := append([]string(nil), Styles[dim]...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return prefs[dim][ranked[i]] > prefs[dim][ranked[j]]
		})
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		out[dim] = ranked
	}
	return out
}

// Classify detects the realized style of a reply.
func Classify(text string) map[string]string {
	styles := make(map[string]string, len(Dimensions))

	switch words := len(strings.Fields(text)); {
	case words < 10:
		styles[DimLength] = "short"
	case words < 30:
		styles[DimLength] = "medium"
	default:
		styles[DimLength] = "long"
	}

	switch {
	case strings.HasSuffix(text, "?"):
		styles[DimStructure] = "question"
	case strings.HasSuffix(text, "!"):
		styles[DimStructure] = "exclamation"
	case strings.ContainsAny(text, "?!"):
		styles[DimStructure] = "mixed"
	default:
		styles[DimStructure] = "statement"
	}

	lower := strings.ToLower(text)
	switch {
	case utils.ContainsAny(lower, "haha", "lol", "hehe", "funny", "joke"):
		styles[DimTone] = "playful"
	case utils.ContainsAny(lower, "love", "care", "heart", "sweet", "dear"):
		styles[DimTone] = "warm"
	case utils.ContainsAny(lower, "wow", "amazing", "awesome", "excited"):
		styles[DimTone] = "enthusiastic"
	case utils.ContainsAny(lower, "please", "kindly", "regarding", "therefore"):
		styles[DimTone] = "formal"
	default:
		styles[DimTone] = "casual"
	}

	switch {
	case utils.ContainsAny(lower, "story", "legend", "ancient", "history", "realm"):
		styles[DimTopic] = "lore"
	case utils.ContainsAny(lower, "haha", "joke", "funny", "laugh"):
		styles[DimTopic] = "humor"
	case utils.ContainsAny(lower, "should", "try", "suggest", "recommend", "advice"):
		styles[DimTopic] = "advice"
	case utils.ContainsAny(lower, "feel", "understand", "sorry", "hope", "wish"):
		styles[DimTopic] = "empathy"
	case utils.ContainsAny(lower, "do", "go", "make", "create", "build"):
		styles[DimTopic] = "action"
	default:
		styles[DimTopic] = "observation"
	}
	return styles
}

// Personalized is one re-ranked reply.
type Personalized struct {
	Styles  map[string]string `json:"style_classification"`
	CFScore float64           `json:"cf_score"`
	Score   float64           `json:"score"`
}

// Personalize scores each text by the user's mean preference over its
// realized styles and blends it into base: (1-weight)·base + weight·cf.
// Missing base scores count as 0.5. Results keep input order.
func (s *Store) Personalize(user string, texts []string, base []float64, weight float64) []Personalized {
	prefs := s.Preferences(user, true)
	out := make([]Personalized, len(texts))
	for i, text := range texts {
		styles := Classify(text)
		cf := 0.0
		for _, dim := range Dimensions {
			v, ok := prefs[dim][styles[dim]]
			if !ok {
				v = neutralPref
			}
			cf += v
		}
		cf /= float64(len(Dimensions))
		orig := neutralPref
		if i < len(base) {
			orig = base[i]
		}
		out[i] = Personalized{Styles: styles, CFScore: cf, Score: (1-weight)*orig + weight*cf}
	}
	return out
}

// Stats is a reporting view of the store.
type Stats struct {
	Users      int      `json:"num_users"`
	Dimensions []string `json:"dimensions"`
	CacheSize  int      `json:"cache_size"`
	CacheDirty bool     `json:"cache_dirty"`
}

// Stats reports user count and cache state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Users:      len(s.users),
		Dimensions: append([]string(nil), Dimensions...),
		CacheSize:  len(s.sims),
		CacheDirty: s.dirty,
	}
}

// Snapshot is the persisted form of a store.
type Snapshot struct {
	Users  map[string]map[string]map[string]Counts `json:"user_prefs"`
	Global map[string]map[string]Counts            `json:"global_prefs"`
}

// Snapshot copies all counts.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Users: make(map[string]map[string]map[string]Counts, len(s.users)), Global: s.global.clone()}
	for u, t := range s.users {
		snap.Users[u] = t.clone()
	}
	return snap
}

// Restore merges snapshot counts over the current ones.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for u, t := range snap.Users {
		prefs := s.users[u]
		if prefs == nil {
			prefs = table{}
			s.users[u] = prefs
		}
		for dim, styles := range t {
			for style, c := range styles {
				prefs.set(dim, style, c)
			}
		}
	}
	for dim, styles := range snap.Global {
		for style, c := range styles {
			s.global.set(dim, style, c)
		}
	}
	s.dirty = true
}

// Repo persists store snapshots.
type Repo interface {
	SaveStylePrefs(ctx context.Context, snap Snapshot) error
	LoadStylePrefs(ctx context.Context) (Snapshot, error)
}

// Save writes the store to repo.
func (s *Store) Save(ctx context.Context, repo Repo) error {
	if repo == nil {
		return fmt.Errorf("style preference repo not configured")
	}
	if err := repo.SaveStylePrefs(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to save style preferences: %w", err)
	}
	return nil
}

// Load restores the store from repo.
func (s *Store) Load(ctx context.Context, repo Repo) error {
	if repo == nil {
		return fmt.Errorf("style preference repo not configured")
	}
	snap, err := repo.LoadStylePrefs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load style preferences: %w", err)
	}
	s.Restore(snap)
	return nil
}
