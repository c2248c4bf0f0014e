// Package pmi scores word associations with pointwise mutual information.
package pmi

import (
	"math"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/utils"
)

const (
	// DefaultWindow is the co-occurrence window on each side of a word.
	DefaultWindow = 5
	// DefaultMinCount is the minimum word frequency for a non-zero score.
	DefaultMinCount = 2
)

// Association is a related word and its score.
type Association struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// WeightedTerm is a query term with its expansion weight.
type WeightedTerm struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Stats summarizes a model.
type Stats struct {
	TotalWords  int `json:"total_words"`
	UniqueWords int `json:"unique_words"`
	TotalPairs  int `json:"total_pairs"`
	UniquePairs int `json:"unique_pairs"`
}

// Model counts words and windowed co-occurrences. Train it once, then it is
// read-only and safe for concurrent use.
type Model struct {
	window    int
	minCount  int
	smoothing float64

	words      map[string]int
	pairs      map[string]map[string]int
	totalWords int
	totalPairs int
	uniquePair int
}

// Option configures a Model.
type Option func(*Model)

// WithWindow sets the co-occurrence window.
func WithWindow(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithMinCount sets the frequency threshold.
func WithMinCount(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.minCount = n
		}
	}
}

// WithSmoothing sets an additive smoothing factor.
func WithSmoothing(s float64) Option {
	return func(m *Model) {
		if s >= 0 {
			m.smoothing = s
		}
	}
}

// New returns an empty model.
func New(opts ...Option) *Model {
	m := &Model{
		window:   DefaultWindow,
		minCount: DefaultMinCount,
		words:    make(map[string]int),
		pairs:    make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Train adds every document.
func (m *Model) Train(docs []string) *Model {
	for _, d := range docs {
		m.Add(d)
	}
	return m
}

// Add counts one document. Each ordered (i,j) pair inside the window counts,
// so a symmetric pair is seen twice.
func (m *Model) Add(text string) {
	tokens := utils.Words(text)
	if len(tokens) == 0 {
		return
	}
	for _, t := range tokens {
		m.words[t]++
	}
	m.totalWords += len(tokens)

	for i, w1 := range tokens {
		start := max(0, i-m.window)
		end := min(len(tokens), i+m.window+1)
		for j := start; j < end; j++ {
			if i == j {
				continue
			}
			m.addPair(w1, tokens[j])
			m.totalPairs++
		}
	}
}

func (m *Model) addPair(a, b string) {
	if m.pairCount(a, b) == 0 {
		m.uniquePair++
	}
	m.bump(a, b)
	if a != b {
		m.bump(b, a)
	}
}

func (m *Model) bump(a, b string) {
	row, ok := m.pairs[a]
	if !ok {
		row = make(map[string]int)
		m.pairs[a] = row
	}
	row[b]++
}

func (m *Model) pairCount(a, b string) int {
	return m.pairs[a][b]
}

// Contains reports whether word is in the vocabulary.
func (m *Model) Contains(word string) bool {
	_, ok := m.words[word]
	return ok
}

// VocabSize is the number of distinct words.
func (m *Model) VocabSize() int {
	return len(m.words)
}

func (m *Model) pairProb(count int) float64 {
	v := float64(len(m.words))
	return (float64(count) + m.smoothing) / (float64(m.totalPairs) + m.smoothing*v*v)
}

// PMI is log2(P(x,y) / (P(x)P(y))). Rare words score 0 and pairs that never
// co-occur score -Inf.
func (m *Model) PMI(w1, w2 string) float64 {
	w1, w2 = strings.ToLower(w1), strings.ToLower(w2)
	c1, c2 := m.words[w1], m.words[w2]
	if c1 < m.minCount || c2 < m.minCount {
		return 0
	}
	pc := m.pairCount(w1, w2)
	if pc == 0 {
		return math.Inf(-1)
	}
	v := float64(len(m.words))
	denom := float64(m.totalWords) + m.smoothing*v
	px := (float64(c1) + m.smoothing) / denom
	py := (float64(c2) + m.smoothing) / denom
	pxy := m.pairProb(pc)
	if px == 0 || py == 0 || pxy == 0 {
		return 0
	}
	return math.Log2(pxy / (px * py))
}

// PPMI clips PMI at zero.
func (m *Model) PPMI(w1, w2 string) float64 {
	return max(0, m.PMI(w1, w2))
}

// NPMI is PMI / -log2 P(x,y), in [-1,1]. Pairs never seen score -1.
func (m *Model) NPMI(w1, w2 string) float64 {
	w1, w2 = strings.ToLower(w1), strings.ToLower(w2)
	pc := m.pairCount(w1, w2)
	if pc == 0 {
		return -1
	}
	pxy := m.pairProb(pc)
	if pxy == 0 || pxy == 1 {
		return 0
	}
	pmi := m.PMI(w1, w2)
	if math.IsInf(pmi, 0) {
		return -1
	}
	return pmi / -math.Log2(pxy)
}

// Associations ranks words with positive PPMI against word.
func (m *Model) Associations(word string, k int) []Association {
	word = strings.ToLower(word)
	if !m.Contains(word) {
		return nil
	}
	var out []Association
	for other := range m.pairs[word] {
		if other == word {
			continue
		}
		if s := m.PPMI(word, other); s > 0 {
			out = append(out, Association{Word: other, Score: s})
		}
	}
	sortAssociations(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func sortAssociations(a []Association) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].Score == a[j].Score {
			return a[i].Word < a[j].Word
		}
		return a[i].Score > a[j].Score
	})
}

// ExpandQuery returns the query words at weight 1 plus up to perWord
// associated terms each, weighted min(1, ppmi/10)·decay.
func (m *Model) ExpandQuery(query string, perWord int, decay float64) []WeightedTerm {
	tokens := utils.Words(query)
	if len(tokens) == 0 {
		return nil
	}
	weights := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		weights[t] = 1
	}
	for _, t := range tokens {
		for _, a := range m.Associations(t, perWord) {
			w := min(1, a.Score/10) * decay
			if cur, ok := weights[a.Word]; !ok || w > cur {
				weights[a.Word] = w
			}
		}
	}

	out := make([]WeightedTerm, 0, len(weights))
	for term, w := range weights {
		out = append(out, WeightedTerm{Term: term, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight == out[j].Weight {
			return out[i].Term < out[j].Term
		}
		return out[i].Weight > out[j].Weight
	})
	return out
}

// TopicCoherence is the mean pairwise NPMI of words.
func (m *Model) TopicCoherence(words []string) float64 {
	if len(words) < 2 {
		return 0
	}
	sum, n := 0.0, 0
	for i := range words {
		for j := i + 1; j < len(words); j++ {
			sum += m.NPMI(words[i], words[j])
			n++
		}
	}
	return sum / float64(n)
}

// TopWords returns the k most frequent words.
func (m *Model) TopWords(k int) []string {
	words := make([]string, 0, len(m.words))
	for w := range m.words {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		ci, cj := m.words[words[i]], m.words[words[j]]
		if ci == cj {
			return words[i] < words[j]
		}
		return ci > cj
	})
	if k > 0 && len(words) > k {
		words = words[:k]
	}
	return words
}

// Stats reports corpus counts.
func (m *Model) Stats() Stats {
	return Stats{
		TotalWords:  m.totalWords,
		UniqueWords: len(m.words),
		TotalPairs:  m.totalPairs,
		UniquePairs: m.uniquePair,
	}
}
