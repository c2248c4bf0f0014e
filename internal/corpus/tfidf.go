package corpus

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/utils"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// vector is a sparse, L2-normalized term vector.
type vector map[int]float64

func (v vector) dot(o vector) float64 {
	if len(o) < len(v) {
		v, o = o, v
	}
	sum := 0.0
	for k, a := range v {
		sum += a * o[k]
	}
	return sum
}

// TFIDF is a fitted 1-3 gram TF-IDF model with smoothed IDF and L2 rows.
type TFIDF struct {
	vocab map[string]int
	idf   []float64
	rows  []vector
}

const (
	maxNgram = 3
	maxDF    = 0.95
)

func analyze(text string) []string {
	var words []string
	for _, w := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if !utils.IsStopWord(w) {
			words = append(words, w)
		}
	}
	var grams []string
	for n := 1; n <= maxNgram; n++ {
		for i := 0; i+n <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+n], " "))
		}
	}
	return grams
}

// FitTFIDF builds the model over docs. Terms present in more than 95% of
// documents are dropped unless that would empty the vocabulary.
func FitTFIDF(docs []string) *TFIDF {
	analyzed := make([][]string, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		analyzed[i] = analyze(d)
		seen := make(map[string]struct{})
		for _, g := range analyzed[i] {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				df[g]++
			}
		}
	}

	limit := maxDF * float64(len(docs))
	terms := make([]string, 0, len(df))
	for term, n := range df {
		if float64(n) <= limit {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		for term := range df {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	m := &TFIDF{vocab: make(map[string]int, len(terms)), idf: make([]float64, len(terms))}
	n := float64(len(docs))
	for i, term := range terms {
		m.vocab[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	m.rows = make([]vector, len(docs))
	for i, grams := range analyzed {
		m.rows[i] = m.vectorize(grams)
	}
	return m
}

func (m *TFIDF) vectorize(grams []string) vector {
	v := make(vector)
	for _, g := range grams {
		if idx, ok := m.vocab[g]; ok {
			v[idx]++
		}
	}
	norm := 0.0
	for idx, tf := range v {
		w := tf * m.idf[idx]
		v[idx] = w
		norm += w * w
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for idx := range v {
		v[idx] /= norm
	}
	return v
}

// Similarities is the cosine similarity of query against every document.
func (m *TFIDF) Similarities(query string) []float64 {
	q := m.vectorize(analyze(query))
	out := make([]float64, len(m.rows))
	for i, row := range m.rows {
		out[i] = q.dot(row)
	}
	return out
}

// VocabSize is the number of kept terms.
func (m *TFIDF) VocabSize() int {
	return len(m.vocab)
}

// TopIndices returns the k highest scoring indices, ties by lower index.
func TopIndices(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
