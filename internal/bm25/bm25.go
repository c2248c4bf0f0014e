// Package bm25 implements Okapi BM25 ranking with pseudo-relevance feedback.
package bm25

import (
	"math"
	"sort"

	"github.com/easeaico/persona-engine/internal/utils"
)

const (
	// DefaultK1 controls term frequency saturation.
	DefaultK1 = 1.5
	// DefaultB controls document length normalization.
	DefaultB = 0.75
	// DefaultEpsilon floors the IDF so common terms never score negative.
	DefaultEpsilon = 0.25

	feedbackAlpha = 1.0
	feedbackBeta  = 0.5
)

// Document is one indexed text with caller metadata.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Result is a scored document.
type Result struct {
	Document Document
	Score    float64
}

type indexedDoc struct {
	tf  map[string]int
	len int
}

// Index is immutable after Build and safe for concurrent use.
type Index struct {
	k1, b, epsilon float64

	docs    []Document
	indexed []indexedDoc
	df      map[string]int
	idf     map[string]float64
	avgdl   float64
}

// Option tunes an index.
type Option func(*Index)

// WithParams overrides k1 and b.
func WithParams(k1, b float64) Option {
	return func(ix *Index) {
		ix.k1 = k1
		ix.b = b
	}
}

// Build tokenizes and indexes docs.
func Build(docs []Document, opts ...Option) *Index {
	ix := &Index{
		k1:      DefaultK1,
		b:       DefaultB,
		epsilon: DefaultEpsilon,
		docs:    docs,
		indexed: make([]indexedDoc, 0, len(docs)),
		df:      make(map[string]int),
		idf:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(ix)
	}

	total := 0
	for _, doc := range docs {
		tokens := utils.Tokenize(doc.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			ix.df[term]++
		}
		ix.indexed = append(ix.indexed, indexedDoc{tf: tf, len: len(tokens)})
		total += len(tokens)
	}
	if len(docs) > 0 {
		ix.avgdl = float64(total) / float64(len(docs))
	}
	for term := range ix.df {
		ix.idf[term] = ix.computeIDF(term)
	}
	return ix
}

// computeIDF is the Robertson-Sparck Jones IDF floored at epsilon.
func (ix *Index) computeIDF(term string) float64 {
	n := float64(len(ix.docs))
	nq := float64(ix.df[term])
	return max(math.Log((n-nq+0.5)/(nq+0.5)+1), ix.epsilon)
}

// Len is the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// IDF returns the IDF of a term, epsilon when unseen.
func (ix *Index) IDF(term string) float64 {
	if v, ok := ix.idf[term]; ok {
		return v
	}
	return ix.epsilon
}

func (ix *Index) termScore(term string, i int) float64 {
	doc := ix.indexed[i]
	freq, ok := doc.tf[term]
	if !ok || ix.avgdl == 0 {
		return 0
	}
	f := float64(freq)
	denom := f + ix.k1*(1-ix.b+ix.b*float64(doc.len)/ix.avgdl)
	return ix.IDF(term) * (f * (ix.k1 + 1)) / denom
}

// Scores returns the BM25 score of every document for the query.
func (ix *Index) Scores(query string) []float64 {
	weights := make(map[string]float64)
	for _, tok := range utils.Tokenize(query) {
		weights[tok]++
	}
	return ix.weightedScores(weights)
}

func (ix *Index) weightedScores(weights map[string]float64) []float64 {
	scores := make([]float64, len(ix.docs))
	for i := range ix.indexed {
		for term, w := range weights {
			scores[i] += w * ix.termScore(term, i)
		}
	}
	return scores
}

// Search returns the top k documents with a positive score.
func (ix *Index) Search(query string, k int) []Result {
	if len(ix.docs) == 0 || k <= 0 {
		return nil
	}
	return ix.rank(ix.Scores(query), k)
}

func (ix *Index) rank(scores []float64, k int) []Result {
	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if len(order) > k {
		order = order[:k]
	}
	results := make([]Result, 0, len(order))
	for _, i := range order {
		results = append(results, Result{Document: ix.docs[i], Score: scores[i]})
	}
	return results
}

// SearchWithExpansion runs pseudo-relevance feedback. The top feedbackDocs
// results contribute their strongest non-query terms, weighted by
// score·tf·idf. The expanded query vector is α·query + β·feedback with
// α=1.0 and β=0.5, the feedback part scaled to its strongest term.
func (ix *Index) SearchWithExpansion(query string, k, feedbackDocs, expansionTerms int) []Result {
	initial := ix.Search(query, feedbackDocs)
	if len(initial) == 0 {
		return nil
	}

	weights := make(map[string]float64)
	for _, tok := range utils.Tokenize(query) {
		weights[tok] += feedbackAlpha
	}
	terms, termScores := ix.feedbackTerms(query, initial, expansionTerms)
	if len(terms) > 0 {
		top := termScores[terms[0]]
		for _, term := range terms {
			weights[term] += feedbackBeta * termScores[term] / top
		}
	}
	return ix.rank(ix.weightedScores(weights), k)
}

// ExpansionTerms returns the feedback terms SearchWithExpansion would add.
func (ix *Index) ExpansionTerms(query string, feedbackDocs, expansionTerms int) []string {
	terms, _ := ix.feedbackTerms(query, ix.Search(query, feedbackDocs), expansionTerms)
	return terms
}

func (ix *Index) feedbackTerms(query string, initial []Result, limit int) ([]string, map[string]float64) {
	queryTerms := utils.WordSet(query)
	termScores := make(map[string]float64)
	for _, res := range initial {
		for _, tok := range utils.Tokenize(res.Document.Text) {
			if _, ok := queryTerms[tok]; ok {
				continue
			}
			termScores[tok] += res.Score * ix.IDF(tok)
		}
	}
	terms := make([]string, 0, len(termScores))
	for term := range termScores {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(a, b int) bool {
		if termScores[terms[a]] == termScores[terms[b]] {
			return terms[a] < terms[b]
		}
		return termScores[terms[a]] > termScores[terms[b]]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms, termScores
}
