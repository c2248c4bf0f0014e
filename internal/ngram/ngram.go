// Package ngram implements an order 1-5 word language model with Stupid Backoff.
package ngram

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/utils"
)

const (
	// BOS pads the start of every sentence.
	BOS = "<BOS>"
	// EOS terminates every sentence.
	EOS = "<EOS>"
	// UNK stands in for out-of-vocabulary words.
	UNK = "<UNK>"

	// MaxOrder is the highest supported n-gram order.
	MaxOrder = 5
	// DefaultBackoff is the Stupid Backoff discount per fallback level.
	DefaultBackoff = 0.4

	topK     = 50
	ctxSep   = "\x1f"
	retries  = 3
	decayGap = 5
)

type distribution struct {
	counts map[string]int
	total  int
	ranked []string
}

func (d *distribution) rank() {
	d.ranked = d.ranked[:0]
	for w := range d.counts {
		d.ranked = append(d.ranked, w)
	}
	sort.Slice(d.ranked, func(i, j int) bool {
		ci, cj := d.counts[d.ranked[i]], d.counts[d.ranked[j]]
		if ci == cj {
			return d.ranked[i] < d.ranked[j]
		}
		return ci > cj
	})
}

func (d *distribution) top(k int) []string {
	if len(d.ranked) > k {
		return d.ranked[:k]
	}
	return d.ranked
}

// Model is a backoff n-gram model. Train it once, then it is read-only and
// safe for concurrent use.
type Model struct {
	order    int
	backoff  float64
	minCount int

	// grams[n] maps an (n-1)-word context key to next-word counts.
	grams []map[string]*distribution
	vocab map[string]struct{}
}

// Stats summarizes a trained model.
type Stats struct {
	TotalTokens  int         `json:"total_tokens"`
	UniqueTokens int         `json:"unique_tokens"`
	NgramCounts  map[int]int `json:"ngram_counts"`
}

// New returns an untrained model. Order is clamped to [1,5].
func New(order int) *Model {
	order = max(1, min(order, MaxOrder))
	m := &Model{
		order:    order,
		backoff:  DefaultBackoff,
		minCount: 1,
		grams:    make([]map[string]*distribution, order+1),
		vocab:    make(map[string]struct{}),
	}
	for n := 1; n <= order; n++ {
		m.grams[n] = make(map[string]*distribution)
	}
	return m
}

// Order is the model's highest n-gram order.
func (m *Model) Order() int {
	return m.order
}

// Train counts n-grams over every text in corpus.
func (m *Model) Train(corpus []string) *Model {
	for _, text := range corpus {
		tokens := utils.Tokenize(text)
		if len(tokens) == 0 {
			continue
		}
		m.addSentence(tokens)
	}
	for n := 1; n <= m.order; n++ {
		for _, d := range m.grams[n] {
			d.rank()
		}
	}
	return m
}

func (m *Model) addSentence(tokens []string) {
	padded := make([]string, 0, m.order-1+len(tokens)+1)
	for i := 0; i < m.order-1; i++ {
		padded = append(padded, BOS)
	}
	padded = append(padded, tokens...)
	padded = append(padded, EOS)
	for _, tok := range tokens {
		m.vocab[tok] = struct{}{}
	}

	for n := 1; n <= m.order; n++ {
		for i := 0; i+n <= len(padded); i++ {
			if padded[i+n-1] == BOS {
				continue
			}
			key := strings.Join(padded[i:i+n-1], ctxSep)
			d, ok := m.grams[n][key]
			if !ok {
				d = &distribution{counts: make(map[string]int)}
				m.grams[n][key] = d
			}
			d.counts[padded[i+n-1]]++
			d.total++
		}
	}
}

// VocabSize is the number of distinct training words.
func (m *Model) VocabSize() int {
	return len(m.vocab)
}

// contextFor returns the slice of context an order-n lookup conditions on.
func contextFor(context []string, order int) []string {
	if order <= 1 {
		return nil
	}
	if len(context) >= order-1 {
		return context[len(context)-(order-1):]
	}
	return context
}

func (m *Model) continuation(context []string, word string, order int) float64 {
	if order <= 0 {
		total, count := 0, 0
		if d, ok := m.grams[1][""]; ok {
			total = d.total
			count = d.counts[word]
		}
		return float64(count+1) / float64(total+len(m.vocab)+1)
	}

	key := strings.Join(contextFor(context, order), ctxSep)
	if d, ok := m.grams[order][key]; ok {
		if count := d.counts[word]; count >= m.minCount {
			return float64(count) / float64(d.total)
		}
	}
	var shorter []string
	if len(context) > 0 {
		shorter = context[1:]
	}
	return m.backoff * m.continuation(shorter, word, order-1)
}

// Probability is the backoff score of word after context. It is not a
// normalized distribution.
func (m *Model) Probability(word string, context []string) float64 {
	ctx := make([]string, len(context))
	for i, w := range context {
		ctx[i] = strings.ToLower(w)
	}
	return m.continuation(ctx, strings.ToLower(word), m.order)
}

// Perplexity is exp(-mean log p) of text. Empty text is +Inf.
func (m *Model) Perplexity(text string) float64 {
	tokens := utils.Tokenize(text)
	if len(tokens) == 0 {
		return math.Inf(1)
	}
	context := m.startContext()
	sum := 0.0
	for _, tok := range tokens {
		p := m.continuation(context, tok, m.order)
		if p <= 0 {
			return math.Inf(1)
		}
		sum += math.Log(p)
		context = append(context, tok)
		if len(context) > m.order-1 {
			context = context[len(context)-(m.order-1):]
		}
	}
	return math.Exp(-sum / float64(len(tokens)))
}

// Score maps perplexity into (0,1]; lower perplexity scores higher.
func (m *Model) Score(text string) float64 {
	ppl := m.Perplexity(text)
	if math.IsInf(ppl, 1) {
		return 0
	}
	return 1 / (1 + math.Log(ppl+1))
}

func (m *Model) startContext() []string {
	ctx := make([]string, 0, m.order-1)
	for i := 0; i < m.order-1; i++ {
		ctx = append(ctx, BOS)
	}
	return ctx
}

type candidate struct {
	word string
	p    float64
}

// sampleNext merges candidates from the highest order down, keeping the first
// probability seen for each word.
func (m *Model) sampleNext(r *rand.Rand, context []string, temperature float64) string {
	var cands []candidate
	seen := make(map[string]struct{})
	for order := m.order; order >= 1; order-- {
		key := strings.Join(contextFor(context, order), ctxSep)
		d, ok := m.grams[order][key]
		if !ok {
			continue
		}
		for _, w := range d.top(topK) {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			cands = append(cands, candidate{word: w, p: m.continuation(context, w, order)})
		}
	}
	if len(cands) == 0 {
		if d, ok := m.grams[1][""]; ok {
			for _, w := range d.top(topK) {
				cands = append(cands, candidate{word: w, p: float64(d.counts[w]) / float64(d.total)})
			}
		}
	}
	if len(cands) == 0 {
		return EOS
	}

	weights := make([]float64, len(cands))
	for i, c := range cands {
		weights[i] = c.p
		if temperature > 0 && temperature != 1 {
			weights[i] = math.Pow(c.p, 1/temperature)
		}
	}
	return cands[utils.WeightedIndex(r, weights, 0)].word
}

// Generate continues seed for at most maxLen tokens. A repeated token is
// resampled up to three times at rising temperature when repPenalty > 1.
// Recent-token counts decay every five generated tokens.
func (m *Model) Generate(r *rand.Rand, seed string, maxLen int, temperature, repPenalty float64) string {
	context := append(m.startContext(), utils.Tokenize(seed)...)
	generated := make([]string, 0, max(maxLen, 0))
	recent := make(map[string]int)

	for len(generated) < maxLen {
		ctx := context
		if len(ctx) > m.order-1 {
			ctx = ctx[len(ctx)-(m.order-1):]
		}
		next := m.sampleNext(r, ctx, temperature)
		if _, repeated := recent[next]; repPenalty > 1 && repeated {
			for attempt := 0; attempt < retries; attempt++ {
				alt := m.sampleNext(r, ctx, temperature*(1+float64(attempt)*0.5))
				if _, rep := recent[alt]; !rep || alt == EOS {
					next = alt
					break
				}
			}
		}
		if next == EOS {
			break
		}
		generated = append(generated, next)
		context = append(context, next)
		recent[next]++

		if len(generated)%decayGap == 0 {
			for w, c := range recent {
				if c > 1 {
					recent[w] = c - 1
				} else {
					delete(recent, w)
				}
			}
		}
	}
	return strings.Join(generated, " ")
}

// Stats reports token and n-gram counts.
func (m *Model) Stats() Stats {
	s := Stats{UniqueTokens: len(m.vocab), NgramCounts: make(map[int]int, m.order)}
	for n := 1; n <= m.order; n++ {
		total := 0
		for _, d := range m.grams[n] {
			total += d.total
		}
		s.NgramCounts[n] = total
	}
	s.TotalTokens = s.NgramCounts[1]
	return s
}
