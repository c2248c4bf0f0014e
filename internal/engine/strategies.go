package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/bm25"
	"github.com/easeaico/persona-engine/internal/corpus"
	"github.com/easeaico/persona-engine/internal/ensemble"
	"github.com/easeaico/persona-engine/internal/ngram"
	"github.com/easeaico/persona-engine/internal/pmi"
	"github.com/easeaico/persona-engine/internal/template"
	"github.com/easeaico/persona-engine/internal/types"
)

// Strategy names in registration order.
const (
	StrategyTFIDFMarkov  = "tfidf_markov"
	StrategyTemplateFill = "template_fill"
	StrategyNgramBlend   = "ngram_blend"
	StrategyRetrievalMod = "retrieval_mod"
	StrategyBM25         = "bm25_retrieve"
	StrategyNgramLM      = "ngram_lm"
	StrategyPMIExpand    = "pmi_expand"
	StrategyHybridBlend  = "hybrid_blend"
)

const (
	defaultMaxLength = 60
	minSimilarity    = 0.1
	minConfidence    = 0.05
	markovBlendRate  = 0.3
)

var topicScenarios = map[string]string{
	types.TopicGreeting: "greeting",
	types.TopicPersonal: "question_response",
	types.TopicAdvice:   "encouragement",
	types.TopicFeelings: "encouragement",
	types.TopicLore:     "curiosity",
	types.TopicGeneral:  template.FallbackScenario,
}

// strategies binds the eight generators to one index set.
func strategies(set *IndexSet) []ensemble.Strategy {
	return []ensemble.Strategy{
		tfidfMarkov{store: set.Corpus},
		templateFill{filler: set.Templates},
		ngramBlend{store: set.Corpus},
		retrievalMod{store: set.Corpus},
		bm25Retrieve{store: set.Corpus, index: set.BM25},
		ngramLM{store: set.Corpus, models: set.Ngram},
		pmiExpand{store: set.Corpus, index: set.BM25, assoc: set.PMI},
		hybridBlend{store: set.Corpus, index: set.BM25, models: set.Ngram},
	}
}

func maxLength(gc *types.GenerationContext) int {
	if gc.MaxLength > 0 {
		return gc.MaxLength
	}
	return defaultMaxLength
}

func wrap(r *rand.Rand, store *corpus.Store, gc *types.GenerationContext, text string) string {
	return corpus.StyleWrap(r, store.Profile(gc.Persona), gc.Persona, text, gc.Mood)
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	return strings.Join(words[:min(n, len(words))], " ")
}

func bm25Confidence(score float64) float64 {
	return min(1, score/10)
}

// tfidfMarkov is the retrieval baseline, occasionally extended by the
// persona's Markov chain.
type tfidfMarkov struct {
	store *corpus.Store
}

func (tfidfMarkov) Name() string { return StrategyTFIDFMarkov }

func (s tfidfMarkov) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	reply, err := s.store.Reply(r, corpus.ReplyRequest{
		Persona: gc.Persona,
		Message: gc.Message,
		History: gc.History,
		Mood:    gc.Mood,
		TopK:    5,
	})
	if errors.Is(err, corpus.ErrNoSamples) {
		return ensemble.Result{}, nil
	}
	if err != nil {
		return ensemble.Result{}, err
	}

	text := reply.Text
	blended := false
	if len(strings.Fields(reply.Base)) > 3 && r.Float64() < markovBlendRate {
		if ext := s.store.Extend(r, gc.Persona, reply.Base, 8, 0.8, 1.2); ext != "" {
			text += " " + ext
			blended = true
		}
	}
	return ensemble.Result{
		Text:       text,
		Confidence: max(minConfidence, reply.Similarity),
		Metadata: map[string]any{
			"scenario":      reply.Scenario,
			"similarity":    reply.Similarity,
			"markov_blend":  blended,
			"retrieved_for": reply.User,
		},
	}, nil
}

// templateFill maps the dialogue topic onto a template scenario.
type templateFill struct {
	filler *template.Filler
}

func (templateFill) Name() string { return StrategyTemplateFill }

func (s templateFill) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	scenario, ok := topicScenarios[gc.Topic]
	if !ok {
		scenario = template.FallbackScenario
	}
	res := s.filler.Fill(r, gc.Persona, scenario, gc.Mood, map[string]string{"message": gc.Message})
	return ensemble.Result{Text: res.Text, Confidence: res.Confidence, Metadata: res.Metadata}, nil
}

// ngramBlend runs the Markov chain from a mood-prefixed seed.
type ngramBlend struct {
	store *corpus.Store
}

func (ngramBlend) Name() string { return StrategyNgramBlend }

func (s ngramBlend) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	text := s.store.Continue(r, gc.Persona, gc.Mood+" "+gc.Message, maxLength(gc), 0.95, 1.2)
	// A chain that cannot leave the seed state only echoes the seed.
	if len(strings.Fields(text)) <= 2 {
		return ensemble.Result{}, nil
	}
	return ensemble.Result{Text: wrap(r, s.store, gc, text), Confidence: 0.4}, nil
}

// retrievalMod splices Markov output into the middle of the nearest reply.
type retrievalMod struct {
	store *corpus.Store
}

func (retrievalMod) Name() string { return StrategyRetrievalMod }

func (s retrievalMod) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	sample, sim, ok := s.store.Nearest(gc.Persona, corpus.BuildQuery(gc.Message, gc.History))
	if !ok || sim < minSimilarity || sample.Reply == "" {
		return ensemble.Result{}, nil
	}

	words := strings.Fields(sample.Reply)
	text := sample.Reply
	if len(words) > 5 {
		cut := len(words) / 3
		if mid := s.store.Extend(r, gc.Persona, strings.Join(words[:cut], " "), 5, 1, 1.1); mid != "" {
			parts := append(append(append([]string(nil), words[:cut]...), strings.Fields(mid)...), words[len(words)-2:]...)
			text = strings.Join(parts, " ")
		}
	}
	return ensemble.Result{
		Text:       wrap(r, s.store, gc, text),
		Confidence: sim * 0.8,
		Metadata:   map[string]any{"original_scenario": sample.Scenario},
	}, nil
}

// bm25Retrieve ranks utterances by BM25 and extends the best reply.
type bm25Retrieve struct {
	store *corpus.Store
	index *bm25.PersonaIndex
}

func (bm25Retrieve) Name() string { return StrategyBM25 }

func (s bm25Retrieve) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	query := gc.Message
	if recent := gc.RecentHistory(2); len(recent) > 0 {
		parts := make([]string, 0, len(recent)+1)
		for _, m := range recent {
			parts = append(parts, m.Content)
		}
		query = strings.Join(append(parts, gc.Message), " ")
	}
	matches := s.index.Search(gc.Persona, query, 3)
	if len(matches) == 0 || matches[0].Reply == "" {
		return ensemble.Result{}, nil
	}
	best := matches[0]

	text := best.Reply
	if len(strings.Fields(best.Reply)) > 3 {
		if ext := s.store.Extend(r, gc.Persona, firstWords(best.Reply, 3), 12, 1, 1.1); ext != "" {
			text += " " + ext
		}
	}
	return ensemble.Result{
		Text:       wrap(r, s.store, gc, text),
		Confidence: bm25Confidence(best.Score),
		Metadata:   map[string]any{"bm25_score": best.Score, "scenario": best.Scenario},
	}, nil
}

// ngramLM generates from the persona's backoff language model.
type ngramLM struct {
	store  *corpus.Store
	models *ngram.PersonaModels
}

func (ngramLM) Name() string { return StrategyNgramLM }

func (s ngramLM) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	text := s.models.Generate(r, gc.Persona, firstWords(gc.Message, 3), maxLength(gc), 0.9, 1.3)
	if text == "" {
		return ensemble.Result{}, nil
	}
	return ensemble.Result{
		Text:       wrap(r, s.store, gc, text),
		Confidence: max(minConfidence, s.models.Score(gc.Persona, text)),
	}, nil
}

// pmiExpand widens the query with associated words before retrieving.
type pmiExpand struct {
	store *corpus.Store
	index *bm25.PersonaIndex
	assoc *pmi.PersonaModels
}

func (pmiExpand) Name() string { return StrategyPMIExpand }

func (s pmiExpand) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	terms := s.assoc.ExpandQuery(gc.Message, gc.Persona, 3)
	if len(terms) == 0 {
		return ensemble.Result{}, nil
	}
	words := make([]string, 0, min(10, len(terms)))
	for _, t := range terms[:min(10, len(terms))] {
		words = append(words, t.Term)
	}
	query := strings.Join(words, " ")

	var text string
	var conf float64
	if matches := s.index.Search(gc.Persona, query, 3); len(matches) > 0 && matches[0].Reply != "" {
		text, conf = matches[0].Reply, bm25Confidence(matches[0].Score)
	} else {
		sample, sim, ok := s.store.Nearest(gc.Persona, query)
		if !ok || sim < minSimilarity || sample.Reply == "" {
			return ensemble.Result{}, nil
		}
		text, conf = sample.Reply, sim
	}
	return ensemble.Result{
		Text:       wrap(r, s.store, gc, text),
		Confidence: conf * 0.9,
		Metadata:   map[string]any{"expanded_terms": words[:min(5, len(words))]},
	}, nil
}

// hybridBlend takes the strongest of a BM25, a TF-IDF and an n-gram
// candidate and varies it with the Markov chain.
type hybridBlend struct {
	store  *corpus.Store
	index  *bm25.PersonaIndex
	models *ngram.PersonaModels
}

func (hybridBlend) Name() string { return StrategyHybridBlend }

type source struct {
	name  string
	text  string
	score float64
}

func (s hybridBlend) Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (ensemble.Result, error) {
	var sources []source
	if m := s.index.Search(gc.Persona, gc.Message, 1); len(m) > 0 && m[0].Reply != "" {
		sources = append(sources, source{"bm25", m[0].Reply, bm25Confidence(m[0].Score)})
	}
	if sample, sim, ok := s.store.Nearest(gc.Persona, gc.Message); ok && sim > minSimilarity && sample.Reply != "" {
		sources = append(sources, source{"tfidf", sample.Reply, sim})
	}
	seed := []rune(gc.Message)
	if text := s.models.Generate(r, gc.Persona, string(seed[:min(20, len(seed))]), maxLength(gc)/2, 1, 1.1); text != "" {
		sources = append(sources, source{"ngram", text, s.models.Score(gc.Persona, text)})
	}
	if len(sources) == 0 {
		return ensemble.Result{}, nil
	}
	total := 0.0
	for _, src := range sources {
		total += src.score
	}
	if total == 0 {
		return ensemble.Result{}, nil
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].score > sources[j].score })
	best := sources[0]

	text := best.text
	if words := strings.Fields(best.text); len(words) > 5 {
		if v := s.store.Extend(r, gc.Persona, firstWords(best.text, 3), 15, 1, 1.1); v != "" {
			text = strings.Join(words[:len(words)/2], " ") + " " + v
		}
	}

	names := make([]string, len(sources))
	scores := make(map[string]float64, len(sources))
	for i, src := range sources {
		names[i] = src.name
		scores[src.name] = src.score
	}
	return ensemble.Result{
		Text:       wrap(r, s.store, gc, text),
		Confidence: best.score,
		Metadata:   map[string]any{"sources": names, "scores": scores},
	}, nil
}
