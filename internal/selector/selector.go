// Package selector scores reply candidates on an engineered feature vector,
// either with a trained classifier or a fixed linear weighting.
package selector

import (
	"fmt"
	"strings"
	"sync"
)

// Feature names, in vector order.
const (
	FeatureSimilarity = "similarity_score"
	FeatureIntent     = "intent_alignment"
	FeatureMood       = "mood_alignment"
	FeatureLength     = "length_score"
	FeatureDiversity  = "diversity_score"
	FeaturePersona    = "persona_score"
	FeatureConfidence = "confidence"
	FeatureSource     = "source_weight"
)

// FeatureNames lists the vector layout.
var FeatureNames = []string{
	FeatureSimilarity,
	FeatureIntent,
	FeatureMood,
	FeatureLength,
	FeatureDiversity,
	FeaturePersona,
	FeatureConfidence,
	FeatureSource,
}

var linearWeights = []float64{0.25, 0.15, 0.1, 0.1, 0.1, 0.15, 0.1, 0.05}

const (
	defaultFeature  = 0.5
	defaultStrategy = 0.7
	emaAlpha        = 0.1
)

func defaultStrategyWeights() map[string]float64 {
	return map[string]float64{
		"tfidf_markov":  1.0,
		"template_fill": 0.9,
		"ngram_blend":   0.8,
		"retrieval_mod": 0.85,
		"bm25_retrieve": 0.9,
	}
}

// Candidate is a reply as the selector sees it. Features overrides computed
// values by name; Intent and Mood describe the reply and default to the
// request's.
type Candidate struct {
	Text       string
	Source     string
	Confidence float64
	Intent     string
	Mood       string
	Features   map[string]float64
}

// Context is the request side of feature extraction.
type Context struct {
	Intent string
	Mood   string
}

// Sample is one labeled selection: the candidates offered and the index of
// the one that was chosen.
type Sample struct {
	Candidates []Candidate
	Chosen     int
	Context    Context
}

// Result is a selection verdict.
type Result struct {
	Index      int                `json:"selected_index"`
	Confidence float64            `json:"confidence"`
	Importance map[string]float64 `json:"feature_importance"`
}

// Selector is safe for concurrent use.
type Selector struct {
	mu       sync.RWMutex
	model    Classifier
	scaler   *Scaler
	trained  bool
	strategy map[string]float64
}

// New returns a selector around model. A nil model keeps the selector on
// linear weighting permanently.
func New(model Classifier) *Selector {
	return &Selector{model: model, strategy: defaultStrategyWeights()}
}

// Features extracts the 8-feature vector for c.
func (s *Selector) Features(c Candidate, ctx Context) []float64 {
	s.mu.RLock()
	source, ok := s.strategy[c.Source]
	s.mu.RUnlock()
	if !ok {
		source = defaultStrategy
	}

	intent := ctx.Intent
	if intent == "" {
		intent = "general"
	}
	mood := ctx.Mood
	if mood == "" {
		mood = "neutral"
	}

	computed := map[string]float64{
		FeatureSimilarity: defaultFeature,
		FeatureIntent:     alignment(intent, c.Intent),
		FeatureMood:       alignment(mood, c.Mood),
		FeatureLength:     lengthScore(len(strings.Fields(c.Text))),
		FeatureDiversity:  defaultFeature,
		FeaturePersona:    defaultFeature,
		FeatureConfidence: c.Confidence,
		FeatureSource:     source,
	}
	out := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		if v, ok := c.Features[name]; ok && name != FeatureSource {
			out[i] = v
		} else {
			out[i] = computed[name]
		}
	}
	return out
}

func alignment(want, got string) float64 {
	if got == "" || got == want {
		return 1
	}
	return 0.5
}

func lengthScore(words int) float64 {
	switch {
	case words >= 5 && words <= 30:
		return 1
	case words >= 3 && words <= 50:
		return 0.7
	default:
		return 0.4
	}
}

// Train fits the classifier on every candidate of every sample, labeled by
// whether it was the chosen one.
func (s *Selector) Train(samples []Sample) error {
	if s.model == nil {
		return fmt.Errorf("selector classifier not configured")
	}
	var x [][]float64
	var y []int
	for _, sample := range samples {
		for i, c := range sample.Candidates {
			x = append(x, s.Features(c, sample.Context))
			label := 0
			if i == sample.Chosen {
				label = 1
			}
			y = append(y, label)
		}
	}
	if len(x) < 2 {
		return ErrTooFewSamples
	}

	scaler := FitScaler(x)
	scaled := make([][]float64, len(x))
	for i, row := range x {
		scaled[i] = scaler.Transform(row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.model.Fit(scaled, y); err != nil {
		return fmt.Errorf("failed to train selector: %w", err)
	}
	s.scaler = scaler
	s.trained = true
	return nil
}

// Trained reports whether a classifier has been fitted.
func (s *Selector) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

// Scores returns one score per candidate: P(chosen) when trained, the
// linear weighted feature sum otherwise.
func (s *Selector) Scores(candidates []Candidate, ctx Context) []float64 {
	rows := make([][]float64, len(candidates))
	for i, c := range candidates {
		rows[i] = s.Features(c, ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]float64, len(rows))
	for i, row := range rows {
		if s.trained {
			scores[i] = s.model.Proba(s.scaler.Transform(row))
			continue
		}
		for j, v := range row {
			scores[i] += v * linearWeights[j]
		}
	}
	return scores
}

// Select picks the highest scoring candidate. Untrained confidence is the
// winner's min-max normalized score (0.5 when all tie); a single candidate
// has confidence 1 and none has confidence 0.
func (s *Selector) Select(candidates []Candidate, ctx Context) Result {
	switch len(candidates) {
	case 0:
		return Result{Importance: map[string]float64{}}
	case 1:
		return Result{Confidence: 1, Importance: map[string]float64{}}
	}

	scores := s.Scores(candidates, ctx)
	best, lo, hi := 0, scores[0], scores[0]
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
		lo, hi = min(lo, v), max(hi, v)
	}

	if s.Trained() {
		return Result{Index: best, Confidence: scores[best], Importance: s.FeatureImportance()}
	}
	conf := 0.5
	if hi > lo {
		conf = (scores[best] - lo) / (hi - lo)
	}
	return Result{Index: best, Confidence: conf, Importance: named(linearWeights)}
}

// FeatureImportance returns the classifier's importances, or an empty map
// when untrained or the classifier has none.
func (s *Selector) FeatureImportance() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.trained {
		return map[string]float64{}
	}
	imp := s.model.Importances()
	if imp == nil {
		return map[string]float64{}
	}
	return named(imp)
}

func named(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, v := range values {
		if i < len(FeatureNames) {
			out[FeatureNames[i]] = v
		}
	}
	return out
}

// UpdateStrategyWeight moves a known strategy's prior toward reward with an
// exponential moving average. Unknown strategies are ignored.
func (s *Selector) UpdateStrategyWeight(strategy string, reward float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.strategy[strategy]
	if !ok {
		return
	}
	s.strategy[strategy] = current + emaAlpha*(reward-current)
}

// StrategyWeights returns a copy of the strategy priors.
func (s *Selector) StrategyWeights() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.strategy))
	for k, v := range s.strategy {
		out[k] = v
	}
	return out
}
