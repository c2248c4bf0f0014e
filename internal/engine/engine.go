// Package engine orchestrates the persona reply pipeline: keyword and
// classifier analysis, dialogue state, candidate generation, personalization,
// cascade routing and feedback learning.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/persona-engine/internal/bandit"
	"github.com/easeaico/persona-engine/internal/cascade"
	"github.com/easeaico/persona-engine/internal/config"
	"github.com/easeaico/persona-engine/internal/corpus"
	"github.com/easeaico/persona-engine/internal/dialogue"
	"github.com/easeaico/persona-engine/internal/ensemble"
	"github.com/easeaico/persona-engine/internal/metrics"
	"github.com/easeaico/persona-engine/internal/selector"
	"github.com/easeaico/persona-engine/internal/stylecf"
	"github.com/easeaico/persona-engine/internal/trie"
	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// ErrNotReady is returned before the first index set is live.
var ErrNotReady = errors.New("engine indices not loaded")

// Strategy names used when no generated candidate is returned.
const (
	StrategyFallbackBase    = "fallback_base"
	StrategyFallbackCascade = "fallback_cascade"
	StrategyFallback        = cascade.SourceFallback
)

const (
	moodOverride     = 0.7
	intentOverride   = 0.6
	selectorBlend    = 0.3
	maxKeywords      = 5
	trainEvery       = 25
	maxTrainSamples  = 500
	banditCheckpoint = "ensemble"
)

// Options configures an Engine.
type Options struct {
	Sources           Sources
	Seed              uint64
	StrategyTimeout   time.Duration
	SelectionMethod   string
	CFWeight          float64
	DialogueCacheSize int
	Metrics           *metrics.Metrics
	Stores            Stores
}

// OptionsFromConfig maps the environment configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Sources: Sources{
			PersonasFile:  cfg.PersonasFile,
			CorpusFiles:   cfg.CorpusFiles,
			TemplatesFile: cfg.TemplatesFile,
		},
		Seed:              cfg.RandomSeed,
		StrategyTimeout:   cfg.StrategyTimeout,
		SelectionMethod:   cfg.SelectionMethod,
		CFWeight:          cfg.CFWeight,
		DialogueCacheSize: cfg.DialogueCacheSize,
	}
}

// generation is an index set with the ensemble bound to it.
type generation struct {
	indices  *IndexSet
	ensemble *ensemble.Ensemble
}

// selection is the last reply, kept for feedback attribution.
type selection struct {
	Strategy   string
	Persona    string
	Mood       string
	Topic      string
	UserID     string
	Text       string
	Styles     map[string]string
	Candidates []selector.Candidate
	Chosen     int
	Context    selector.Context
}

// Engine is safe for concurrent use. Each shared learner has its own lock;
// the index set is swapped as one pointer.
type Engine struct {
	opts Options
	live atomic.Pointer[generation]

	reloadMu sync.Mutex

	bandit   *bandit.ContextualBandit
	dialogue *dialogue.Manager
	styles   *stylecf.Store
	router   *cascade.Router
	selector *selector.Ensemble
	ring     *ensemble.Ring
	metrics  *metrics.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	lastMu   sync.Mutex
	last     *selection
	training []selector.Sample
	pending  int
}

// New builds the shared learners and the first index set.
func New(opts Options) (*Engine, error) {
	e, err := newEngine(opts)
	if err != nil {
		return nil, err
	}
	set, err := BuildIndexSet(opts.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}
	e.install(set)
	return e, nil
}

// NewWithIndexSet is New with a prebuilt index set.
func NewWithIndexSet(opts Options, set *IndexSet) (*Engine, error) {
	if set == nil {
		return nil, fmt.Errorf("index set not configured")
	}
	e, err := newEngine(opts)
	if err != nil {
		return nil, err
	}
	e.install(set)
	return e, nil
}

func newEngine(opts Options) (*Engine, error) {
	if opts.SelectionMethod == "" {
		opts.SelectionMethod = ensemble.MethodWeightedRandom
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = ensemble.DefaultTimeout
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	manager, err := dialogue.NewManager(opts.DialogueCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:     opts,
		bandit:   bandit.NewContextual(nil, []string{"mood", "topic"}),
		dialogue: manager,
		styles:   stylecf.New(),
		router:   cascade.NewRouter(nil),
		selector: selector.NewEnsemble(),
		ring:     ensemble.NewRing(ensemble.DefaultRingSize),
		metrics:  opts.Metrics,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (e *Engine) install(set *IndexSet) {
	g := &generation{
		indices: set,
		ensemble: ensemble.New(strategies(set), e.bandit, e.ring,
			ensemble.WithTimeout(e.opts.StrategyTimeout),
			ensemble.WithRecorder(e.metrics)),
	}
	e.live.Store(g)
	e.metrics.ObserveReload(nil, set.Report.Samples, set.Report.Personas)
}

// requestRand derives an independent generator for one request.
func (e *Engine) requestRand() *rand.Rand {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return rand.New(rand.NewPCG(e.rng.Uint64(), e.rng.Uint64()))
}

// Indices returns the live index set.
func (e *Engine) Indices() *IndexSet {
	g := e.live.Load()
	if g == nil {
		return nil
	}
	return g.indices
}

// Reply runs the full pipeline for one request. It always returns a
// non-empty reply once the engine is ready.
func (e *Engine) Reply(ctx context.Context, req types.Request) (types.Response, error) {
	g := e.live.Load()
	if g == nil {
		return types.Response{}, ErrNotReady
	}
	r := e.requestRand()
	idx := g.indices
	persona := idx.Corpus.Resolve(req.Persona)

	analysis := e.analyze(idx, persona, req.Message)
	state := e.dialogue.Update(r, persona, req.Message, historyTurns(req.History))
	mood, topic := state.Mood, state.Topic
	if analysis.MoodConfidence > moodOverride && types.IsMood(analysis.Mood) {
		mood = analysis.Mood
	}
	if analysis.IntentConfidence > intentOverride && types.IsTopic(analysis.Intent) {
		topic = analysis.Intent
	}

	gc := &types.GenerationContext{
		Persona:          persona,
		Profile:          idx.Corpus.Profile(persona),
		Message:          req.Message,
		History:          req.History,
		UserID:           req.UserID,
		ChannelID:        req.ChannelID,
		Mood:             mood,
		Topic:            topic,
		Intent:           analysis.Intent,
		IntentConfidence: analysis.IntentConfidence,
		MoodConfidence:   analysis.MoodConfidence,
		Keywords:         analysis.Keywords,
		MaxLength:        req.MaxLength,
	}

	candidates := g.ensemble.GenerateCandidates(ctx, r, gc)
	if req.NumCandidates > 0 && len(candidates) > req.NumCandidates {
		candidates = candidates[:req.NumCandidates]
	}
	if len(candidates) == 0 {
		slog.Warn("no strategy produced a candidate", "persona", persona)
		return e.baseFallback(r, idx, gc, analysis, StrategyFallbackBase), nil
	}

	selCands, selCtx := e.blendSelector(idx, gc, candidates)
	e.personalize(gc, candidates)

	screened := e.router.Screen(gc, candidates)
	var chosen types.Candidate
	if len(screened) == 0 {
		chosen = e.router.Fallback(r, gc)
		e.metrics.ObserveFallback(StrategyFallback)
	} else {
		g.ensemble.Score(screened, nil, nil)
		var ok bool
		if e.opts.SelectionMethod == ensemble.MethodWeightedRandom {
			chosen, ok = cascade.Pick(r, screened), true
		} else {
			chosen, ok = g.ensemble.Select(r, screened, e.opts.SelectionMethod)
		}
		if !ok {
			return e.baseFallback(r, idx, gc, analysis, StrategyFallbackCascade), nil
		}
	}

	g.ensemble.TrackOutput(chosen.Text)
	e.remember(gc, chosen, selCands, selCtx)
	e.metrics.ObserveReply(chosen.Source)

	meta := make(map[string]any, len(chosen.Metadata)+4)
	for k, v := range chosen.Metadata {
		meta[k] = v
	}
	meta["request_id"] = uuid.NewString()
	meta["final_score"] = round4(chosen.FinalScore())
	meta["candidates"] = len(candidates)
	meta["survivors"] = len(screened)

	return types.Response{
		Text:       chosen.Text,
		Persona:    persona,
		Strategy:   chosen.Source,
		Mood:       mood,
		Topic:      topic,
		Confidence: round4(clamp01(chosen.Confidence)),
		Metadata:   meta,
		MLAnalysis: analysis,
	}, nil
}

// analyze runs keyword detection and both classifiers.
func (e *Engine) analyze(idx *IndexSet, persona, message string) types.MLAnalysis {
	matches := idx.Keywords.DetectKeywords(message)
	intent := idx.Intent.Predict(message, persona)
	mood := idx.Mood.Predict(message, persona)

	keywords := make([]string, 0, maxKeywords)
	for _, m := range matches {
		if len(keywords) == maxKeywords {
			break
		}
		keywords = append(keywords, m.Keyword)
	}
	return types.MLAnalysis{
		Intent:           intent.Label,
		IntentConfidence: round4(intent.Confidence),
		Mood:             mood.Label,
		MoodConfidence:   round4(mood.Confidence),
		Keywords:         keywords,
		DetectedPersona:  detectPersona(matches),
	}
}

// detectPersona is the persona with the highest summed keyword weight, ties
// to the first seen. Empty when nothing matched.
func detectPersona(matches []trie.KeywordMatch) string {
	scores := make(map[string]float64)
	var order []string
	for _, m := range matches {
		if _, ok := scores[m.Persona]; !ok {
			order = append(order, m.Persona)
		}
		scores[m.Persona] += m.Weight
	}
	best := ""
	for _, p := range order {
		if best == "" || scores[p] > scores[best] {
			best = p
		}
	}
	return best
}

func historyTurns(history []types.Message) []dialogue.Turn {
	var turns []dialogue.Turn
	for _, m := range history {
		if m.Role == types.RoleAssistant {
			continue
		}
		turns = append(turns, dialogue.Turn{Message: m.Content})
	}
	return turns
}

// blendSelector moves each confidence toward the selector score.
func (e *Engine) blendSelector(idx *IndexSet, gc *types.GenerationContext, candidates []types.Candidate) ([]selector.Candidate, selector.Context) {
	ctx := selector.Context{Intent: gc.Intent, Mood: gc.Mood}
	cands := make([]selector.Candidate, len(candidates))
	for i, c := range candidates {
		cands[i] = selector.Candidate{
			Text:       c.Text,
			Source:     c.Source,
			Confidence: c.Confidence,
			Features: map[string]float64{
				selector.FeatureSimilarity: utils.Jaccard(gc.Message, c.Text),
				selector.FeatureDiversity:  e.ring.Diversity(c.Text),
				selector.FeaturePersona:    idx.PMI.ResponseFit(c.Text, gc.Persona),
			},
		}
	}
	scores := e.selector.Scores(cands, ctx)
	for i := range candidates {
		candidates[i].Confidence = (1-selectorBlend)*candidates[i].Confidence + selectorBlend*clamp01(scores[i])
		candidates[i].Metadata["selector_score"] = round4(scores[i])
	}
	return cands, ctx
}

// personalize sets CF scores for a known user.
func (e *Engine) personalize(gc *types.GenerationContext, candidates []types.Candidate) {
	if gc.UserID == "" {
		return
	}
	texts := make([]string, len(candidates))
	ones := make([]float64, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
		ones[i] = 1
	}
	for i, p := range e.styles.Personalize(gc.UserID, texts, ones, e.opts.CFWeight) {
		candidates[i].CFScore = p.Score
		candidates[i].Metadata["style"] = p.Styles
	}
}

// baseFallback answers from the retrieval baseline.
func (e *Engine) baseFallback(r *rand.Rand, idx *IndexSet, gc *types.GenerationContext, analysis types.MLAnalysis, strategy string) types.Response {
	e.metrics.ObserveFallback(strategy)
	reply, err := idx.Corpus.Reply(r, corpus.ReplyRequest{Persona: gc.Persona, Message: gc.Message, History: gc.History, Mood: gc.Mood})
	if err != nil {
		reply = idx.Corpus.NoDataReply(gc.Persona)
	}
	c := types.NewCandidate(reply.Text, strategy, clamp01(reply.Similarity))
	e.ring.Push(reply.Text)
	e.remember(gc, c, nil, selector.Context{})
	e.metrics.ObserveReply(strategy)
	return types.Response{
		Text:       reply.Text,
		Persona:    gc.Persona,
		Strategy:   strategy,
		Mood:       gc.Mood,
		Topic:      gc.Topic,
		Confidence: round4(c.Confidence),
		Metadata: map[string]any{
			"request_id": uuid.NewString(),
			"scenario":   reply.Scenario,
		},
		MLAnalysis: analysis,
	}
}

func (e *Engine) remember(gc *types.GenerationContext, chosen types.Candidate, cands []selector.Candidate, ctx selector.Context) {
	sel := &selection{
		Strategy:   chosen.Source,
		Persona:    gc.Persona,
		Mood:       gc.Mood,
		Topic:      gc.Topic,
		UserID:     gc.UserID,
		Text:       chosen.Text,
		Candidates: cands,
		Chosen:     -1,
		Context:    ctx,
	}
	if styles, ok := chosen.Metadata["style"].(map[string]string); ok {
		sel.Styles = styles
	}
	for i, c := range cands {
		if c.Source == chosen.Source {
			sel.Chosen = i
			break
		}
	}
	e.lastMu.Lock()
	e.last = sel
	e.lastMu.Unlock()
}

// RecordFeedback applies an engagement reward in [0,1]. An empty strategy
// or user id falls back to the last reply's.
func (e *Engine) RecordFeedback(ctx context.Context, reward float64, strategy, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if math.IsNaN(reward) {
		return fmt.Errorf("reward must be a number")
	}
	reward = clamp01(reward)

	e.lastMu.Lock()
	last := e.last
	e.lastMu.Unlock()

	if strategy == "" && last != nil {
		strategy = last.Strategy
	}
	if strategy != "" {
		if _, known := e.bandit.State(strategy); known {
			features := map[string]string{}
			if last != nil && last.Strategy == strategy {
				features = map[string]string{"mood": last.Mood, "topic": last.Topic}
			}
			if err := e.bandit.UpdateWithContext(strategy, reward, features); err != nil {
				return fmt.Errorf("failed to update bandit: %w", err)
			}
		} else {
			slog.Debug("feedback for non-bandit strategy", "strategy", strategy)
		}
		e.selector.UpdateStrategyWeight(strategy, reward)
	}

	uid := userID
	if uid == "" && last != nil {
		uid = last.UserID
	}
	if uid != "" && last != nil {
		styles := last.Styles
		if len(styles) == 0 && last.Text != "" {
			styles = stylecf.Classify(last.Text)
		}
		e.styles.Update(uid, styles, reward)
	}

	if last != nil && reward >= 0.5 && last.Chosen >= 0 && len(last.Candidates) > 1 {
		e.learn(selector.Sample{Candidates: last.Candidates, Chosen: last.Chosen, Context: last.Context})
	}
	e.metrics.ObserveFeedback(strategy, reward)
	return nil
}

// learn buffers a positively rewarded selection and retrains the selector
// every trainEvery samples.
func (e *Engine) learn(sample selector.Sample) {
	e.lastMu.Lock()
	e.training = append(e.training, sample)
	if len(e.training) > maxTrainSamples {
		e.training = e.training[len(e.training)-maxTrainSamples:]
	}
	e.pending++
	if e.pending < trainEvery {
		e.lastMu.Unlock()
		return
	}
	e.pending = 0
	samples := append([]selector.Sample(nil), e.training...)
	e.lastMu.Unlock()

	if err := e.selector.Train(samples); err != nil {
		slog.Warn("selector retrain incomplete", "samples", len(samples), "error", err)
		return
	}
	slog.Info("selector retrained", "samples", len(samples))
}

// ResetBandit resets one arm, or every arm and context table when arm is
// empty.
func (e *Engine) ResetBandit(arm string) {
	e.bandit.Reset(arm)
	if arm == "" {
		e.bandit.ResetContexts()
	}
}

// ResetDialogue clears a persona's dialogue state.
func (e *Engine) ResetDialogue(persona string) {
	e.dialogue.Reset(persona)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
