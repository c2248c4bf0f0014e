// Package ensemble runs every registered generation strategy against a
// request and picks one of the resulting candidates.
package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// Selection methods.
const (
	MethodBest           = "best"
	MethodWeightedRandom = "weighted_random"
	MethodThompson       = "thompson"
)

const (
	// DefaultTimeout bounds a single strategy call.
	DefaultTimeout = 250 * time.Millisecond
	// DefaultConfidence is used for results whose confidence is unknown.
	DefaultConfidence = 0.5

	selectionFloor = 0.05
	diversityBonus = 0.2
)

// Strategy outcomes reported to a Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// Result is what a strategy produces. Confidence is used as given, clamped to
// [0,1], so zero means no confidence. A strategy without an estimate returns
// DefaultConfidence; NaN is read the same way.
type Result struct {
	Text       string
	Confidence float64
	Metadata   map[string]any
}

// Strategy generates one reply for a request. Implementations must treat gc
// as read-only and use only r for randomness.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) (Result, error)
}

// Arms supplies per-strategy weights and Thompson draws.
type Arms interface {
	Weight(arm string) float64
	SelectArm(r *rand.Rand) string
	Update(arm string, reward float64) error
	AddArm(name string)
}

// Recorder observes strategy outcomes.
type Recorder interface {
	ObserveStrategy(name, outcome string, elapsed time.Duration)
}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithTimeout sets the per-strategy timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Ensemble) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRecorder installs an outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(e *Ensemble) { e.recorder = rec }
}

// Ensemble is an ordered set of strategies sharing one bandit and one
// diversity ring. The strategy list is fixed at construction.
type Ensemble struct {
	strategies []Strategy
	arms       Arms
	recent     *Ring
	timeout    time.Duration
	recorder   Recorder
}

// New registers strategies in order and adds any missing bandit arms.
func New(strategies []Strategy, arms Arms, recent *Ring, opts ...Option) *Ensemble {
	if recent == nil {
		recent = NewRing(DefaultRingSize)
	}
	e := &Ensemble{
		strategies: append([]Strategy(nil), strategies...),
		arms:       arms,
		recent:     recent,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if arms != nil {
		for _, s := range e.strategies {
			arms.AddArm(s.Name())
		}
	}
	return e
}

// Names returns strategy names in registration order.
func (e *Ensemble) Names() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Ring returns the diversity history.
func (e *Ensemble) Ring() *Ring {
	return e.recent
}

type outcome struct {
	res Result
	err error
	tag string
}

// GenerateCandidates runs every strategy concurrently, each under its own
// timeout. A strategy that fails, panics, times out or returns empty text
// contributes nothing; the others are unaffected. Candidates keep
// registration order and carry the strategy's current bandit weight.
func (e *Ensemble) GenerateCandidates(ctx context.Context, r *rand.Rand, gc *types.GenerationContext) []types.Candidate {
	// Seeds are drawn up front so results do not depend on scheduling.
	rngs := make([]*rand.Rand, len(e.strategies))
	for i := range e.strategies {
		rngs[i] = rand.New(rand.NewPCG(r.Uint64(), r.Uint64()))
	}

	results := make([]*types.Candidate, len(e.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.strategies {
		g.Go(func() error {
			start := time.Now()
			out := e.run(gctx, s, rngs[i], gc)
			e.observe(s.Name(), out.tag, time.Since(start))
			if out.err != nil {
				slog.Warn("strategy failed", "strategy", s.Name(), "outcome", out.tag, "error", out.err)
				return nil
			}
			if out.res.Text == "" {
				return nil
			}
			conf := out.res.Confidence
			if math.IsNaN(conf) {
				conf = DefaultConfidence
			}
			conf = min(1, max(0, conf))
			c := types.NewCandidate(out.res.Text, s.Name(), conf)
			c.Weight = e.weight(s.Name())
			for k, v := range out.res.Metadata {
				c.Metadata[k] = v
			}
			results[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]types.Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

func (e *Ensemble) run(ctx context.Context, s Strategy, r *rand.Rand, gc *types.GenerationContext) outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("strategy %s panicked: %v", s.Name(), p), tag: OutcomePanic}
			}
		}()
		res, err := s.Generate(ctx, r, gc)
		switch {
		case err != nil:
			done <- outcome{err: err, tag: OutcomeError}
		case res.Text == "":
			done <- outcome{tag: OutcomeEmpty}
		default:
			done <- outcome{res: res, tag: OutcomeOK}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return outcome{err: ctx.Err(), tag: OutcomeTimeout}
	}
}

func (e *Ensemble) observe(name, tag string, elapsed time.Duration) {
	if e.recorder != nil {
		e.recorder.ObserveStrategy(name, tag, elapsed)
	}
}

func (e *Ensemble) weight(name string) float64 {
	if e.arms == nil {
		return 1
	}
	return e.arms.Weight(name)
}

// Score applies optional CF and context scores by position, then multiplies
// each context score by 1 + 0.2·diversity against recent outputs.
func (e *Ensemble) Score(candidates []types.Candidate, cfScores, contextScores []float64) {
	for i := range candidates {
		if i < len(cfScores) {
			candidates[i].CFScore = cfScores[i]
		}
		if i < len(contextScores) {
			candidates[i].ContextScore = contextScores[i]
		}
		candidates[i].ContextScore *= 1 + diversityBonus*e.recent.Diversity(candidates[i].Text)
	}
}

// Select picks a candidate. Unknown methods return the first candidate.
func (e *Ensemble) Select(r *rand.Rand, candidates []types.Candidate, method string) (types.Candidate, bool) {
	if len(candidates) == 0 {
		return types.Candidate{}, false
	}
	switch method {
	case MethodBest:
		best := 0
		for i, c := range candidates {
			if c.FinalScore() > candidates[best].FinalScore() {
				best = i
			}
		}
		return candidates[best], true
	case MethodWeightedRandom:
		return candidates[weightedIndex(r, candidates)], true
	case MethodThompson:
		if e.arms != nil {
			arm := e.arms.SelectArm(r)
			for _, c := range candidates {
				if c.Source == arm {
					return c, true
				}
			}
		}
		return candidates[weightedIndex(r, candidates)], true
	default:
		return candidates[0], true
	}
}

func weightedIndex(r *rand.Rand, candidates []types.Candidate) int {
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = c.FinalScore()
	}
	return utils.WeightedIndex(r, weights, selectionFloor)
}

// TrackOutput records an emitted reply for diversity scoring.
func (e *Ensemble) TrackOutput(text string) {
	e.recent.Push(text)
}

// RecordFeedback forwards a reward to the bandit.
func (e *Ensemble) RecordFeedback(strategy string, reward float64) error {
	if e.arms == nil {
		return fmt.Errorf("ensemble bandit not configured")
	}
	if err := e.arms.Update(strategy, reward); err != nil {
		return fmt.Errorf("failed to record feedback for %s: %w", strategy, err)
	}
	return nil
}

// Stats is a reporting view of the ensemble.
type Stats struct {
	Strategies   []string           `json:"strategies"`
	Weights      map[string]float64 `json:"bandit_weights"`
	RecentOutput int                `json:"recent_outputs_count"`
}

// Stats reports strategies, their weights and the diversity ring size.
func (e *Ensemble) Stats() Stats {
	st := Stats{Strategies: e.Names(), Weights: make(map[string]float64, len(e.strategies))}
	for _, name := range st.Strategies {
		st.Weights[name] = e.weight(name)
	}
	st.RecentOutput = e.recent.Len()
	return st
}
