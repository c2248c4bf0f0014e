package selector

import (
	"errors"
	"fmt"
)

type member struct {
	name     string
	selector *Selector
	weight   float64
}

// Ensemble blends three selectors by confidence-weighted vote.
type Ensemble struct {
	members []member
}

// NewEnsemble returns a deep tree (0.2), a logistic model (0.5) and a
// shallow tree (0.3).
func NewEnsemble() *Ensemble {
	return &Ensemble{members: []member{
		{name: "decision_tree", selector: New(NewDecisionTree(8)), weight: 0.2},
		{name: "logistic", selector: New(NewLogisticRegression()), weight: 0.5},
		{name: "shallow_tree", selector: New(NewDecisionTree(3)), weight: 0.3},
	}}
}

// Train fits every member. Member errors are joined.
func (e *Ensemble) Train(samples []Sample) error {
	var errs []error
	for _, m := range e.members {
		if err := m.selector.Train(samples); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		}
	}
	return errors.Join(errs...)
}

// Select lets each member vote weight × confidence for its pick. The
// result's confidence is the winning vote over the total weight.
func (e *Ensemble) Select(candidates []Candidate, ctx Context) Result {
	if len(candidates) == 0 {
		return Result{Importance: map[string]float64{}}
	}
	votes := make([]float64, len(candidates))
	for _, m := range e.members {
		r := m.selector.Select(candidates, ctx)
		votes[r.Index] += m.weight * r.Confidence
	}
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return Result{Index: best, Confidence: votes[best] / e.totalWeight(), Importance: e.FeatureImportance()}
}

// Scores is the blend-weighted mean of member scores per candidate.
func (e *Ensemble) Scores(candidates []Candidate, ctx Context) []float64 {
	out := make([]float64, len(candidates))
	total := e.totalWeight()
	for _, m := range e.members {
		for i, v := range m.selector.Scores(candidates, ctx) {
			out[i] += v * m.weight / total
		}
	}
	return out
}

// FeatureImportance aggregates member importances proportionally to blend
// weight.
func (e *Ensemble) FeatureImportance() map[string]float64 {
	total := e.totalWeight()
	out := map[string]float64{}
	for _, m := range e.members {
		for feat, imp := range m.selector.FeatureImportance() {
			out[feat] += imp * m.weight / total
		}
	}
	return out
}

// UpdateStrategyWeight forwards to every member.
func (e *Ensemble) UpdateStrategyWeight(strategy string, reward float64) {
	for _, m := range e.members {
		m.selector.UpdateStrategyWeight(strategy, reward)
	}
}

func (e *Ensemble) totalWeight() float64 {
	total := 0.0
	for _, m := range e.members {
		total += m.weight
	}
	return total
}
