// Package bandit implements Thompson sampling over Beta-distributed arms.
//
// Rewards are continuous in [0,1]. A reward of at least 0.5 adds the reward to
// alpha; anything lower adds (1 - reward) to beta. This is intentionally not the
// textbook Beta-Bernoulli update and callers depend on its convergence speed.
package bandit

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknownArm is returned when an update names an arm that is not registered.
var ErrUnknownArm = errors.New("unknown bandit arm")

// ArmState is the Beta posterior for one arm.
type ArmState struct {
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
	Selections int     `json:"selections"`
}

// Mean is alpha/(alpha+beta).
func (a ArmState) Mean() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// Variance of the Beta posterior.
func (a ArmState) Variance() float64 {
	sum := a.Alpha + a.Beta
	return (a.Alpha * a.Beta) / (sum * sum * (sum + 1))
}

// ArmStats is a reporting view of an arm.
type ArmStats struct {
	Alpha             float64 `json:"alpha"`
	Beta              float64 `json:"beta"`
	Weight            float64 `json:"weight"`
	Variance          float64 `json:"variance"`
	Selections        int     `json:"selections"`
	TotalObservations float64 `json:"total_observations"`
}

// Bandit is a Thompson sampling bandit safe for concurrent use.
type Bandit struct {
	mu         sync.RWMutex
	names      []string
	arms       map[string]*ArmState
	priorAlpha float64
	priorBeta  float64
}

// New returns a bandit with uniform Beta(1,1) priors.
func New(names []string) *Bandit {
	return NewWithPrior(names, 1, 1)
}

// NewWithPrior returns a bandit with the given prior for every arm.
func NewWithPrior(names []string, alpha, beta float64) *Bandit {
	b := &Bandit{
		arms:       make(map[string]*ArmState, len(names)),
		priorAlpha: alpha,
		priorBeta:  beta,
	}
	for _, name := range names {
		b.addArmLocked(name, alpha, beta)
	}
	return b
}

// Arms returns arm names in registration order.
func (b *Bandit) Arms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.names)
}

// SelectArm draws one Beta sample per arm and returns the arg-max. It returns
// "" when no arms are registered.
func (b *Bandit) SelectArm(r *rand.Rand) string {
	arm, _ := b.SelectArmWithScores(r)
	return arm
}

// SelectArmWithScores is SelectArm that also returns every sampled score.
func (b *Bandit) SelectArmWithScores(r *rand.Rand) (string, map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	scores := make(map[string]float64, len(b.names))
	selected := ""
	best := -1.0
	for _, name := range b.names {
		arm := b.arms[name]
		sample := sampleBeta(r, arm.Alpha, arm.Beta)
		scores[name] = sample
		if sample > best {
			best = sample
			selected = name
		}
	}
	if selected != "" {
		b.arms[selected].Selections++
	}
	return selected, scores
}

// Update applies a reward to an arm. Rewards are clamped to [0,1].
func (b *Bandit) Update(arm string, reward float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.arms[arm]
	if !ok {
		return ErrUnknownArm
	}
	applyReward(state, reward)
	return nil
}

func applyReward(state *ArmState, reward float64) {
	reward = max(0, min(1, reward))
	if reward >= 0.5 {
		state.Alpha += reward
	} else {
		state.Beta += 1 - reward
	}
}

// Weight returns the posterior mean of an arm, or 0.5 for an unknown arm.
func (b *Bandit) Weight(arm string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.arms[arm]
	if !ok {
		return 0.5
	}
	return state.Mean()
}

// Weights returns the posterior mean of every arm.
func (b *Bandit) Weights() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]float64, len(b.arms))
	for name, state := range b.arms {
		out[name] = state.Mean()
	}
	return out
}

// Stats returns a reporting view of every arm.
func (b *Bandit) Stats() map[string]ArmStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]ArmStats, len(b.arms))
	for name, state := range b.arms {
		out[name] = ArmStats{
			Alpha:             state.Alpha,
			Beta:              state.Beta,
			Weight:            state.Mean(),
			Variance:          state.Variance(),
			Selections:        state.Selections,
			TotalObservations: state.Alpha + state.Beta - 2,
		}
	}
	return out
}

// Reset restores one arm, or every arm when name is empty, to Beta(1,1).
func (b *Bandit) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name != "" {
		if _, ok := b.arms[name]; ok {
			b.arms[name] = &ArmState{Alpha: 1, Beta: 1}
		}
		return
	}
	for _, n := range b.names {
		b.arms[n] = &ArmState{Alpha: 1, Beta: 1}
	}
}

// AddArm registers an arm with the bandit prior. Existing arms are untouched.
func (b *Bandit) AddArm(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addArmLocked(name, b.priorAlpha, b.priorBeta)
}

func (b *Bandit) addArmLocked(name string, alpha, beta float64) {
	if _, ok := b.arms[name]; ok {
		return
	}
	b.names = append(b.names, name)
	b.arms[name] = &ArmState{Alpha: alpha, Beta: beta}
}

// RemoveArm drops an arm and its posterior.
func (b *Bandit) RemoveArm(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.arms[name]; !ok {
		return
	}
	delete(b.arms, name)
	b.names = slices.DeleteFunc(b.names, func(n string) bool { return n == name })
}

// State returns a copy of one arm's posterior.
func (b *Bandit) State(name string) (ArmState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.arms[name]
	if !ok {
		return ArmState{}, false
	}
	return *state, true
}

func sampleBeta(r *rand.Rand, alpha, beta float64) float64 {
	return distuv.Beta{Alpha: alpha, Beta: beta, Src: r}.Rand()
}
