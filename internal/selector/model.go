package selector

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewSamples is returned when training data has fewer than two rows.
var ErrTooFewSamples = errors.New("selector needs at least two training rows")

// Classifier is a binary "was this candidate chosen" model over scaled
// feature rows.
type Classifier interface {
	Fit(x [][]float64, y []int) error
	// Proba returns P(chosen) for one row.
	Proba(row []float64) float64
	// Importances returns one non-negative weight per feature summing to 1,
	// or nil when the model has none.
	Importances() []float64
}

// Scaler standardizes columns to zero mean and unit variance.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes column statistics. Constant columns keep std 1.
func FitScaler(x [][]float64) *Scaler {
	if len(x) == 0 {
		return &Scaler{}
	}
	cols := len(x[0])
	s := &Scaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform returns a scaled copy of row.
func (s *Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if j < len(s.Mean) {
			out[j] = (v - s.Mean[j]) / s.Std[j]
		} else {
			out[j] = v
		}
	}
	return out
}

func balancedWeights(y []int) []float64 {
	pos := 0
	for _, v := range y {
		pos += v
	}
	neg := len(y) - pos
	w := make([]float64, len(y))
	for i, v := range y {
		switch {
		case v == 1 && pos > 0:
			w[i] = float64(len(y)) / (2 * float64(pos))
		case v == 0 && neg > 0:
			w[i] = float64(len(y)) / (2 * float64(neg))
		default:
			w[i] = 1
		}
	}
	return w
}

// LogisticRegression is an L2-regularized, class-balanced logistic model
// fitted by batch gradient descent.
type LogisticRegression struct {
	LearningRate float64
	Epochs       int
	L2           float64

	coef []float64
	bias float64
}

// NewLogisticRegression returns a model with default hyperparameters.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{LearningRate: 0.1, Epochs: 300, L2: 1e-3}
}

// Fit trains on x and y (0 or 1).
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if len(x) < 2 || len(x) != len(y) {
		return ErrTooFewSamples
	}
	cols := len(x[0])
	m.coef = make([]float64, cols)
	m.bias = 0
	weights := balancedWeights(y)
	norm := floats.Sum(weights)

	grad := make([]float64, cols)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gb := 0.0
		for i, row := range x {
			diff := (sigmoid(floats.Dot(m.coef, row)+m.bias) - float64(y[i])) * weights[i]
			floats.AddScaled(grad, diff, row)
			gb += diff
		}
		for j := range m.coef {
			m.coef[j] -= m.LearningRate * (grad[j]/norm + m.L2*m.coef[j])
		}
		m.bias -= m.LearningRate * gb / norm
	}
	return nil
}

// Proba returns the logistic output, or 0.5 before Fit.
func (m *LogisticRegression) Proba(row []float64) float64 {
	if m.coef == nil {
		return 0.5
	}
	return sigmoid(floats.Dot(m.coef, row) + m.bias)
}

// Importances are absolute coefficients normalized to sum 1.
func (m *LogisticRegression) Importances() []float64 {
	if m.coef == nil {
		return nil
	}
	out := make([]float64, len(m.coef))
	for j, c := range m.coef {
		out[j] = math.Abs(c)
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// DecisionTree is a class-balanced CART classifier using Gini impurity.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int

	root       *treeNode
	importance []float64
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
}

// NewDecisionTree returns a tree limited to maxDepth levels.
func NewDecisionTree(maxDepth int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 8
	}
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

// Fit grows the tree.
func (t *DecisionTree) Fit(x [][]float64, y []int) error {
	if len(x) < 2 || len(x) != len(y) {
		return ErrTooFewSamples
	}
	weights := balancedWeights(y)
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	t.importance = make([]float64, len(x[0]))
	t.root = t.grow(x, y, weights, idx, 0)
	if total := floats.Sum(t.importance); total > 0 {
		floats.Scale(1/total, t.importance)
	}
	return nil
}

func (t *DecisionTree) grow(x [][]float64, y []int, w []float64, idx []int, depth int) *treeNode {
	posW, totW := 0.0, 0.0
	for _, i := range idx {
		totW += w[i]
		if y[i] == 1 {
			posW += w[i]
		}
	}
	node := &treeNode{feature: -1, value: posW / totW}
	if depth >= t.MaxDepth || len(idx) < t.MinSamplesSplit || posW == 0 || posW == totW {
		return node
	}

	parent := gini(posW, totW)
	bestGain, bestFeature, bestThreshold := 0.0, -1, 0.0
	sorted := make([]int, len(idx))
	for f := range x[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })
		lPos, lTot := 0.0, 0.0
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			lTot += w[i]
			if y[i] == 1 {
				lPos += w[i]
			}
			cur, next := x[i][f], x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			rPos, rTot := posW-lPos, totW-lTot
			gain := parent - (lTot/totW)*gini(lPos, lTot) - (rTot/totW)*gini(rPos, rTot)
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, (cur+next)/2
			}
		}
	}
	if bestFeature < 0 {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.importance[bestFeature] += bestGain * totW
	node.feature = bestFeature
	node.threshold = bestThreshold
	node.left = t.grow(x, y, w, left, depth+1)
	node.right = t.grow(x, y, w, right, depth+1)
	return node
}

func gini(pos, total float64) float64 {
	if total == 0 {
		return 0
	}
	p := pos / total
	return 2 * p * (1 - p)
}

// Proba returns the weighted positive fraction of the row's leaf, or 0.5
// before Fit.
func (t *DecisionTree) Proba(row []float64) float64 {
	if t.root == nil {
		return 0.5
	}
	n := t.root
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// Importances are normalized weighted impurity decreases.
func (t *DecisionTree) Importances() []float64 {
	if t.importance == nil {
		return nil
	}
	return append([]float64(nil), t.importance...)
}
