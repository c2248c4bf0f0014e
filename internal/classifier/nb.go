// Package classifier labels user messages with an intent and a mood.
package classifier

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Model is a trainable text classifier.
type Model interface {
	Train(texts, labels []string) error
	// Predict returns class probabilities summing to 1, or nil if untrained.
	Predict(text string) map[string]float64
	Trained() bool
}

var featurePattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Features are lowercase unigrams and bigrams.
func Features(text string) []string {
	words := featurePattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

// NaiveBayes is a multinomial naive Bayes model with additive smoothing.
// It is immutable after Train returns.
type NaiveBayes struct {
	alpha float64

	classes    []string
	logPrior   map[string]float64
	counts     map[string]map[string]float64
	totals     map[string]float64
	vocabulary map[string]struct{}
}

// NewNaiveBayes returns an untrained model.
func NewNaiveBayes(alpha float64) *NaiveBayes {
	if alpha <= 0 {
		alpha = 0.1
	}
	return &NaiveBayes{alpha: alpha}
}

// Train fits the model. It replaces any earlier fit.
func (nb *NaiveBayes) Train(texts, labels []string) error {
	if len(texts) != len(labels) {
		return errors.New("texts and labels differ in length")
	}
	if len(texts) == 0 {
		return errors.New("no training texts")
	}

	docs := make(map[string]int)
	counts := make(map[string]map[string]float64)
	totals := make(map[string]float64)
	vocab := make(map[string]struct{})
	for i, text := range texts {
		label := labels[i]
		docs[label]++
		if counts[label] == nil {
			counts[label] = make(map[string]float64)
		}
		for _, f := range Features(text) {
			counts[label][f]++
			totals[label]++
			vocab[f] = struct{}{}
		}
	}

	classes := make([]string, 0, len(docs))
	for c := range docs {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	logPrior := make(map[string]float64, len(classes))
	for _, c := range classes {
		logPrior[c] = math.Log(float64(docs[c]) / float64(len(texts)))
	}

	nb.classes = classes
	nb.logPrior = logPrior
	nb.counts = counts
	nb.totals = totals
	nb.vocabulary = vocab
	return nil
}

// Trained reports whether Train succeeded.
func (nb *NaiveBayes) Trained() bool {
	return len(nb.classes) > 0
}

// Classes returns the labels seen in training, sorted.
func (nb *NaiveBayes) Classes() []string {
	return append([]string(nil), nb.classes...)
}

// Predict returns posterior class probabilities. Features never seen in
// training are ignored.
func (nb *NaiveBayes) Predict(text string) map[string]float64 {
	if !nb.Trained() {
		return nil
	}
	features := Features(text)
	v := float64(len(nb.vocabulary))
	scores := make([]float64, len(nb.classes))
	for i, c := range nb.classes {
		s := nb.logPrior[c]
		denom := nb.totals[c] + nb.alpha*v
		for _, f := range features {
			if _, ok := nb.vocabulary[f]; !ok {
				continue
			}
			s += math.Log((nb.counts[c][f] + nb.alpha) / denom)
		}
		scores[i] = s
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = max(maxScore, s)
	}
	sum := 0.0
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		sum += scores[i]
	}
	out := make(map[string]float64, len(nb.classes))
	for i, c := range nb.classes {
		out[c] = scores[i] / sum
	}
	return out
}

// argmax breaks ties by label order.
func argmax(probs map[string]float64) (string, float64) {
	labels := make([]string, 0, len(probs))
	for l := range probs {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	best, bestP := "", -1.0
	for _, l := range labels {
		if probs[l] > bestP {
			best, bestP = l, probs[l]
		}
	}
	return best, bestP
}

func reweight(probs map[string]float64, weights map[string]float64, fallback float64) map[string]float64 {
	out := make(map[string]float64, len(probs))
	total := 0.0
	for label, p := range probs {
		w, ok := weights[label]
		if !ok {
			w = fallback
		}
		out[label] = p * w
		total += out[label]
	}
	if total > 0 {
		for label := range out {
			out[label] /= total
		}
	}
	return out
}
