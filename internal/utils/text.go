// Package utils holds text helpers shared by the statistical engines.
package utils

import (
	"math/rand/v2"
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Words lowercases text, trims surrounding punctuation from each token and
// keeps tokens longer than one character.
func Words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if len([]rune(w)) > 1 {
			out = append(out, w)
		}
	}
	return out
}

// WordSet returns the set of lowercased whitespace tokens.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard is the word-overlap ratio of two texts. Empty inputs score 0.
func Jaccard(a, b string) float64 {
	return JaccardSets(WordSet(a), WordSet(b))
}

// JaccardSets is Jaccard over precomputed sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// WeightedIndex draws an index with probability proportional to weights, each
// raised to at least floor. It returns -1 for an empty slice.
func WeightedIndex(r *rand.Rand, weights []float64, floor float64) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		total += max(floor, w)
	}
	if total <= 0 {
		return r.IntN(len(weights))
	}
	target := r.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += max(floor, w)
		if target <= cumulative {
			return i
		}
	}
	return len(weights) - 1
}

// Choice returns a random element, or the zero value when items is empty.
func Choice[T any](r *rand.Rand, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[r.IntN(len(items))]
}

// ContainsAny reports whether lowered text contains any of the needles.
func ContainsAny(lower string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// CountContained counts needles that occur in lowered text.
func CountContained(lower string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			n++
		}
	}
	return n
}

// TitleFirstToken returns the first whitespace token with its first letter
// upper-cased and the rest lower-cased.
func TitleFirstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	runes := []rune(strings.ToLower(fields[0]))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Normalize scales values in place so they sum to 1. A zero sum leaves them untouched.
func Normalize(values []float64) {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
