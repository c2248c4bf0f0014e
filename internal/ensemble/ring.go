package ensemble

import (
	"sync"

	"github.com/easeaico/persona-engine/internal/utils"
)

// DefaultRingSize is how many recent outputs feed diversity scoring.
const DefaultRingSize = 10

// Ring is a fixed-size history of emitted replies.
type Ring struct {
	mu    sync.RWMutex
	items []string
	size  int
}

// NewRing returns an empty ring holding at most size texts.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{size: size}
}

// Push appends text, dropping the oldest entry when full.
func (r *Ring) Push(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, text)
	if len(r.items) > r.size {
		r.items = r.items[len(r.items)-r.size:]
	}
}

// Len returns the number of stored texts.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Items returns stored texts, oldest first.
func (r *Ring) Items() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.items...)
}

// Diversity is 1 minus the highest Jaccard word overlap between text and any
// stored output. An empty ring scores 1.
func (r *Ring) Diversity(text string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		return 1
	}
	words := utils.WordSet(text)
	overlap := 0.0
	for _, prev := range r.items {
		overlap = max(overlap, utils.JaccardSets(words, utils.WordSet(prev)))
	}
	return 1 - overlap
}
