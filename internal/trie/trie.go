// Package trie is a byte-wise prefix tree used for keyword spotting.
package trie

import (
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Payload tags a keyword with the persona it signals.
type Payload struct {
	Persona string  `json:"persona"`
	Weight  float64 `json:"weight"`
}

// Entry is a stored word with its payloads.
type Entry struct {
	Word     string
	Payloads []Payload
}

// Match is a stored word found inside a text. Word is the stored form;
// text[Pos:End] is the occurrence in the caller's input.
type Match struct {
	Word     string
	Pos      int
	End      int
	Payloads []Payload
}

// Stats describes the tree.
type Stats struct {
	Words         int  `json:"word_count"`
	Nodes         int  `json:"node_count"`
	CaseSensitive bool `json:"case_sensitive"`
}

type node struct {
	children map[byte]*node
	end      bool
	count    int
	payloads []Payload
}

func newNode() *node {
	return &node{children: make(map[byte]*node)}
}

// Trie is safe for concurrent use.
type Trie struct {
	mu            sync.RWMutex
	root          *node
	words         int
	caseSensitive bool
}

// New returns a case-insensitive trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// NewCaseSensitive returns a trie that matches bytes exactly.
func NewCaseSensitive() *Trie {
	return &Trie{root: newNode(), caseSensitive: true}
}

func (t *Trie) normalize(s string) string {
	if t.caseSensitive {
		return s
	}
	out, _, _ := fold(s)
	return string(out)
}

// fold lowers s rune by rune. For every output byte, from and to hold the
// byte range of the input rune it came from. Invalid bytes pass through
// unchanged.
func fold(s string) (out []byte, from, to []int) {
	out = make([]byte, 0, len(s))
	from = make([]int, 0, len(s))
	to = make([]int, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			out = append(out, s[i])
		case r < utf8.RuneSelf:
			if 'A' <= r && r <= 'Z' {
				r += 'a' - 'A'
			}
			out = append(out, byte(r))
		default:
			out = utf8.AppendRune(out, unicode.ToLower(r))
		}
		for len(from) < len(out) {
			from = append(from, i)
			to = append(to, i+size)
		}
		i += size
	}
	return out, from, to
}

// view is the text the tree is walked over, with offsets back into the
// caller's input.
func (t *Trie) view(text string) (key []byte, from, to []int) {
	if t.caseSensitive {
		return []byte(text), nil, nil
	}
	return fold(text)
}

func span(from, to []int, i, j int) (int, int) {
	if from == nil {
		return i, j + 1
	}
	return from[i], to[j]
}

// Insert adds word. A payload replaces any earlier payload for the same
// persona on that word.
func (t *Trie) Insert(word string, payloads ...Payload) {
	word = t.normalize(word)
	if word == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for i := 0; i < len(word); i++ {
		child, ok := n.children[word[i]]
		if !ok {
			child = newNode()
			n.children[word[i]] = child
		}
		n = child
	}
	if !n.end {
		t.words++
	}
	n.end = true
	n.count++
	for _, p := range payloads {
		n.setPayload(p)
	}
}

func (n *node) setPayload(p Payload) {
	for i := range n.payloads {
		if n.payloads[i].Persona == p.Persona {
			n.payloads[i] = p
			return
		}
	}
	n.payloads = append(n.payloads, p)
}

func (t *Trie) find(prefix string) *node {
	n := t.root
	for i := 0; i < len(prefix); i++ {
		child, ok := n.children[prefix[i]]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// Search reports whether word was inserted.
func (t *Trie) Search(word string) bool {
	_, ok := t.Lookup(word)
	return ok
}

// Lookup returns the payloads stored on word.
func (t *Trie) Lookup(word string) ([]Payload, bool) {
	word = t.normalize(word)
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.find(word)
	if n == nil || !n.end {
		return nil, false
	}
	return append([]Payload(nil), n.payloads...), true
}

// Count is how many times word was inserted.
func (t *Trie) Count(word string) int {
	word = t.normalize(word)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n := t.find(word); n != nil && n.end {
		return n.count
	}
	return 0
}

// StartsWith reports whether any word has the prefix.
func (t *Trie) StartsWith(prefix string) bool {
	prefix = t.normalize(prefix)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.find(prefix) != nil
}

// PrefixScan returns up to limit words under prefix in byte order.
func (t *Trie) PrefixScan(prefix string, limit int) []Entry {
	prefix = t.normalize(prefix)
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.find(prefix)
	if n == nil || limit <= 0 {
		return nil
	}
	var out []Entry
	buf := []byte(prefix)
	collect(n, buf, limit, &out)
	return out
}

func collect(n *node, buf []byte, limit int, out *[]Entry) {
	if len(*out) >= limit {
		return
	}
	if n.end {
		*out = append(*out, Entry{Word: string(buf), Payloads: append([]Payload(nil), n.payloads...)})
	}
	keys := make([]byte, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if len(*out) >= limit {
			return
		}
		collect(n.children[k], append(buf, k), limit, out)
	}
}

// Autocomplete returns up to limit completions of prefix.
func (t *Trie) Autocomplete(prefix string, limit int) []string {
	entries := t.PrefixScan(prefix, limit)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Word
	}
	return out
}

// FindAllMatches returns every stored word occurring in text, including
// overlapping ones, ordered by start offset then length. Offsets refer to
// text as given, even where case folding changes byte lengths.
func (t *Trie) FindAllMatches(text string) []Match {
	key, from, to := t.view(text)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Match
	for i := 0; i < len(key); i++ {
		if from != nil && i > 0 && from[i] == from[i-1] {
			continue
		}
		n := t.root
		for j := i; j < len(key); j++ {
			child, ok := n.children[key[j]]
			if !ok {
				break
			}
			n = child
			if n.end && (to == nil || j+1 == len(key) || to[j] != to[j+1]) {
				pos, end := span(from, to, i, j)
				out = append(out, Match{
					Word:     string(key[i : j+1]),
					Pos:      pos,
					End:      end,
					Payloads: append([]Payload(nil), n.payloads...),
				})
			}
		}
	}
	return out
}

// LongestMatch returns the longest stored word beginning at byte offset start
// of text.
func (t *Trie) LongestMatch(text string, start int) (Match, bool) {
	if start < 0 || start >= len(text) {
		return Match{}, false
	}
	key, from, to := t.view(text)
	k := start
	if from != nil {
		k = sort.SearchInts(from, start)
		if k == len(from) || from[k] != start {
			return Match{}, false
		}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best Match
	found := false
	n := t.root
	for i := k; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			break
		}
		n = child
		if n.end && (to == nil || i+1 == len(key) || to[i] != to[i+1]) {
			pos, end := span(from, to, k, i)
			best = Match{Word: string(key[k : i+1]), Pos: pos, End: end, Payloads: append([]Payload(nil), n.payloads...)}
			found = true
		}
	}
	return best, found
}

// Delete removes word and prunes empty branches. It reports whether the word
// was present.
func (t *Trie) Delete(word string) bool {
	word = t.normalize(word)
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed bool
	var walk func(n *node, depth int) bool
	walk = func(n *node, depth int) bool {
		if depth == len(word) {
			if !n.end {
				return false
			}
			n.end = false
			n.count = 0
			n.payloads = nil
			removed = true
			return len(n.children) == 0
		}
		child, ok := n.children[word[depth]]
		if !ok {
			return false
		}
		if walk(child, depth+1) {
			delete(n.children, word[depth])
			return len(n.children) == 0 && !n.end
		}
		return false
	}
	walk(t.root, 0)
	if removed {
		t.words--
	}
	return removed
}

// Len is the number of distinct words.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.words
}

// Stats counts words and nodes.
func (t *Trie) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var count func(n *node) int
	count = func(n *node) int {
		total := 1
		for _, c := range n.children {
			total += count(c)
		}
		return total
	}
	return Stats{Words: t.words, Nodes: count(t.root), CaseSensitive: t.caseSensitive}
}
