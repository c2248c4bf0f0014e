package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/easeaico/persona-engine/internal/bm25"
	"github.com/easeaico/persona-engine/internal/classifier"
	"github.com/easeaico/persona-engine/internal/corpus"
	"github.com/easeaico/persona-engine/internal/ngram"
	"github.com/easeaico/persona-engine/internal/pmi"
	"github.com/easeaico/persona-engine/internal/template"
	"github.com/easeaico/persona-engine/internal/trie"
	"github.com/easeaico/persona-engine/internal/types"
)

// Sources names the files an index set is built from.
type Sources struct {
	PersonasFile  string
	CorpusFiles   []string
	TemplatesFile string
}

// Paths lists every configured path, for watching.
func (s Sources) Paths() []string {
	var out []string
	if s.PersonasFile != "" {
		out = append(out, s.PersonasFile)
	}
	out = append(out, s.CorpusFiles...)
	if s.TemplatesFile != "" {
		out = append(out, s.TemplatesFile)
	}
	return out
}

// ReloadReport describes a built index set.
type ReloadReport struct {
	Samples     int           `json:"samples"`
	Personas    int           `json:"personas"`
	Files       []string      `json:"files"`
	Missing     []string      `json:"missing,omitempty"`
	SkippedRows int           `json:"skipped_rows"`
	BuiltAt     time.Time     `json:"built_at"`
	Duration    time.Duration `json:"duration"`
}

// IndexSet holds every index derived from the corpus. It is never mutated
// after construction; a reload builds a new one.
type IndexSet struct {
	Corpus    *corpus.Store
	BM25      *bm25.PersonaIndex
	Ngram     *ngram.PersonaModels
	PMI       *pmi.PersonaModels
	Keywords  *trie.PersonaKeywordTrie
	Intent    *classifier.Intent
	Mood      *classifier.Mood
	Templates *template.Filler
	Report    ReloadReport
}

// BuildIndexSet reads every source and builds the indices. Missing corpus
// files are reported, not fatal; an unreadable personas or templates file is.
func BuildIndexSet(src Sources) (*IndexSet, error) {
	start := time.Now()

	personas, err := corpus.LoadPersonas(src.PersonasFile)
	if err != nil {
		return nil, err
	}
	samples, loadReport, err := corpus.LoadSamples(src.CorpusFiles, personas)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	filler, err := template.Load(src.TemplatesFile)
	if err != nil {
		return nil, err
	}

	set := NewIndexSet(samples, personas, filler)
	set.Report.Files = loadReport.Files
	set.Report.Missing = loadReport.Missing
	set.Report.SkippedRows = loadReport.SkippedRows
	set.Report.Duration = time.Since(start)
	return set, nil
}

// NewIndexSet builds the indices from samples already in memory. A nil
// filler uses the built-in templates.
func NewIndexSet(samples corpus.Samples, personas types.PersonaSet, filler *template.Filler) *IndexSet {
	if filler == nil {
		filler = template.New()
	}
	store := corpus.Build(samples, personas)

	keywords := trie.NewPersonaKeywordTrie()
	keywords.LearnFromSamples(samples)

	intent := classifier.NewIntent(nil)
	if err := intent.TrainSamples(samples); err != nil {
		slog.Warn("intent classifier untrained, using patterns", "error", err)
	}
	mood := classifier.NewMood(nil)
	if err := mood.TrainSamples(samples); err != nil {
		slog.Warn("mood classifier untrained, using patterns", "error", err)
	}

	return &IndexSet{
		Corpus:    store,
		BM25:      bm25.BuildPersonaIndex(samples),
		Ngram:     ngram.BuildPersonaModels(samples),
		PMI:       pmi.BuildPersonaModels(samples),
		Keywords:  keywords,
		Intent:    intent,
		Mood:      mood,
		Templates: filler,
		Report: ReloadReport{
			Samples:  store.SampleCount(),
			Personas: store.PersonaCount(),
			BuiltAt:  time.Now().UTC(),
		},
	}
}
