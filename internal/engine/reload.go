package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/persona-engine/internal/bandit"
	"github.com/easeaico/persona-engine/internal/ensemble"
	"github.com/easeaico/persona-engine/internal/stylecf"
)

// Reload rebuilds every index from the configured sources and swaps it in.
// Requests in flight keep the set they started with. On failure the live
// set stays in place.
func (e *Engine) Reload(ctx context.Context) (ReloadReport, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return ReloadReport{}, err
	}
	set, err := BuildIndexSet(e.opts.Sources)
	if err != nil {
		e.metrics.ObserveReload(err, 0, 0)
		slog.Error("reload failed, keeping current indices", "error", err)
		return ReloadReport{}, fmt.Errorf("failed to reload indices: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ReloadReport{}, err
	}
	e.install(set)
	slog.Info("indices reloaded",
		"samples", set.Report.Samples,
		"personas", set.Report.Personas,
		"missing", len(set.Report.Missing),
		"skipped_rows", set.Report.SkippedRows,
		"duration", set.Report.Duration)
	return set.Report, nil
}

// Stats is a reporting view of the whole engine.
type Stats struct {
	Ready          bool                       `json:"ready"`
	Corpus         ReloadReport               `json:"corpus"`
	Bandit         map[string]bandit.ArmStats `json:"bandit_stats"`
	BanditContexts int                        `json:"bandit_contexts"`
	Ensemble       ensemble.Stats             `json:"ensemble"`
	CF             stylecf.Stats              `json:"collaborative_filtering"`
	Dialogues      int                        `json:"active_dialogues"`
	Selector       map[string]float64         `json:"selector_importance"`
	Components     map[string]any             `json:"components"`
}

// Stats gathers the current learner and index state.
func (e *Engine) Stats() Stats {
	st := Stats{
		Bandit:         e.bandit.Stats(),
		BanditContexts: e.bandit.ContextCount(),
		CF:             e.styles.Stats(),
		Dialogues:      e.dialogue.Len(),
		Selector:       e.selector.FeatureImportance(),
		Components:     map[string]any{},
	}
	g := e.live.Load()
	if g == nil {
		return st
	}
	idx := g.indices
	st.Ready = true
	st.Corpus = idx.Report
	st.Ensemble = g.ensemble.Stats()
	st.Components["bm25_personas"] = idx.BM25.Personas()
	st.Components["ngram_models"] = idx.Ngram.Len()
	st.Components["keyword_personas"] = idx.Keywords.Personas()
	st.Components["intent_trained"] = idx.Intent.Trained()
	st.Components["mood_trained"] = idx.Mood.Trained()
	st.Components["scenarios"] = idx.Templates.Scenarios()
	st.Components["selection_method"] = e.opts.SelectionMethod
	return st
}
