package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("CORPUS_FILES", "")
	t.Setenv("SELECTION_METHOD", "")
	t.Setenv("STRATEGY_TIMEOUT", "")

	cfg := Load()
	if cfg.DataDir != "data" {
		t.Fatalf("expected data dir default, got %q", cfg.DataDir)
	}
	if cfg.PersonasFile != filepath.Join("data", "personas.json") {
		t.Fatalf("unexpected personas file: %s", cfg.PersonasFile)
	}
	if len(cfg.CorpusFiles) != 1 || cfg.CorpusFiles[0] != filepath.Join("data", "training") {
		t.Fatalf("unexpected corpus files: %v", cfg.CorpusFiles)
	}
	if cfg.SelectionMethod != "weighted_random" {
		t.Fatalf("expected weighted_random, got %s", cfg.SelectionMethod)
	}
	if cfg.StrategyTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected strategy timeout: %v", cfg.StrategyTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CORPUS_FILES", "a.jsonl, b.jsonl ,")
	t.Setenv("CF_WEIGHT", "0.4")
	t.Setenv("WATCH_CORPUS", "true")
	t.Setenv("STRATEGY_TIMEOUT", "1s")
	t.Setenv("SELECTION_METHOD", "Thompson")

	cfg := Load()
	if len(cfg.CorpusFiles) != 2 || cfg.CorpusFiles[1] != "b.jsonl" {
		t.Fatalf("unexpected corpus files: %v", cfg.CorpusFiles)
	}
	if cfg.CFWeight != 0.4 || !cfg.WatchCorpus || cfg.StrategyTimeout != time.Second {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if cfg.SelectionMethod != "thompson" {
		t.Fatalf("expected lowercased method, got %s", cfg.SelectionMethod)
	}
}

func TestValidateRejectsBadMethod(t *testing.T) {
	cfg := Load()
	cfg.SelectionMethod = "argmax"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for invalid selection method")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Fatalf("level %q: got %v, want %v", in, got, want)
		}
	}
}
