package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct{ n atomic.Int32 }

func (c *countingReloader) Reload(ctx context.Context) (ReloadReport, error) {
	c.n.Add(1)
	return ReloadReport{}, nil
}

func TestWatcherRelevant(t *testing.T) {
	dir := t.TempDir()
	training := filepath.Join(dir, "training")
	require.NoError(t, os.Mkdir(training, 0o755))
	src := Sources{PersonasFile: filepath.Join(dir, "personas.yaml"), CorpusFiles: []string{training}}

	w, err := NewWatcher(src, &countingReloader{}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	assert.Equal(t, DefaultDebounce, w.debounce)
	assert.True(t, w.Relevant(filepath.Join(dir, "personas.yaml")))
	assert.True(t, w.Relevant(filepath.Join(training, "new.jsonl")))
	assert.False(t, w.Relevant(filepath.Join(dir, "notes.txt")))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	src := testSources(t)
	target := &countingReloader{}
	w, err := NewWatcher(src, target, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeCorpus(t, src.CorpusFiles[0], corpusRows[:2])
	writeCorpus(t, src.CorpusFiles[0], corpusRows[:4])

	assert.Eventually(t, func() bool { return target.n.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWatcherRequiresTarget(t *testing.T) {
	_, err := NewWatcher(Sources{}, nil, 0)
	assert.Error(t, err)
	_, err = NewWatcher(Sources{PersonasFile: "/nonexistent/dir/p.yaml"}, &countingReloader{}, 0)
	assert.Error(t, err)
}
