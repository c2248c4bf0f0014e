package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Reloader is what a Watcher triggers.
type Reloader interface {
	Reload(ctx context.Context) (ReloadReport, error)
}

// Watcher reloads the engine when a source file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   Reloader
	files    map[string]struct{}
	dirs     map[string]struct{}
	debounce time.Duration
}

// NewWatcher watches every source path. Directories are watched whole;
// files are watched through their parent directory so that editors which
// replace files are still seen.
func NewWatcher(src Sources, target Reloader, debounce time.Duration) (*Watcher, error) {
	if target == nil {
		return nil, fmt.Errorf("reload target not configured")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		target:   target,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		debounce: debounce,
	}
	watched := make(map[string]struct{})
	for _, p := range src.Paths() {
		p = filepath.Clean(p)
		dir := filepath.Dir(p)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			w.dirs[p] = struct{}{}
			dir = p
		} else {
			w.files[p] = struct{}{}
		}
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := fw.Add(dir); err != nil {
			slog.Warn("cannot watch source directory", "dir", dir, "error", err)
			continue
		}
		watched[dir] = struct{}{}
	}
	if len(watched) == 0 {
		_ = fw.Close()
		return nil, fmt.Errorf("no source directory could be watched")
	}
	return w, nil
}

// Relevant reports whether an event path belongs to a source.
func (w *Watcher) Relevant(name string) bool {
	name = filepath.Clean(name)
	if _, ok := w.files[name]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(name)]
	return ok
}

// Run reloads after each quiet period following a relevant change and
// returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || !w.Relevant(event.Name) {
				continue
			}
			slog.Debug("source changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		case <-timer.C:
			if _, err := w.target.Reload(ctx); err != nil {
				slog.Warn("watched reload failed", "error", err)
			}
		}
	}
}
