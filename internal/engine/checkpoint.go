package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/easeaico/persona-engine/internal/bandit"
	"github.com/easeaico/persona-engine/internal/dialogue"
	"github.com/easeaico/persona-engine/internal/stylecf"
)

// Stores are the optional persistence backends for learned state. A nil
// member is skipped.
type Stores struct {
	Bandit   bandit.Checkpointer
	Dialogue dialogue.StateRepo
	Styles   stylecf.Repo
}

func (s Stores) empty() bool {
	return s.Bandit == nil && s.Dialogue == nil && s.Styles == nil
}

// Checkpoint writes the bandit, dialogue states and style preferences to
// their stores. Failures are joined; one failing store does not stop the
// others.
func (e *Engine) Checkpoint(ctx context.Context) error {
	st := e.opts.Stores
	var errs []error
	if st.Bandit != nil {
		errs = append(errs, e.bandit.Save(ctx, st.Bandit, banditCheckpoint))
	}
	if st.Dialogue != nil {
		errs = append(errs, e.dialogue.Save(ctx, st.Dialogue))
	}
	if st.Styles != nil {
		errs = append(errs, e.styles.Save(ctx, st.Styles))
	}
	return errors.Join(errs...)
}

// Restore loads learned state from the configured stores.
func (e *Engine) Restore(ctx context.Context) error {
	st := e.opts.Stores
	var errs []error
	if st.Bandit != nil {
		errs = append(errs, e.bandit.Load(ctx, st.Bandit, banditCheckpoint))
	}
	if st.Dialogue != nil {
		errs = append(errs, e.dialogue.Load(ctx, st.Dialogue))
	}
	if st.Styles != nil {
		errs = append(errs, e.styles.Load(ctx, st.Styles))
	}
	return errors.Join(errs...)
}

// RunCheckpoints flushes learned state every interval until ctx is done,
// then once more on the way out.
func (e *Engine) RunCheckpoints(ctx context.Context, interval time.Duration) error {
	if e.opts.Stores.empty() {
		return fmt.Errorf("checkpoint stores not configured")
	}
	if interval <= 0 {
		return fmt.Errorf("checkpoint interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := e.Checkpoint(flushCtx)
			cancel()
			if err != nil {
				slog.Error("final checkpoint failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := e.Checkpoint(ctx); err != nil {
				slog.Warn("checkpoint failed", "error", err)
				continue
			}
			slog.Debug("checkpoint written")
		}
	}
}
