package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kiln-data/shopfunnel/internal/core/storage"
)

// Runner executes pipeline runs on a periodic interval. It is
// stateless between ticks: every run re-derives its work from the
// stores' incremental guards.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
}

// NewRunner creates a runner ticking at the given interval.
func NewRunner(pipeline *Pipeline, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{pipeline: pipeline, interval: interval}
}

// Start runs the pipeline immediately, then on every tick, until the
// context is cancelled. Integrity violations stop the runner: the data
// needs operator attention and retrying would only repeat the failure.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("[Runner] Starting pipeline runner", "interval", r.interval)

	if err := r.runOnce(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			slog.Info("[Runner] Stopping (context cancelled)")
			return nil
		}
	}
}

// runOnce executes a single run. Transient failures are logged and
// retried on the next tick; only integrity violations propagate.
func (r *Runner) runOnce(ctx context.Context) error {
	if _, err := r.pipeline.Run(ctx); err != nil {
		if errors.Is(err, storage.ErrIntegrity) {
			slog.Error("[Runner] Integrity violation, stopping", "error", err)
			return err
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		slog.Error("[Runner] Run failed, will retry on next tick", "error", err)
	}
	return nil
}
