// Package pipeline runs the incremental medallion transformation: raw
// envelopes in, normalized events and item lines in the silver layer,
// sessionized facts and current-row dimensions in the gold layer. Every
// stage is idempotent against its own persisted state, so a run over
// already-processed input is a no-op.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiln-data/shopfunnel/internal/bronze"
	"github.com/kiln-data/shopfunnel/internal/core/params"
	"github.com/kiln-data/shopfunnel/internal/core/session"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
)

// RawStore supplies raw envelopes for a run.
type RawStore interface {
	ReadAll(ctx context.Context) ([]*bronze.Envelope, int, error)
}

// Options tunes a pipeline. Zero values mean defaults.
type Options struct {
	// SessionGap is the inactivity threshold closing a session.
	SessionGap time.Duration
	// BatchSize caps how many pending rows one run merges per stage.
	BatchSize int
	// Mapping overrides the parameter flattening rules.
	Mapping *params.Mapping
	// Strategy overrides the dimension refresh behavior.
	Strategy RefreshStrategy
	// Clock overrides run timestamps, for tests.
	Clock func() time.Time
}

// Pipeline wires the four stages over a shared storage layer.
type Pipeline struct {
	raw        RawStore
	normalizer *Normalizer
	flattener  *Flattener
	factMerger *FactMerger
	dimMerger  *DimensionMerger

	history *History
	clock   func() time.Time
}

// New builds a pipeline over the given stores.
func New(raw RawStore, events storage.EventStore, items storage.ItemStore, facts storage.FactStore, dims storage.DimensionStore, history *History, opts Options) *Pipeline {
	if opts.SessionGap <= 0 {
		opts.SessionGap = session.DefaultGap
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if history == nil {
		history = NewHistory(0)
	}

	return &Pipeline{
		raw:        raw,
		normalizer: NewNormalizer(events),
		flattener:  NewFlattener(events, items, opts.Mapping),
		factMerger: NewFactMerger(events, items, facts, opts.SessionGap, opts.BatchSize),
		dimMerger:  NewDimensionMerger(events, items, facts, dims, opts.Strategy),
		history:    history,
		clock:      opts.Clock,
	}
}

// History exposes the bounded run record for the projection API.
func (p *Pipeline) History() *History {
	return p.history
}

// Run executes one full pass: normalize, flatten, merge facts, merge
// dimensions — strictly in that order, since each stage's incremental
// guard is defined against the previous stage's committed state. The
// run stats are recorded even when a stage fails partway.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	now := p.clock().UTC()
	stats := RunStats{StartedAt: now}

	err := p.run(ctx, &stats, now)

	stats.FinishedAt = p.clock().UTC()
	p.history.Add(stats)

	if err != nil {
		return stats, err
	}

	slog.Info("[Pipeline] Run complete",
		"duration", stats.FinishedAt.Sub(stats.StartedAt),
		"envelopes_read", stats.EnvelopesRead,
		"events_inserted", stats.Events.Inserted,
		"items_inserted", stats.Items.Inserted,
		"fact_events_inserted", stats.FactEvents.Inserted,
		"fact_items_inserted", stats.FactItems.Inserted,
		"dim_items_inserted", stats.DimItems.Inserted,
		"dim_users_inserted", stats.DimUsers.Inserted,
	)
	return stats, nil
}

func (p *Pipeline) run(ctx context.Context, stats *RunStats, now time.Time) error {
	envelopes, malformed, err := p.raw.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: read raw layer: %w", err)
	}
	stats.EnvelopesRead = len(envelopes)
	stats.EnvelopesMalformed = malformed

	if stats.Events, err = p.normalizer.Run(ctx, envelopes, now); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if stats.Items, err = p.flattener.Run(ctx, envelopes); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if stats.FactEvents, err = p.factMerger.MergeEvents(ctx, now); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if stats.FactItems, err = p.factMerger.MergeItems(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if stats.DimItems, stats.DimUsers, err = p.dimMerger.Run(ctx, now); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	return nil
}
