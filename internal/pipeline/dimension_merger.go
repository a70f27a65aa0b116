package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
	"golang.org/x/sync/errgroup"
)

// RefreshStrategy applies attribute changes to existing current
// dimension rows. The default refreshes in place; a Type 2 strategy
// would close the old row and open a new version instead, without
// touching the merger itself.
type RefreshStrategy interface {
	RefreshItems(ctx context.Context, dims storage.DimensionStore, itemIDs []string, seenAt time.Time) (int, error)
	RefreshUsers(ctx context.Context, dims storage.DimensionStore, updates []*model.DimUserRefresh, seenAt time.Time) (int, error)
}

// InPlaceRefresh updates current rows directly: watermark advance for
// items; watermark, last platform and session counter for users.
type InPlaceRefresh struct{}

func (InPlaceRefresh) RefreshItems(ctx context.Context, dims storage.DimensionStore, itemIDs []string, seenAt time.Time) (int, error) {
	return dims.RefreshDimItems(ctx, itemIDs, seenAt)
}

func (InPlaceRefresh) RefreshUsers(ctx context.Context, dims storage.DimensionStore, updates []*model.DimUserRefresh, seenAt time.Time) (int, error) {
	return dims.RefreshDimUsers(ctx, updates, seenAt)
}

// DimensionMerger maintains dim_items and dim_users from fact activity.
// Staleness is watermark-driven: a current row is refreshed from fact
// rows processed strictly after its last_seen_at, which makes every
// pass idempotent — a re-run over the same facts finds no rows newer
// than the advanced watermark and changes nothing.
type DimensionMerger struct {
	events   storage.EventStore
	items    storage.ItemStore
	facts    storage.FactStore
	dims     storage.DimensionStore
	strategy RefreshStrategy
}

// NewDimensionMerger creates a merger; a nil strategy means in-place.
func NewDimensionMerger(events storage.EventStore, items storage.ItemStore, facts storage.FactStore, dims storage.DimensionStore, strategy RefreshStrategy) *DimensionMerger {
	if strategy == nil {
		strategy = InPlaceRefresh{}
	}
	return &DimensionMerger{
		events:   events,
		items:    items,
		facts:    facts,
		dims:     dims,
		strategy: strategy,
	}
}

// Run refreshes stale dimension rows and inserts rows for keys never
// seen before. The currency invariant is asserted before and after:
// duplicate current rows are fatal, never repaired.
func (d *DimensionMerger) Run(ctx context.Context, now time.Time) (DimensionStats, DimensionStats, error) {
	var itemStats, userStats DimensionStats

	if err := d.dims.AssertCurrencyInvariant(ctx); err != nil {
		return itemStats, userStats, fmt.Errorf("dimension merger: %w", err)
	}

	// The two dimensions never touch each other's tables.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		itemStats, err = d.mergeItems(gctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		userStats, err = d.mergeUsers(gctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return itemStats, userStats, fmt.Errorf("dimension merger: %w", err)
	}

	if err := d.dims.AssertCurrencyInvariant(ctx); err != nil {
		return itemStats, userStats, fmt.Errorf("dimension merger: %w", err)
	}

	slog.Info("[DimensionMerger] Merge complete",
		"items_refreshed", itemStats.Refreshed,
		"items_inserted", itemStats.Inserted,
		"users_refreshed", userStats.Refreshed,
		"users_inserted", userStats.Inserted,
	)
	return itemStats, userStats, nil
}

func (d *DimensionMerger) mergeItems(ctx context.Context, now time.Time) (DimensionStats, error) {
	var stats DimensionStats

	stale, err := d.dims.StaleItemKeys(ctx)
	if err != nil {
		return stats, err
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		refreshed, err := d.strategy.RefreshItems(ctx, d.dims, stale, now)
		if err != nil {
			return stats, err
		}
		stats.Refreshed = refreshed
	}

	fresh, err := d.dims.NewItemKeys(ctx)
	if err != nil {
		return stats, err
	}
	if len(fresh) == 0 {
		return stats, nil
	}
	sort.Strings(fresh)

	snapshots, err := d.items.LatestItemSnapshots(ctx, fresh)
	if err != nil {
		return stats, err
	}

	rows := make([]*model.DimItem, 0, len(fresh))
	for _, itemID := range fresh {
		row := &model.DimItem{
			ItemSK:      uuid.NewString(),
			ItemID:      itemID,
			FirstSeenAt: now,
			LastSeenAt:  now,
			IsCurrent:   true,
		}
		if snap, ok := snapshots[itemID]; ok {
			row.ItemName = snap.ItemName
			row.ItemBrand = snap.ItemBrand
			row.ItemCategory = snap.ItemCategory
			row.ItemCategory2 = snap.ItemCategory2
			row.ItemCategory3 = snap.ItemCategory3
			row.ItemCategory4 = snap.ItemCategory4
			row.ItemCategory5 = snap.ItemCategory5
		}
		rows = append(rows, row)
	}

	inserted, err := d.dims.InsertDimItems(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Inserted = inserted
	return stats, nil
}

func (d *DimensionMerger) mergeUsers(ctx context.Context, now time.Time) (DimensionStats, error) {
	var stats DimensionStats

	deltas, err := d.dims.StaleUserSessionDeltas(ctx)
	if err != nil {
		return stats, err
	}
	if len(deltas) > 0 {
		stale := make([]string, 0, len(deltas))
		for userID := range deltas {
			stale = append(stale, userID)
		}
		sort.Strings(stale)

		activity, err := d.events.UserActivity(ctx, stale)
		if err != nil {
			return stats, err
		}

		updates := make([]*model.DimUserRefresh, 0, len(stale))
		for _, userID := range stale {
			updates = append(updates, &model.DimUserRefresh{
				UserID:       userID,
				LastPlatform: activity[userID].LastPlatform,
				SessionDelta: deltas[userID],
			})
		}

		refreshed, err := d.strategy.RefreshUsers(ctx, d.dims, updates, now)
		if err != nil {
			return stats, err
		}
		stats.Refreshed = refreshed
	}

	fresh, err := d.dims.NewUserKeys(ctx)
	if err != nil {
		return stats, err
	}
	if len(fresh) == 0 {
		return stats, nil
	}
	sort.Strings(fresh)

	activity, err := d.events.UserActivity(ctx, fresh)
	if err != nil {
		return stats, err
	}
	totals, err := d.facts.UserSessionTotals(ctx, fresh)
	if err != nil {
		return stats, err
	}

	rows := make([]*model.DimUser, 0, len(fresh))
	for _, userID := range fresh {
		row := &model.DimUser{
			UserSK:        uuid.NewString(),
			UserID:        userID,
			FirstSeenAt:   now,
			LastSeenAt:    now,
			TotalSessions: totals[userID],
			IsCurrent:     true,
		}
		if act, ok := activity[userID]; ok {
			if act.FirstPlatform != "" {
				first := act.FirstPlatform
				row.FirstPlatform = &first
			}
			if act.LastPlatform != "" {
				last := act.LastPlatform
				row.LastPlatform = &last
			}
		}
		rows = append(rows, row)
	}

	inserted, err := d.dims.InsertDimUsers(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Inserted = inserted
	return stats, nil
}
