package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/session"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
)

// FactMerger promotes normalized events and item lines into the fact
// tables. Events get their session id here; item lines only merge once
// their parent event's fact row exists, so a fact item is never
// orphaned.
type FactMerger struct {
	events storage.EventStore
	items  storage.ItemStore
	facts  storage.FactStore

	sessionGap time.Duration
	batchSize  int
}

// NewFactMerger creates a merger with the given session gap and batch
// limit. Non-positive values fall back to defaults.
func NewFactMerger(events storage.EventStore, items storage.ItemStore, facts storage.FactStore, sessionGap time.Duration, batchSize int) *FactMerger {
	if sessionGap <= 0 {
		sessionGap = session.DefaultGap
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &FactMerger{
		events:     events,
		items:      items,
		facts:      facts,
		sessionGap: sessionGap,
		batchSize:  batchSize,
	}
}

// MergeEvents sessionizes and inserts events that have no fact row yet.
//
// Assignment runs over each affected user's full normalized history,
// not just the pending batch: the session ordinal is cumulative, so a
// returning user's new session gets a fresh id instead of reusing the
// id of their first session. Only pending events get fact rows;
// already-committed assignments are reproduced, never rewritten.
func (m *FactMerger) MergeEvents(ctx context.Context, now time.Time) (StageStats, error) {
	var stats StageStats

	pending, err := m.events.UnmergedEvents(ctx, m.batchSize)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	stats.Processed = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}

	seen := make(map[string]bool, len(pending))
	userIDs := make([]string, 0, len(pending))
	for _, evt := range pending {
		if !seen[evt.UserID] {
			seen[evt.UserID] = true
			userIDs = append(userIDs, evt.UserID)
		}
	}

	history, err := m.events.UserEventHistory(ctx, userIDs)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}

	assignments := session.Assign(history, m.sessionGap)

	facts := make([]*model.FactEvent, 0, len(pending))
	for _, evt := range pending {
		ts := evt.EventTimestamp.UTC()
		facts = append(facts, &model.FactEvent{
			EventID:        evt.EventID,
			EventTimestamp: ts,
			UserID:         evt.UserID,
			EventName:      evt.EventName,
			Platform:       evt.Platform,
			SessionID:      assignments[evt.EventID],
			EventDate:      ts.Format("2006-01-02"),
			EventHour:      ts.Hour(),
			RawMessageID:   evt.MessageID,
			ProcessedAt:    now,
		})
	}

	inserted, err := m.facts.InsertFactEvents(ctx, facts)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	stats.Inserted = inserted
	stats.Skipped = len(facts) - inserted

	slog.Info("[FactMerger] Event merge complete",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// MergeItems inserts fact rows for item lines whose parent event is
// already a fact. Lines whose parent is still pending count as
// deferred. After the insert pass the referential invariant is
// asserted: any fact item without a fact event is fatal.
func (m *FactMerger) MergeItems(ctx context.Context) (StageStats, error) {
	var stats StageStats

	pending, err := m.items.UnmergedItems(ctx, m.batchSize)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	stats.Processed = len(pending)

	itemFacts := make([]*model.FactEventItem, 0, len(pending))
	for _, line := range pending {
		itemFacts = append(itemFacts, buildFactItem(line))
	}

	inserted, err := m.facts.InsertFactItems(ctx, itemFacts)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	stats.Inserted = inserted
	stats.Skipped = len(itemFacts) - inserted

	deferred, err := m.items.CountItemsAwaitingFacts(ctx)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	stats.Deferred = deferred

	orphans, err := m.facts.CountOrphanedFactItems(ctx)
	if err != nil {
		return stats, fmt.Errorf("fact merger: %w", err)
	}
	if orphans > 0 {
		return stats, fmt.Errorf("fact merger: %w: %d fact items without a fact event", storage.ErrIntegrity, orphans)
	}

	slog.Info("[FactMerger] Item merge complete",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"deferred", stats.Deferred,
	)
	return stats, nil
}

// buildFactItem derives the analytics-facing item fact from a silver
// line: the discount flag and the tri-state stock normalization happen
// here, once, so every consumer sees the same semantics.
func buildFactItem(line *model.ItemLine) *model.FactEventItem {
	hasDiscount := line.Discounts != nil && *line.Discounts != ""
	if !hasDiscount && line.DiscountAmount.Valid && line.DiscountAmount.Decimal.IsPositive() {
		hasDiscount = true
	}

	var inStock *bool
	if line.InStock != nil {
		switch *line.InStock {
		case 1:
			v := true
			inStock = &v
		case 0:
			v := false
			inStock = &v
		}
	}

	return &model.FactEventItem{
		EventItemID: line.ItemRecordID,
		EventID:     line.EventID,

		ItemID:       line.ItemID,
		ItemName:     line.ItemName,
		ItemListName: line.ItemListName,
		ItemListID:   line.ItemListID,
		ItemCategory: line.ItemCategory,
		ItemBrand:    line.ItemBrand,

		Price:          line.Price,
		TotalPrice:     line.TotalPrice,
		Quantity:       line.Quantity,
		PositionInList: line.ItemListIndex,

		HasDiscount:    hasDiscount,
		DiscountAmount: line.DiscountAmount,
		InStock:        inStock,
	}
}
