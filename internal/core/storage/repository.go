// Package storage defines the repository interfaces the pipeline
// stages depend on. Each table family gets its own store; stages never
// touch a shared ambient connection.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kiln-data/shopfunnel/internal/core/model"
)

// ErrDuplicate is returned when an insert hits an existing unique key.
var ErrDuplicate = errors.New("record already exists")

// ErrIntegrity marks a structural invariant violation: duplicate
// current dimension rows, or a fact item orphaned from its fact event.
// These are fatal data-integrity errors, never silently repaired.
var ErrIntegrity = errors.New("data integrity violation")

// EventStore persists normalized events (silver_events).
type EventStore interface {
	// InsertEvents appends new event records atomically, skipping any
	// whose message_id is already present. Returns the inserted count.
	InsertEvents(ctx context.Context, events []*model.EventRecord) (int, error)

	// EventIDsByMessageID resolves message ids to normalized event ids.
	// Missing message ids are simply absent from the result.
	EventIDsByMessageID(ctx context.Context, messageIDs []string) (map[string]string, error)

	// UnmergedEvents returns events not yet present in fact_events, in
	// ingest order. This is the fact merger's idempotency guard.
	UnmergedEvents(ctx context.Context, limit int) ([]*model.EventRecord, error)

	// UserEventHistory returns every normalized event for the given
	// users. Session assignment runs over this full timeline so a
	// returning user's session ordinal keeps counting across runs
	// instead of restarting at one.
	UserEventHistory(ctx context.Context, userIDs []string) ([]*model.EventRecord, error)

	// UserActivity returns each user's first and most recent platform
	// over the full normalized history.
	UserActivity(ctx context.Context, userIDs []string) (map[string]model.UserActivity, error)
}

// ItemStore persists exploded item lines (silver_items).
type ItemStore interface {
	// InsertItems appends new item lines atomically, skipping any
	// (event_id, item_offset) pair already present.
	InsertItems(ctx context.Context, items []*model.ItemLine) (int, error)

	// UnmergedItems returns item lines whose event already has a fact
	// row but which are absent from fact_event_items, in line order.
	UnmergedItems(ctx context.Context, limit int) ([]*model.ItemLine, error)

	// CountItemsAwaitingFacts reports item lines whose parent event has
	// not been merged into fact_events yet (deferred, not dropped).
	CountItemsAwaitingFacts(ctx context.Context) (int, error)

	// LatestItemSnapshots returns, per item id, the line with the
	// highest sequence — the dimension insert pass's attribute source.
	LatestItemSnapshots(ctx context.Context, itemIDs []string) (map[string]*model.ItemLine, error)
}

// FactStore persists fact_events and fact_event_items.
type FactStore interface {
	// InsertFactEvents appends fact rows atomically, skipping existing
	// event ids.
	InsertFactEvents(ctx context.Context, facts []*model.FactEvent) (int, error)

	// InsertFactItems appends item fact rows atomically, skipping
	// existing event item ids.
	InsertFactItems(ctx context.Context, items []*model.FactEventItem) (int, error)

	// CountOrphanedFactItems reports fact items whose event_id does not
	// resolve to a fact event. Non-zero is an ErrIntegrity condition.
	CountOrphanedFactItems(ctx context.Context) (int, error)

	// UserSessionTotals returns the distinct session count per user
	// over the full fact history.
	UserSessionTotals(ctx context.Context, userIDs []string) (map[string]int64, error)
}

// DimensionStore maintains dim_items and dim_users.
type DimensionStore interface {
	// NewItemKeys returns item ids observed in silver_items that have
	// no current dimension row.
	NewItemKeys(ctx context.Context) ([]string, error)

	// NewUserKeys returns user ids observed in silver_events that have
	// no current dimension row.
	NewUserKeys(ctx context.Context) ([]string, error)

	// StaleItemKeys returns current item keys with fact activity
	// processed after the dimension row's last_seen_at watermark.
	StaleItemKeys(ctx context.Context) ([]string, error)

	// StaleUserSessionDeltas returns, per current user key with fact
	// activity after its watermark, the count of distinct sessions
	// observed strictly after last_seen_at. The watermark makes the
	// increment idempotent across re-runs.
	StaleUserSessionDeltas(ctx context.Context) (map[string]int64, error)

	// InsertDimItems / InsertDimUsers append freshly-observed keys.
	InsertDimItems(ctx context.Context, rows []*model.DimItem) (int, error)
	InsertDimUsers(ctx context.Context, rows []*model.DimUser) (int, error)

	// RefreshDimItems advances last_seen_at in place for current rows.
	RefreshDimItems(ctx context.Context, itemIDs []string, seenAt time.Time) (int, error)

	// RefreshDimUsers applies in-place refreshes: last_seen_at,
	// recomputed last_platform and the session counter delta.
	RefreshDimUsers(ctx context.Context, updates []*model.DimUserRefresh, seenAt time.Time) (int, error)

	// AssertCurrencyInvariant fails with ErrIntegrity when any natural
	// key holds more than one current row in either dimension.
	AssertCurrencyInvariant(ctx context.Context) error
}
