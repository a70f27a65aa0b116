package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is a normalized event (one per raw message_id).
// Records are immutable once written: the normalizer only appends,
// and the unique message_id constraint is the sole idempotency guard.
type EventRecord struct {
	// EventID is the generated surrogate key.
	EventID string

	// MessageID is the delivery-unique id of the raw envelope.
	// At most one EventRecord exists per MessageID.
	MessageID string

	// EventTimestamp is the client-side event time, derived from
	// EventTimestampMicros (epoch microseconds), always UTC.
	EventTimestamp       time.Time
	EventTimestampMicros int64

	UserID    string
	EventName string
	Platform  string

	// ReplayTimestamp is parsed best-effort from the envelope's
	// ISO-8601 replay marker; nil when absent or unparseable.
	ReplayTimestamp *time.Time

	// ReceivedAt is when the normalizer processed the envelope.
	ReceivedAt time.Time

	// IngestSeq is a monotonic sequence assigned by the database
	// (BIGSERIAL). It gives a strict total order for snapshots.
	IngestSeq int64
}

// ItemLine is one exploded item of an event's item array.
// Exactly one line exists per (EventID, ItemOffset) pair.
type ItemLine struct {
	// ItemRecordID is the generated surrogate key.
	ItemRecordID string

	// EventID references the owning EventRecord.
	EventID string

	// ItemOffset is the zero-based position in the raw item array.
	// Together with EventID it is the natural dedup key.
	ItemOffset int

	ItemID        *string
	ItemName      *string
	ItemBrand     *string
	ItemVariant   *string
	ItemCategory  *string
	ItemCategory2 *string
	ItemCategory3 *string
	ItemCategory4 *string
	ItemCategory5 *string

	PriceInUSD       decimal.NullDecimal
	Price            decimal.NullDecimal
	Quantity         *int64
	ItemRevenueInUSD decimal.NullDecimal
	ItemRevenue      decimal.NullDecimal
	ItemRefundInUSD  decimal.NullDecimal
	ItemRefund       decimal.NullDecimal

	Coupon      *string
	Affiliation *string
	LocationID  *string

	ItemListID   *string
	ItemListName *string

	// ItemListIndex is the payload's list position when present,
	// otherwise it defaults to ItemOffset.
	ItemListIndex *int64

	PromotionID   *string
	PromotionName *string
	CreativeName  *string
	CreativeSlot  *string

	// Flattened parameter attributes (see params.Mapping).
	InStock              *int64
	Discounts            *string
	DiscountAmount       decimal.NullDecimal
	TotalPrice           decimal.NullDecimal
	NumberOfInstallments *int64
	InstallmentPrice     *string

	// LineSeq is a monotonic sequence assigned by the database.
	// The dimension merger snapshots the highest LineSeq per item.
	LineSeq int64
}

// FactEvent is one analytics-ready row per EventRecord.
type FactEvent struct {
	EventID        string
	EventTimestamp time.Time
	UserID         string
	EventName      string
	Platform       string

	// SessionID is the deterministic session hash assigned at merge time.
	SessionID string

	// EventDate is the calendar date (YYYY-MM-DD, UTC) of EventTimestamp.
	EventDate string
	// EventHour is the UTC hour of day (0-23).
	EventHour int

	RawMessageID string
	ProcessedAt  time.Time
}

// FactEventItem is one analytics-ready row per ItemLine, joined to an
// existing FactEvent. Its EventItemID equals the line's ItemRecordID.
type FactEventItem struct {
	EventItemID string
	EventID     string

	ItemID       *string
	ItemName     *string
	ItemListName *string
	ItemListID   *string
	ItemCategory *string
	ItemBrand    *string

	Price          decimal.NullDecimal
	TotalPrice     decimal.NullDecimal
	Quantity       *int64
	PositionInList *int64

	// HasDiscount is true iff a discount code is present or a
	// positive discount amount was observed.
	HasDiscount    bool
	DiscountAmount decimal.NullDecimal

	// InStock is the boolean-normalized tri-state stock flag:
	// 1 -> true, 0 -> false, anything else -> nil (unknown).
	InStock *bool
}

// DimItem is the item dimension row (SCD Type 2 shell with in-place
// last_seen refresh). At most one row per ItemID has IsCurrent set.
type DimItem struct {
	ItemSK string
	ItemID string

	ItemName      *string
	ItemBrand     *string
	ItemCategory  *string
	ItemCategory2 *string
	ItemCategory3 *string
	ItemCategory4 *string
	ItemCategory5 *string

	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsCurrent   bool
}

// DimUser is the user dimension row. Same currency invariant as DimItem.
type DimUser struct {
	UserSK string
	UserID string

	FirstPlatform *string
	LastPlatform  *string

	FirstSeenAt   time.Time
	LastSeenAt    time.Time
	TotalSessions int64
	IsCurrent     bool
}

// UserActivity is the platform snapshot of a user's cumulative event
// history: first-seen and most-recent platform by event timestamp.
type UserActivity struct {
	FirstPlatform string
	LastPlatform  string
}

// DimUserRefresh carries one user's in-place refresh: the recomputed
// last platform and the count of distinct sessions observed strictly
// after the dimension row's previous watermark.
type DimUserRefresh struct {
	UserID       string
	LastPlatform string
	SessionDelta int64
}
