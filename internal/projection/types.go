package projection

import (
	"time"

	"github.com/shopspring/decimal"
)

// EngagementRow is one row of the item engagement view: an item fact
// joined to its event, restricted to rows carrying a list name.
type EngagementRow struct {
	EventItemID    string              `json:"event_item_id"`
	EventID        string              `json:"event_id"`
	ItemID         *string             `json:"item_id"`
	ItemName       *string             `json:"item_name"`
	ItemListName   *string             `json:"item_list_name"`
	ItemListID     *string             `json:"item_list_id"`
	ItemCategory   *string             `json:"item_category"`
	ItemBrand      *string             `json:"item_brand"`
	Price          decimal.NullDecimal `json:"price"`
	TotalPrice     decimal.NullDecimal `json:"total_price"`
	Quantity       *int64              `json:"quantity"`
	PositionInList *int64              `json:"position_in_list"`
	HasDiscount    bool                `json:"has_discount"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount"`
	InStock        *bool               `json:"in_stock"`
	EventTimestamp time.Time           `json:"event_timestamp"`
	UserID         string              `json:"user_id"`
	SessionID      string              `json:"session_id"`
	EventDate      string              `json:"event_date"`
	EventHour      int                 `json:"event_hour"`
	ProcessedAt    time.Time           `json:"processed_at"`
}

// EngagementQuery filters an engagement read.
type EngagementQuery struct {
	// ListName restricts rows to one item list; empty means all lists.
	ListName string
	// EventName restricts rows to one event type; empty means all.
	EventName string
	// Limit caps the result set.
	Limit int
}

// EventSummary aggregates the fact table per event name.
type EventSummary struct {
	EventName      string    `json:"event_name"`
	EventCount     int64     `json:"event_count"`
	UniqueUsers    int64     `json:"unique_users"`
	UniqueSessions int64     `json:"unique_sessions"`
	FirstEventAt   time.Time `json:"first_event_at"`
	LastEventAt    time.Time `json:"last_event_at"`
}
