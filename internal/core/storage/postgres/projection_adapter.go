package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kiln-data/shopfunnel/internal/projection"
)

const queryEngagement = `
SELECT event_item_id, event_id, item_id, item_name, item_list_name,
       item_list_id, item_category, item_brand, price, total_price,
       quantity, position_in_list, has_discount, discount_amount,
       in_stock, event_timestamp, user_id, session_id, event_date,
       event_hour, processed_at
FROM vw_item_engagement
WHERE ($1 = '' OR item_list_name = $1)
ORDER BY event_timestamp, event_item_id
LIMIT $2`

const queryEngagementByEvent = `
SELECT ve.event_item_id, ve.event_id, ve.item_id, ve.item_name,
       ve.item_list_name, ve.item_list_id, ve.item_category,
       ve.item_brand, ve.price, ve.total_price, ve.quantity,
       ve.position_in_list, ve.has_discount, ve.discount_amount,
       ve.in_stock, ve.event_timestamp, ve.user_id, ve.session_id,
       ve.event_date, ve.event_hour, ve.processed_at
FROM vw_item_engagement ve
JOIN fact_events fe ON fe.event_id = ve.event_id
WHERE ($1 = '' OR ve.item_list_name = $1)
  AND fe.event_name = $2
ORDER BY ve.event_timestamp, ve.event_item_id
LIMIT $3`

const queryEventSummary = `
SELECT event_name,
       COUNT(*) AS event_count,
       COUNT(DISTINCT user_id) AS unique_users,
       COUNT(DISTINCT session_id) AS unique_sessions,
       MIN(event_timestamp) AS first_event_at,
       MAX(event_timestamp) AS last_event_at
FROM fact_events
GROUP BY event_name
ORDER BY event_count DESC, event_name`

// ProjectionAdapter implements projection.Store on PostgreSQL.
type ProjectionAdapter struct {
	db *sql.DB
}

// NewProjectionAdapter creates a read-side store sharing the given connection.
func NewProjectionAdapter(db *sql.DB) *ProjectionAdapter {
	return &ProjectionAdapter{db: db}
}

// Engagement returns engagement view rows matching the query, in
// stable timestamp order.
func (a *ProjectionAdapter) Engagement(ctx context.Context, q projection.EngagementQuery) ([]*projection.EngagementRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.EventName != "" {
		rows, err = a.db.QueryContext(ctx, queryEngagementByEvent, q.ListName, q.EventName, q.Limit)
	} else {
		rows, err = a.db.QueryContext(ctx, queryEngagement, q.ListName, q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("engagement: %w", err)
	}
	defer rows.Close()

	var result []*projection.EngagementRow
	for rows.Next() {
		var r projection.EngagementRow
		if err := rows.Scan(
			&r.EventItemID,
			&r.EventID,
			&r.ItemID,
			&r.ItemName,
			&r.ItemListName,
			&r.ItemListID,
			&r.ItemCategory,
			&r.ItemBrand,
			&r.Price,
			&r.TotalPrice,
			&r.Quantity,
			&r.PositionInList,
			&r.HasDiscount,
			&r.DiscountAmount,
			&r.InStock,
			&r.EventTimestamp,
			&r.UserID,
			&r.SessionID,
			&r.EventDate,
			&r.EventHour,
			&r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("engagement: scan: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engagement: iterate: %w", err)
	}

	return result, nil
}

// EventSummary aggregates the fact table per event name.
func (a *ProjectionAdapter) EventSummary(ctx context.Context) ([]*projection.EventSummary, error) {
	rows, err := a.db.QueryContext(ctx, queryEventSummary)
	if err != nil {
		return nil, fmt.Errorf("event summary: %w", err)
	}
	defer rows.Close()

	var result []*projection.EventSummary
	for rows.Next() {
		var s projection.EventSummary
		if err := rows.Scan(
			&s.EventName,
			&s.EventCount,
			&s.UniqueUsers,
			&s.UniqueSessions,
			&s.FirstEventAt,
			&s.LastEventAt,
		); err != nil {
			return nil, fmt.Errorf("event summary: scan: %w", err)
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event summary: iterate: %w", err)
	}

	return result, nil
}
