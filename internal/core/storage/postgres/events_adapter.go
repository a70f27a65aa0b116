package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/lib/pq"
)

// EventAdapter implements storage.EventStore on PostgreSQL.
type EventAdapter struct {
	db *sql.DB
}

// NewEventAdapter creates an event store sharing the given connection.
func NewEventAdapter(db *sql.DB) *EventAdapter {
	return &EventAdapter{db: db}
}

// InsertEvents appends new event records in one transaction.
// Envelopes whose message_id already has a normalized record are
// skipped by the unique constraint; the returned count covers only
// rows actually written.
func (a *EventAdapter) InsertEvents(ctx context.Context, events []*model.EventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert events: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertEvent)
	if err != nil {
		return 0, fmt.Errorf("insert events: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, evt := range events {
		res, err := stmt.ExecContext(ctx,
			evt.EventID,
			evt.MessageID,
			evt.EventTimestamp,
			evt.EventTimestampMicros,
			evt.UserID,
			evt.EventName,
			evt.Platform,
			evt.ReplayTimestamp,
			evt.ReceivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert events: exec message_id=%s: %w", evt.MessageID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert events: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert events: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted events", "candidates", len(events), "inserted", inserted)
	return inserted, nil
}

// EventIDsByMessageID resolves raw message ids to normalized event ids.
func (a *EventAdapter) EventIDsByMessageID(ctx context.Context, messageIDs []string) (map[string]string, error) {
	if len(messageIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := a.db.QueryContext(ctx, queryEventIDsByMessageID, pq.Array(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("event ids by message id: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string, len(messageIDs))
	for rows.Next() {
		var messageID, eventID string
		if err := rows.Scan(&messageID, &eventID); err != nil {
			return nil, fmt.Errorf("event ids by message id: scan: %w", err)
		}
		result[messageID] = eventID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event ids by message id: iterate: %w", err)
	}

	return result, nil
}

// UnmergedEvents fetches events with no fact row yet, in ingest order.
func (a *EventAdapter) UnmergedEvents(ctx context.Context, limit int) ([]*model.EventRecord, error) {
	rows, err := a.db.QueryContext(ctx, queryUnmergedEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("unmerged events: %w", err)
	}
	defer rows.Close()

	var events []*model.EventRecord
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unmerged events: iterate: %w", err)
	}

	return events, nil
}

// UserEventHistory fetches the full normalized timeline of the given
// users, ordered per user by event time.
func (a *EventAdapter) UserEventHistory(ctx context.Context, userIDs []string) ([]*model.EventRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := a.db.QueryContext(ctx, queryUserEventHistory, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("user event history: %w", err)
	}
	defer rows.Close()

	var events []*model.EventRecord
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user event history: iterate: %w", err)
	}

	return events, nil
}

// UserActivity returns each user's first and latest platform across
// the full normalized history, ties broken by ingest order.
func (a *EventAdapter) UserActivity(ctx context.Context, userIDs []string) (map[string]model.UserActivity, error) {
	if len(userIDs) == 0 {
		return map[string]model.UserActivity{}, nil
	}

	rows, err := a.db.QueryContext(ctx, queryUserActivity, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("user activity: %w", err)
	}
	defer rows.Close()

	result := make(map[string]model.UserActivity, len(userIDs))
	for rows.Next() {
		var userID string
		var activity model.UserActivity
		if err := rows.Scan(&userID, &activity.FirstPlatform, &activity.LastPlatform); err != nil {
			return nil, fmt.Errorf("user activity: scan: %w", err)
		}
		result[userID] = activity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user activity: iterate: %w", err)
	}

	return result, nil
}
