package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/lib/pq"
)

// FactAdapter implements storage.FactStore on PostgreSQL.
type FactAdapter struct {
	db *sql.DB
}

// NewFactAdapter creates a fact store sharing the given connection.
func NewFactAdapter(db *sql.DB) *FactAdapter {
	return &FactAdapter{db: db}
}

// InsertFactEvents appends fact rows in one transaction, skipping
// event ids that were already merged.
func (a *FactAdapter) InsertFactEvents(ctx context.Context, facts []*model.FactEvent) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert fact events: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertFactEvent)
	if err != nil {
		return 0, fmt.Errorf("insert fact events: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, f := range facts {
		res, err := stmt.ExecContext(ctx,
			f.EventID,
			f.EventTimestamp,
			f.UserID,
			f.EventName,
			f.Platform,
			f.SessionID,
			f.EventDate,
			f.EventHour,
			f.RawMessageID,
			f.ProcessedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert fact events: exec event_id=%s: %w", f.EventID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert fact events: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert fact events: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted fact events", "candidates", len(facts), "inserted", inserted)
	return inserted, nil
}

// InsertFactItems appends item fact rows in one transaction, skipping
// event item ids that were already merged.
func (a *FactAdapter) InsertFactItems(ctx context.Context, items []*model.FactEventItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert fact items: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertFactItem)
	if err != nil {
		return 0, fmt.Errorf("insert fact items: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, it := range items {
		res, err := stmt.ExecContext(ctx,
			it.EventItemID,
			it.EventID,
			it.ItemID,
			it.ItemName,
			it.ItemListName,
			it.ItemListID,
			it.ItemCategory,
			it.ItemBrand,
			it.Price,
			it.TotalPrice,
			it.Quantity,
			it.PositionInList,
			it.HasDiscount,
			it.DiscountAmount,
			it.InStock,
		)
		if err != nil {
			return 0, fmt.Errorf("insert fact items: exec event_item_id=%s: %w", it.EventItemID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert fact items: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert fact items: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted fact items", "candidates", len(items), "inserted", inserted)
	return inserted, nil
}

// CountOrphanedFactItems reports fact items whose event_id does not
// resolve to a fact event. Must be zero after every merge.
func (a *FactAdapter) CountOrphanedFactItems(ctx context.Context) (int, error) {
	var count int
	if err := a.db.QueryRowContext(ctx, queryCountOrphanedFactItems).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orphaned fact items: %w", err)
	}
	return count, nil
}

// UserSessionTotals returns the distinct session count per user over
// the full fact history.
func (a *FactAdapter) UserSessionTotals(ctx context.Context, userIDs []string) (map[string]int64, error) {
	if len(userIDs) == 0 {
		return map[string]int64{}, nil
	}

	rows, err := a.db.QueryContext(ctx, queryUserSessionTotals, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("user session totals: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64, len(userIDs))
	for rows.Next() {
		var userID string
		var total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("user session totals: scan: %w", err)
		}
		result[userID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user session totals: iterate: %w", err)
	}

	return result, nil
}
