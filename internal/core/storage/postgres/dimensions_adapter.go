package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
	"github.com/lib/pq"
)

// DimensionAdapter implements storage.DimensionStore on PostgreSQL.
type DimensionAdapter struct {
	db *sql.DB
}

// NewDimensionAdapter creates a dimension store sharing the given connection.
func NewDimensionAdapter(db *sql.DB) *DimensionAdapter {
	return &DimensionAdapter{db: db}
}

// NewItemKeys returns item ids with no current dimension row.
func (a *DimensionAdapter) NewItemKeys(ctx context.Context) ([]string, error) {
	return a.queryKeys(ctx, queryNewItemKeys, "new item keys")
}

// NewUserKeys returns user ids with no current dimension row.
func (a *DimensionAdapter) NewUserKeys(ctx context.Context) ([]string, error) {
	return a.queryKeys(ctx, queryNewUserKeys, "new user keys")
}

// StaleItemKeys returns current item keys with fact activity newer
// than their last_seen_at watermark.
func (a *DimensionAdapter) StaleItemKeys(ctx context.Context) ([]string, error) {
	return a.queryKeys(ctx, queryStaleItemKeys, "stale item keys")
}

func (a *DimensionAdapter) queryKeys(ctx context.Context, query, op string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return keys, nil
}

// StaleUserSessionDeltas returns, per stale current user, the count of
// distinct sessions on fact rows processed after the row's watermark.
func (a *DimensionAdapter) StaleUserSessionDeltas(ctx context.Context) (map[string]int64, error) {
	rows, err := a.db.QueryContext(ctx, queryStaleUserSessionDeltas)
	if err != nil {
		return nil, fmt.Errorf("stale user session deltas: %w", err)
	}
	defer rows.Close()

	deltas := make(map[string]int64)
	for rows.Next() {
		var userID string
		var delta int64
		if err := rows.Scan(&userID, &delta); err != nil {
			return nil, fmt.Errorf("stale user session deltas: scan: %w", err)
		}
		deltas[userID] = delta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stale user session deltas: iterate: %w", err)
	}
	return deltas, nil
}

// InsertDimItems appends new item dimension rows in one transaction.
func (a *DimensionAdapter) InsertDimItems(ctx context.Context, dims []*model.DimItem) (int, error) {
	if len(dims) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert dim items: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertDimItem)
	if err != nil {
		return 0, fmt.Errorf("insert dim items: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, d := range dims {
		res, err := stmt.ExecContext(ctx,
			d.ItemSK,
			d.ItemID,
			d.ItemName,
			d.ItemBrand,
			d.ItemCategory,
			d.ItemCategory2,
			d.ItemCategory3,
			d.ItemCategory4,
			d.ItemCategory5,
			d.FirstSeenAt,
			d.LastSeenAt,
			d.IsCurrent,
		)
		if err != nil {
			return 0, fmt.Errorf("insert dim items: exec item_id=%s: %w", d.ItemID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert dim items: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert dim items: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted dim items", "candidates", len(dims), "inserted", inserted)
	return inserted, nil
}

// InsertDimUsers appends new user dimension rows in one transaction.
func (a *DimensionAdapter) InsertDimUsers(ctx context.Context, dims []*model.DimUser) (int, error) {
	if len(dims) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert dim users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertDimUser)
	if err != nil {
		return 0, fmt.Errorf("insert dim users: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, d := range dims {
		res, err := stmt.ExecContext(ctx,
			d.UserSK,
			d.UserID,
			d.FirstPlatform,
			d.LastPlatform,
			d.FirstSeenAt,
			d.LastSeenAt,
			d.TotalSessions,
			d.IsCurrent,
		)
		if err != nil {
			return 0, fmt.Errorf("insert dim users: exec user_id=%s: %w", d.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert dim users: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert dim users: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted dim users", "candidates", len(dims), "inserted", inserted)
	return inserted, nil
}

// RefreshDimItems advances last_seen_at in place for the given keys.
func (a *DimensionAdapter) RefreshDimItems(ctx context.Context, itemIDs []string, seenAt time.Time) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	res, err := a.db.ExecContext(ctx, queryRefreshDimItems, pq.Array(itemIDs), seenAt)
	if err != nil {
		return 0, fmt.Errorf("refresh dim items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("refresh dim items: rows affected: %w", err)
	}
	return int(n), nil
}

// RefreshDimUsers applies per-user in-place refreshes in one
// transaction: watermark, recomputed last platform, session delta.
func (a *DimensionAdapter) RefreshDimUsers(ctx context.Context, updates []*model.DimUserRefresh, seenAt time.Time) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("refresh dim users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryRefreshDimUser)
	if err != nil {
		return 0, fmt.Errorf("refresh dim users: prepare: %w", err)
	}
	defer stmt.Close()

	refreshed := 0
	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.UserID, seenAt, u.LastPlatform, u.SessionDelta)
		if err != nil {
			return 0, fmt.Errorf("refresh dim users: exec user_id=%s: %w", u.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("refresh dim users: rows affected: %w", err)
		}
		refreshed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("refresh dim users: commit: %w", err)
	}

	return refreshed, nil
}

// AssertCurrencyInvariant fails when any natural key has more than one
// current row. The partial unique indexes defend this at write time;
// the check catches corruption introduced outside the pipeline.
func (a *DimensionAdapter) AssertCurrencyInvariant(ctx context.Context) error {
	var dupItems, dupUsers int
	if err := a.db.QueryRowContext(ctx, queryCountDuplicateCurrentItems).Scan(&dupItems); err != nil {
		return fmt.Errorf("currency invariant: items: %w", err)
	}
	if err := a.db.QueryRowContext(ctx, queryCountDuplicateCurrentUsers).Scan(&dupUsers); err != nil {
		return fmt.Errorf("currency invariant: users: %w", err)
	}
	if dupItems > 0 || dupUsers > 0 {
		return fmt.Errorf("%w: duplicate current dimension rows (items=%d, users=%d)",
			storage.ErrIntegrity, dupItems, dupUsers)
	}
	return nil
}
