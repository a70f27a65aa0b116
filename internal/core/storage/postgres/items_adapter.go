package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/lib/pq"
)

// ItemAdapter implements storage.ItemStore on PostgreSQL.
type ItemAdapter struct {
	db *sql.DB
}

// NewItemAdapter creates an item store sharing the given connection.
func NewItemAdapter(db *sql.DB) *ItemAdapter {
	return &ItemAdapter{db: db}
}

// InsertItems appends new item lines in one transaction. Lines whose
// (event_id, item_offset) pair already exists are skipped.
func (a *ItemAdapter) InsertItems(ctx context.Context, items []*model.ItemLine) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert items: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryInsertItem)
	if err != nil {
		return 0, fmt.Errorf("insert items: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, it := range items {
		res, err := stmt.ExecContext(ctx,
			it.ItemRecordID,
			it.EventID,
			it.ItemOffset,
			it.ItemID,
			it.ItemName,
			it.ItemBrand,
			it.ItemVariant,
			it.ItemCategory,
			it.ItemCategory2,
			it.ItemCategory3,
			it.ItemCategory4,
			it.ItemCategory5,
			it.PriceInUSD,
			it.Price,
			it.Quantity,
			it.ItemRevenueInUSD,
			it.ItemRevenue,
			it.ItemRefundInUSD,
			it.ItemRefund,
			it.Coupon,
			it.Affiliation,
			it.LocationID,
			it.ItemListID,
			it.ItemListName,
			it.ItemListIndex,
			it.PromotionID,
			it.PromotionName,
			it.CreativeName,
			it.CreativeSlot,
			it.InStock,
			it.Discounts,
			it.DiscountAmount,
			it.TotalPrice,
			it.NumberOfInstallments,
			it.InstallmentPrice,
		)
		if err != nil {
			return 0, fmt.Errorf("insert items: exec event_id=%s offset=%d: %w", it.EventID, it.ItemOffset, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert items: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert items: commit: %w", err)
	}

	slog.Debug("[Postgres] Inserted item lines", "candidates", len(items), "inserted", inserted)
	return inserted, nil
}

// UnmergedItems fetches item lines whose event has a fact row but
// which have no fact item row yet, in line order.
func (a *ItemAdapter) UnmergedItems(ctx context.Context, limit int) ([]*model.ItemLine, error) {
	rows, err := a.db.QueryContext(ctx, queryUnmergedItems, limit)
	if err != nil {
		return nil, fmt.Errorf("unmerged items: %w", err)
	}
	defer rows.Close()

	var items []*model.ItemLine
	for rows.Next() {
		it, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unmerged items: iterate: %w", err)
	}

	return items, nil
}

// CountItemsAwaitingFacts reports lines deferred behind their event.
func (a *ItemAdapter) CountItemsAwaitingFacts(ctx context.Context) (int, error) {
	var count int
	if err := a.db.QueryRowContext(ctx, queryCountItemsAwaitingFacts).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items awaiting facts: %w", err)
	}
	return count, nil
}

// LatestItemSnapshots returns the highest-sequence line per item id.
func (a *ItemAdapter) LatestItemSnapshots(ctx context.Context, itemIDs []string) (map[string]*model.ItemLine, error) {
	if len(itemIDs) == 0 {
		return map[string]*model.ItemLine{}, nil
	}

	rows, err := a.db.QueryContext(ctx, queryLatestItemSnapshots, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("latest item snapshots: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*model.ItemLine, len(itemIDs))
	for rows.Next() {
		it, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		if it.ItemID != nil {
			result[*it.ItemID] = it
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest item snapshots: iterate: %w", err)
	}

	return result, nil
}
