package postgres

import (
	"fmt"

	"github.com/kiln-data/shopfunnel/internal/core/model"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a silver_events row (full column list including
// ingest_seq). Compatible with sql.Row and sql.Rows.
func scanEventRow(row scanner) (*model.EventRecord, error) {
	var evt model.EventRecord
	err := row.Scan(
		&evt.EventID,
		&evt.MessageID,
		&evt.EventTimestamp,
		&evt.EventTimestampMicros,
		&evt.UserID,
		&evt.EventName,
		&evt.Platform,
		&evt.ReplayTimestamp,
		&evt.ReceivedAt,
		&evt.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}
	return &evt, nil
}

// scanItemRow scans a silver_items row (itemColumns order).
func scanItemRow(row scanner) (*model.ItemLine, error) {
	var it model.ItemLine
	err := row.Scan(
		&it.ItemRecordID,
		&it.EventID,
		&it.ItemOffset,
		&it.ItemID,
		&it.ItemName,
		&it.ItemBrand,
		&it.ItemVariant,
		&it.ItemCategory,
		&it.ItemCategory2,
		&it.ItemCategory3,
		&it.ItemCategory4,
		&it.ItemCategory5,
		&it.PriceInUSD,
		&it.Price,
		&it.Quantity,
		&it.ItemRevenueInUSD,
		&it.ItemRevenue,
		&it.ItemRefundInUSD,
		&it.ItemRefund,
		&it.Coupon,
		&it.Affiliation,
		&it.LocationID,
		&it.ItemListID,
		&it.ItemListName,
		&it.ItemListIndex,
		&it.PromotionID,
		&it.PromotionName,
		&it.CreativeName,
		&it.CreativeSlot,
		&it.InStock,
		&it.Discounts,
		&it.DiscountAmount,
		&it.TotalPrice,
		&it.NumberOfInstallments,
		&it.InstallmentPrice,
		&it.LineSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item row: %w", err)
	}
	return &it, nil
}
