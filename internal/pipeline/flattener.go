package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiln-data/shopfunnel/internal/bronze"
	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/params"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
)

// Flattener explodes each envelope's item array into one line per item
// and flattens the dynamic parameter bag into typed columns.
//
// Lines whose envelope has no normalized event yet are deferred, not
// dropped: they become eligible once the normalizer catches up, which
// is why the flattener always runs after the normalizer within a run.
type Flattener struct {
	events  storage.EventStore
	items   storage.ItemStore
	mapping *params.Mapping
}

// NewFlattener creates a flattener with the given parameter mapping.
func NewFlattener(events storage.EventStore, items storage.ItemStore, mapping *params.Mapping) *Flattener {
	if mapping == nil {
		mapping = params.DefaultMapping()
	}
	return &Flattener{events: events, items: items, mapping: mapping}
}

// Run flattens item arrays of the given envelopes. The dedup guard is
// the unique (event_id, item_offset) pair in the item store.
func (f *Flattener) Run(ctx context.Context, envelopes []*bronze.Envelope) (StageStats, error) {
	var stats StageStats

	withItems := make([]*bronze.Envelope, 0, len(envelopes))
	messageIDs := make([]string, 0, len(envelopes))
	for _, env := range envelopes {
		if len(env.Body.Items) == 0 {
			continue
		}
		if env.MessageID == "" {
			// Without a message id no parent event can ever exist, so
			// these lines are skipped outright rather than deferred.
			stats.Processed += len(env.Body.Items)
			stats.Skipped += len(env.Body.Items)
			continue
		}
		withItems = append(withItems, env)
		messageIDs = append(messageIDs, env.MessageID)
	}

	eventIDs, err := f.events.EventIDsByMessageID(ctx, messageIDs)
	if err != nil {
		return stats, fmt.Errorf("flattener: %w", err)
	}

	var lines []*model.ItemLine
	for _, env := range withItems {
		stats.Processed += len(env.Body.Items)

		eventID, ok := eventIDs[env.MessageID]
		if !ok {
			// Parent event not normalized yet; retry next run.
			stats.Deferred += len(env.Body.Items)
			continue
		}

		for offset, item := range env.Body.Items {
			lines = append(lines, f.flatten(eventID, offset, &item))
		}
	}

	inserted, err := f.items.InsertItems(ctx, lines)
	if err != nil {
		return stats, fmt.Errorf("flattener: %w", err)
	}

	stats.Inserted = inserted
	stats.Skipped += len(lines) - inserted

	slog.Info("[Flattener] Stage complete",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"deferred", stats.Deferred,
	)
	return stats, nil
}

// flatten builds one ItemLine from a raw item at the given offset.
// Numeric casts are best-effort; the parameter bag goes through the
// alias mapping with deterministic precedence.
func (f *Flattener) flatten(eventID string, offset int, item *bronze.Item) *model.ItemLine {
	line := &model.ItemLine{
		ItemRecordID: uuid.NewString(),
		EventID:      eventID,
		ItemOffset:   offset,

		ItemID:        item.ItemID,
		ItemName:      item.ItemName,
		ItemBrand:     item.ItemBrand,
		ItemVariant:   item.ItemVariant,
		ItemCategory:  item.ItemCategory,
		ItemCategory2: item.ItemCategory2,
		ItemCategory3: item.ItemCategory3,
		ItemCategory4: item.ItemCategory4,
		ItemCategory5: item.ItemCategory5,

		PriceInUSD:       params.CoerceDecimal(item.PriceInUSD),
		Price:            params.CoerceDecimal(item.Price),
		Quantity:         params.CoerceInt64(item.Quantity),
		ItemRevenueInUSD: params.CoerceDecimal(item.ItemRevenueInUSD),
		ItemRevenue:      params.CoerceDecimal(item.ItemRevenue),
		ItemRefundInUSD:  params.CoerceDecimal(item.ItemRefundInUSD),
		ItemRefund:       params.CoerceDecimal(item.ItemRefund),

		Coupon:      item.Coupon,
		Affiliation: item.Affiliation,
		LocationID:  item.LocationID,

		ItemListID:    item.ItemListID,
		ItemListName:  item.ItemListName,
		ItemListIndex: params.CoerceInt64(item.ItemListIndex),

		PromotionID:   item.PromotionID,
		PromotionName: item.PromotionName,
		CreativeName:  item.CreativeName,
		CreativeSlot:  item.CreativeSlot,
	}

	// List position defaults to the array offset.
	if line.ItemListIndex == nil {
		idx := int64(offset)
		line.ItemListIndex = &idx
	}

	flattened := f.mapping.Flatten(item.ItemParams)
	if v, ok := flattened[params.ColInStock]; ok {
		line.InStock = v.Int
	}
	if v, ok := flattened[params.ColDiscounts]; ok {
		line.Discounts = v.Str
	}
	if v, ok := flattened[params.ColDiscountAmount]; ok {
		line.DiscountAmount = v.Dec
	}
	if v, ok := flattened[params.ColTotalPrice]; ok {
		line.TotalPrice = v.Dec
	}
	if v, ok := flattened[params.ColNumberOfInstallments]; ok {
		line.NumberOfInstallments = v.Int
	}
	if v, ok := flattened[params.ColInstallmentPrice]; ok {
		line.InstallmentPrice = v.Str
	}

	return line
}
