package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/kiln-data/shopfunnel/internal/bronze"
	"github.com/stretchr/testify/require"
)

func TestFlattener_Run_MissingMessageIDCountsAsSkipped(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// An envelope without a message id can never resolve to a parent
	// event, so its item lines are accounted for as skipped instead of
	// vanishing from the stage counters.
	anonymous := envelope("", "user-1", "view_item", "WEB", base,
		bronze.Item{ItemID: strp("sku-1")},
		bronze.Item{ItemID: strp("sku-2")})
	normal := envelope("msg-1", "user-1", "view_item", "WEB", base,
		bronze.Item{ItemID: strp("sku-3")})

	store := newMemStore()
	_, err := NewNormalizer(store).Run(context.Background(),
		[]*bronze.Envelope{anonymous, normal}, base)
	require.NoError(t, err)

	stats, err := NewFlattener(store, store, nil).Run(context.Background(),
		[]*bronze.Envelope{anonymous, normal})
	require.NoError(t, err)

	require.Equal(t, 3, stats.Processed)
	require.Equal(t, 2, stats.Skipped)
	require.Equal(t, 1, stats.Inserted)
	require.Zero(t, stats.Deferred)
	require.Len(t, store.items, 1)
}
