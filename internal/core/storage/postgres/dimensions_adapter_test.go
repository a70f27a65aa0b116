package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDimensionAdapter_StaleUserSessionDeltas(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryStaleUserSessionDeltas)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "count"}).
			AddRow("user-1", int64(2)).
			AddRow("user-2", int64(1)))

	adapter := NewDimensionAdapter(db)
	deltas, err := adapter.StaleUserSessionDeltas(context.Background())

	require.NoError(t, err)
	require.Equal(t, map[string]int64{"user-1": 2, "user-2": 1}, deltas)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionAdapter_InsertDimUsers_CountsRowsWritten(t *testing.T) {
	seenAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertDimUser))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertDimUser)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertDimUser)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	adapter := NewDimensionAdapter(db)
	inserted, err := adapter.InsertDimUsers(context.Background(), []*model.DimUser{
		{UserSK: "sk-1", UserID: "user-1", FirstSeenAt: seenAt, LastSeenAt: seenAt, TotalSessions: 1, IsCurrent: true},
		{UserSK: "sk-2", UserID: "user-2", FirstSeenAt: seenAt, LastSeenAt: seenAt, TotalSessions: 1, IsCurrent: true},
	})

	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionAdapter_InsertDimItems_CountsRowsWritten(t *testing.T) {
	seenAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertDimItem))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertDimItem)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	adapter := NewDimensionAdapter(db)
	inserted, err := adapter.InsertDimItems(context.Background(), []*model.DimItem{
		{ItemSK: "sk-1", ItemID: "sku-1", FirstSeenAt: seenAt, LastSeenAt: seenAt, IsCurrent: true},
	})

	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionAdapter_RefreshDimUsers(t *testing.T) {
	seenAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(queryRefreshDimUser))
	mock.ExpectExec(regexp.QuoteMeta(queryRefreshDimUser)).
		WithArgs("user-1", seenAt, "WEB", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryRefreshDimUser)).
		WithArgs("user-2", seenAt, "IOS", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	adapter := NewDimensionAdapter(db)
	refreshed, err := adapter.RefreshDimUsers(context.Background(), []*model.DimUserRefresh{
		{UserID: "user-1", LastPlatform: "WEB", SessionDelta: 2},
		{UserID: "user-2", LastPlatform: "IOS", SessionDelta: 1},
	}, seenAt)

	require.NoError(t, err)
	require.Equal(t, 2, refreshed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionAdapter_RefreshDimItems(t *testing.T) {
	seenAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	itemIDs := []string{"sku-1", "sku-2"}

	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryRefreshDimItems)).
		WithArgs(pq.Array(itemIDs), seenAt).
		WillReturnResult(sqlmock.NewResult(0, 2))

	adapter := NewDimensionAdapter(db)
	refreshed, err := adapter.RefreshDimItems(context.Background(), itemIDs, seenAt)

	require.NoError(t, err)
	require.Equal(t, 2, refreshed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimensionAdapter_AssertCurrencyInvariant(t *testing.T) {
	tests := []struct {
		name       string
		dupItems   int
		dupUsers   int
		assertions func(t *testing.T, err error)
	}{
		{
			name: "clean dimensions pass",
			assertions: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:     "duplicate current rows are fatal",
			dupItems: 1,
			assertions: func(t *testing.T, err error) {
				require.ErrorIs(t, err, storage.ErrIntegrity)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta(queryCountDuplicateCurrentItems)).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tc.dupItems))
			mock.ExpectQuery(regexp.QuoteMeta(queryCountDuplicateCurrentUsers)).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tc.dupUsers))

			adapter := NewDimensionAdapter(db)
			tc.assertions(t, adapter.AssertCurrencyInvariant(context.Background()))

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
