package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestEventAdapter_InsertEvents(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	events := []*model.EventRecord{
		{
			EventID:              "evt-1",
			MessageID:            "msg-1",
			EventTimestamp:       now,
			EventTimestampMicros: now.UnixMicro(),
			UserID:               "user-1",
			EventName:            "view_item",
			Platform:             "WEB",
			ReceivedAt:           now,
		},
		{
			EventID:              "evt-2",
			MessageID:            "msg-2",
			EventTimestamp:       now,
			EventTimestampMicros: now.UnixMicro(),
			UserID:               "user-1",
			EventName:            "purchase",
			Platform:             "WEB",
			ReceivedAt:           now,
		},
	}

	tests := []struct {
		name       string
		mockResult func(mock sqlmock.Sqlmock)
		assertions func(t *testing.T, inserted int, err error)
	}{
		{
			name: "counts only rows actually written",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectPrepare(regexp.QuoteMeta(queryInsertEvent))
				mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
					WithArgs("evt-1", "msg-1", now, now.UnixMicro(), "user-1", "view_item", "WEB", nil, now).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
					WithArgs("evt-2", "msg-2", now, now.UnixMicro(), "user-1", "purchase", "WEB", nil, now).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
			assertions: func(t *testing.T, inserted int, err error) {
				require.NoError(t, err)
				require.Equal(t, 1, inserted)
			},
		},
		{
			name: "exec failure rolls back",
			mockResult: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectPrepare(regexp.QuoteMeta(queryInsertEvent))
				mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			assertions: func(t *testing.T, inserted int, err error) {
				require.Error(t, err)
				require.ErrorContains(t, err, "msg-1")
				require.Zero(t, inserted)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			defer db.Close()

			tc.mockResult(mock)

			adapter := NewEventAdapter(db)
			inserted, err := adapter.InsertEvents(context.Background(), events)
			tc.assertions(t, inserted, err)

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventAdapter_InsertEvents_EmptyBatchSkipsTx(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	adapter := NewEventAdapter(db)
	inserted, err := adapter.InsertEvents(context.Background(), nil)

	require.NoError(t, err)
	require.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_EventIDsByMessageID(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	messageIDs := []string{"msg-1", "msg-2", "msg-missing"}
	mock.ExpectQuery(regexp.QuoteMeta(queryEventIDsByMessageID)).
		WithArgs(pq.Array(messageIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "event_id"}).
			AddRow("msg-1", "evt-1").
			AddRow("msg-2", "evt-2"))

	adapter := NewEventAdapter(db)
	resolved, err := adapter.EventIDsByMessageID(context.Background(), messageIDs)

	require.NoError(t, err)
	require.Equal(t, map[string]string{"msg-1": "evt-1", "msg-2": "evt-2"}, resolved)
	require.NotContains(t, resolved, "msg-missing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_UnmergedEvents(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	defer db.Close()

	columns := []string{
		"event_id", "message_id", "event_timestamp", "event_timestamp_micros",
		"user_id", "event_name", "platform", "replay_timestamp", "received_at", "ingest_seq",
	}
	mock.ExpectQuery(regexp.QuoteMeta(queryUnmergedEvents)).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("evt-1", "msg-1", now, now.UnixMicro(), "user-1", "view_item", "WEB", nil, now, int64(7)))

	adapter := NewEventAdapter(db)
	events, err := adapter.UnmergedEvents(context.Background(), 100)

	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "evt-1", events[0].EventID)
	require.Equal(t, int64(7), events[0].IngestSeq)
	require.Nil(t, events[0].ReplayTimestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_UserEventHistory(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	defer db.Close()

	columns := []string{
		"event_id", "message_id", "event_timestamp", "event_timestamp_micros",
		"user_id", "event_name", "platform", "replay_timestamp", "received_at", "ingest_seq",
	}
	userIDs := []string{"user-1"}
	mock.ExpectQuery(regexp.QuoteMeta(queryUserEventHistory)).
		WithArgs(pq.Array(userIDs)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("evt-1", "msg-1", now, now.UnixMicro(), "user-1", "view_item", "WEB", nil, now, int64(1)).
			AddRow("evt-2", "msg-2", now.Add(2*time.Hour), now.Add(2*time.Hour).UnixMicro(), "user-1", "purchase", "WEB", nil, now, int64(2)))

	adapter := NewEventAdapter(db)
	events, err := adapter.UserEventHistory(context.Background(), userIDs)

	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-1", events[0].EventID)
	require.Equal(t, "evt-2", events[1].EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_UserEventHistory_EmptyInputSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	adapter := NewEventAdapter(db)
	events, err := adapter.UserEventHistory(context.Background(), nil)

	require.NoError(t, err)
	require.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_UserActivity(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	userIDs := []string{"user-1"}
	mock.ExpectQuery(regexp.QuoteMeta(queryUserActivity)).
		WithArgs(pq.Array(userIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "first_platform", "last_platform"}).
			AddRow("user-1", "ANDROID", "WEB"))

	adapter := NewEventAdapter(db)
	activity, err := adapter.UserActivity(context.Background(), userIDs)

	require.NoError(t, err)
	require.Equal(t, model.UserActivity{FirstPlatform: "ANDROID", LastPlatform: "WEB"}, activity["user-1"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}
