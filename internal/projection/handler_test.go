package projection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiln-data/shopfunnel/internal/pipeline"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	engagement []*EngagementRow
	summary    []*EventSummary
	err        error

	lastQuery EngagementQuery
}

func (f *fakeStore) Engagement(_ context.Context, q EngagementQuery) ([]*EngagementRow, error) {
	f.lastQuery = q
	return f.engagement, f.err
}

func (f *fakeStore) EventSummary(_ context.Context) ([]*EventSummary, error) {
	return f.summary, f.err
}

func newTestRouter(store *fakeStore, history *pipeline.History) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewService(store, history).RegisterRoutes(r)
	return r
}

func TestService_HandleEngagement(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	listName := "homepage_carousel"

	tests := []struct {
		name           string
		url            string
		store          *fakeStore
		expectedStatus int
		assertions     func(t *testing.T, store *fakeStore, body map[string]any)
	}{
		{
			name: "returns rows with default limit",
			url:  "/v1/engagement",
			store: &fakeStore{engagement: []*EngagementRow{{
				EventItemID:    "ei-1",
				EventID:        "evt-1",
				ItemListName:   &listName,
				UserID:         "user-1",
				SessionID:      "sess-1",
				EventTimestamp: now,
			}}},
			expectedStatus: http.StatusOK,
			assertions: func(t *testing.T, store *fakeStore, body map[string]any) {
				require.Equal(t, float64(1), body["count"])
				require.Equal(t, 100, store.lastQuery.Limit)
			},
		},
		{
			name:           "filters pass through",
			url:            "/v1/engagement?list_name=homepage_carousel&event_name=view_item&limit=5",
			store:          &fakeStore{},
			expectedStatus: http.StatusOK,
			assertions: func(t *testing.T, store *fakeStore, _ map[string]any) {
				require.Equal(t, EngagementQuery{ListName: "homepage_carousel", EventName: "view_item", Limit: 5}, store.lastQuery)
			},
		},
		{
			name:           "limit out of range returns 400",
			url:            "/v1/engagement?limit=100000",
			store:          &fakeStore{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "store error returns 500",
			url:            "/v1/engagement",
			store:          &fakeStore{err: errors.New("db failure")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(tc.store, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.expectedStatus, rec.Code)
			if tc.assertions != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				tc.assertions(t, tc.store, body)
			}
		})
	}
}

func TestService_HandleSummary(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{summary: []*EventSummary{{
		EventName:      "purchase",
		EventCount:     10,
		UniqueUsers:    4,
		UniqueSessions: 6,
		FirstEventAt:   now.Add(-time.Hour),
		LastEventAt:    now,
	}}}
	router := newTestRouter(store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []*EventSummary `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, "purchase", body.Events[0].EventName)
	require.Equal(t, int64(6), body.Events[0].UniqueSessions)
}

func TestService_HandleRuns(t *testing.T) {
	history := pipeline.NewHistory(10)
	history.Add(pipeline.RunStats{EnvelopesRead: 1})
	history.Add(pipeline.RunStats{EnvelopesRead: 2})

	router := newTestRouter(&fakeStore{}, history)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []pipeline.RunStats `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, 2, body.Runs[0].EnvelopesRead)
}
