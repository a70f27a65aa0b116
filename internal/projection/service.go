// Package projection serves the read side: engagement rows from the
// item view, per-event summaries over the fact table, and recent run
// stats from the pipeline's in-memory history.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiln-data/shopfunnel/internal/pipeline"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid projection query")

// Store is the read-side storage the service queries.
type Store interface {
	Engagement(ctx context.Context, q EngagementQuery) ([]*EngagementRow, error)
	EventSummary(ctx context.Context) ([]*EventSummary, error)
}

// Service implements the projection/query layer.
type Service struct {
	store   Store
	history *pipeline.History
}

// NewService creates a projection service over the given store.
func NewService(store Store, history *pipeline.History) *Service {
	return &Service{store: store, history: history}
}

// Engagement returns engagement rows matching the query.
func (s *Service) Engagement(ctx context.Context, q EngagementQuery) ([]*EngagementRow, error) {
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit < 0 || q.Limit > maxLimit {
		return nil, fmt.Errorf("%w: limit must be 1-%d", ErrInvalidQuery, maxLimit)
	}

	rows, err := s.store.Engagement(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query engagement view: %w", err)
	}
	return rows, nil
}

// Summary returns the per-event-name fact aggregates.
func (s *Service) Summary(ctx context.Context) ([]*EventSummary, error) {
	rows, err := s.store.EventSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("query event summary: %w", err)
	}
	return rows, nil
}

// Runs returns up to n recent pipeline runs, most recent first.
func (s *Service) Runs(n int) []pipeline.RunStats {
	if s.history == nil {
		return nil
	}
	return s.history.Recent(n)
}
