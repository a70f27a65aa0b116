package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiln-data/shopfunnel/internal/bronze"
	"github.com/kiln-data/shopfunnel/internal/core/model"
	"github.com/kiln-data/shopfunnel/internal/core/storage"
)

// replayLayouts are tried in order when parsing the replay timestamp.
// Producers emit ISO-8601 with either a Z marker or an explicit offset;
// a bare date-time without zone is treated as UTC.
var replayLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalizer validates and deduplicates raw envelopes into canonical
// event records. Its sole idempotency guard is the unique message_id
// constraint, evaluated against the full persisted store.
type Normalizer struct {
	events storage.EventStore
}

// NewNormalizer creates a normalizer writing to the given event store.
func NewNormalizer(events storage.EventStore) *Normalizer {
	return &Normalizer{events: events}
}

// Run normalizes the given envelopes. Malformed envelopes are skipped
// with a warning; duplicates (by message_id) count as skipped.
func (n *Normalizer) Run(ctx context.Context, envelopes []*bronze.Envelope, now time.Time) (StageStats, error) {
	stats := StageStats{Processed: len(envelopes)}

	records := make([]*model.EventRecord, 0, len(envelopes))
	for _, env := range envelopes {
		record, err := n.normalize(env, now)
		if err != nil {
			slog.Warn("[Normalizer] Skipping invalid envelope",
				"message_id", env.MessageID, "error", err)
			continue
		}
		records = append(records, record)
	}

	inserted, err := n.events.InsertEvents(ctx, records)
	if err != nil {
		return stats, fmt.Errorf("normalizer: %w", err)
	}

	stats.Inserted = inserted
	stats.Skipped = len(records) - inserted

	slog.Info("[Normalizer] Stage complete",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// normalize converts one envelope to an EventRecord, or reports why it
// cannot be normalized.
func (n *Normalizer) normalize(env *bronze.Envelope, now time.Time) (*model.EventRecord, error) {
	if env.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}
	if env.Body.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if env.Body.EventName == "" {
		return nil, fmt.Errorf("event_name is required")
	}
	if env.Body.Platform == "" {
		return nil, fmt.Errorf("platform is required")
	}
	if env.Body.EventTimestamp <= 0 {
		return nil, fmt.Errorf("event_timestamp %d is not a positive epoch micros value", env.Body.EventTimestamp)
	}

	return &model.EventRecord{
		EventID:              uuid.NewString(),
		MessageID:            env.MessageID,
		EventTimestamp:       time.UnixMicro(env.Body.EventTimestamp).UTC(),
		EventTimestampMicros: env.Body.EventTimestamp,
		UserID:               env.Body.UserID,
		EventName:            env.Body.EventName,
		Platform:             env.Body.Platform,
		ReplayTimestamp:      parseReplayTimestamp(env.Body.ReplayTimestamp),
		ReceivedAt:           now,
	}, nil
}

// parseReplayTimestamp coerces the replay marker best-effort:
// unparseable values default to nil rather than failing the envelope.
func parseReplayTimestamp(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	for _, layout := range replayLayouts {
		if ts, err := time.Parse(layout, *raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}
