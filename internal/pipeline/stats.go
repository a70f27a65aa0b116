package pipeline

import (
	"sync"
	"time"
)

// StageStats counts one stage's work in a single run.
type StageStats struct {
	// Processed is the number of candidate records examined.
	Processed int `json:"processed"`
	// Inserted is the number of rows actually written.
	Inserted int `json:"inserted"`
	// Skipped is the number of candidates already present (dedup).
	Skipped int `json:"skipped"`
	// Deferred is the number of records excluded because upstream
	// state has not caught up yet; eligible on a future run.
	Deferred int `json:"deferred"`
}

// DimensionStats counts one dimension pass in a single run.
type DimensionStats struct {
	Refreshed int `json:"refreshed"`
	Inserted  int `json:"inserted"`
}

// RunStats is the per-run observability record: counts of rows
// processed, inserted and skipped per stage.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	EnvelopesRead      int `json:"envelopes_read"`
	EnvelopesMalformed int `json:"envelopes_malformed"`

	Events     StageStats `json:"events"`
	Items      StageStats `json:"items"`
	FactEvents StageStats `json:"fact_events"`
	FactItems  StageStats `json:"fact_items"`

	DimItems DimensionStats `json:"dim_items"`
	DimUsers DimensionStats `json:"dim_users"`
}

// History keeps a bounded in-memory record of recent runs for the
// projection API. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	limit int
	runs  []RunStats
}

// NewHistory creates a history bounded to limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Add records a completed run, evicting the oldest beyond the limit.
func (h *History) Add(stats RunStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append(h.runs, stats)
	if len(h.runs) > h.limit {
		h.runs = h.runs[len(h.runs)-h.limit:]
	}
}

// Recent returns up to n runs, most recent first.
func (h *History) Recent(n int) []RunStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.runs) {
		n = len(h.runs)
	}

	out := make([]RunStats, 0, n)
	for i := len(h.runs) - 1; i >= len(h.runs)-n; i-- {
		out = append(out, h.runs[i])
	}
	return out
}
