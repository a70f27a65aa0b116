// Package session derives user sessions from timestamp gaps.
//
// Assignment is a pure function of the events it is given. Callers
// pass each user's full normalized history so the session ordinal is
// cumulative across runs: replaying the same history reproduces the
// assignments already committed to the fact table, and new trailing
// events extend them. Committed fact rows are never rewritten, so a
// late-arriving event that lands inside an earlier gap only affects
// assignments from that point on.
package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"

	"github.com/kiln-data/shopfunnel/internal/core/model"
)

// DefaultGap is the inactivity threshold that closes a session.
const DefaultGap = 30 * time.Minute

// Assign partitions each user's event timeline into sessions and
// returns the session id per event id.
//
// Per user, events are sorted ascending by timestamp (event id breaks
// ties deterministically). An event starts a new session when it is
// the user's first event or the gap since the previous event exceeds
// the threshold. The session ordinal is the cumulative count of
// session starts, so the same input always yields the same ids.
func Assign(events []*model.EventRecord, gap time.Duration) map[string]string {
	if gap <= 0 {
		gap = DefaultGap
	}

	byUser := make(map[string][]*model.EventRecord)
	for _, evt := range events {
		byUser[evt.UserID] = append(byUser[evt.UserID], evt)
	}

	assignments := make(map[string]string, len(events))
	for userID, userEvents := range byUser {
		sort.Slice(userEvents, func(i, j int) bool {
			if userEvents[i].EventTimestamp.Equal(userEvents[j].EventTimestamp) {
				return userEvents[i].EventID < userEvents[j].EventID
			}
			return userEvents[i].EventTimestamp.Before(userEvents[j].EventTimestamp)
		})

		ordinal := 0
		var prev time.Time
		for i, evt := range userEvents {
			if i == 0 || evt.EventTimestamp.Sub(prev) > gap {
				ordinal++
			}
			assignments[evt.EventID] = ID(userID, ordinal)
			prev = evt.EventTimestamp
		}
	}

	return assignments
}

// ID derives the deterministic session id for (userID, ordinal).
// SHA-256 over the user id, a zero separator, and the big-endian
// ordinal; the first 16 bytes hex-encoded give a stable fixed-length
// id that cannot collide across users.
func ID(userID string, ordinal int) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})

	var ord [8]byte
	binary.BigEndian.PutUint64(ord[:], uint64(ordinal))
	h.Write(ord[:])

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
