// Package outbox provides the durable local queue of not-yet-confirmed
// progress events. Events survive process restarts and offline periods and
// are removed only once the server confirms them by clientEventId, or when
// superseded by a newer event for the same (module, lesson) pair.
package outbox

import (
	"time"

	"github.com/ventilearn/ventilearn/internal/progress"
)

// Event is a durable, at-least-once-delivered intent to update progress.
// ClientEventID is the idempotency key the server confirms receipt by.
type Event struct {
	ClientEventID   string            `yaml:"client_event_id"`
	ModuleID        string            `yaml:"module_id"`
	LessonID        string            `yaml:"lesson_id"`
	Progress        float64           `yaml:"progress"`
	Completed       bool              `yaml:"completed"`
	TimeSpentDelta  int               `yaml:"time_spent_delta"`
	Score           *float64          `yaml:"score,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
	ClientUpdatedAt time.Time         `yaml:"client_updated_at"`
	EnqueuedAt      time.Time         `yaml:"enqueued_at"`
	Attempts        int               `yaml:"attempts"`
}

// ServerResult is the reconciliation metadata recorded when the server
// acknowledges an event.
type ServerResult struct {
	ServerUpdatedAt time.Time `yaml:"server_updated_at"`
	Merged          bool      `yaml:"merged"`
}

// Store is the durable, ordered queue of outbox events.
//
// Enqueue never fails the caller: queueing must never break the optimistic
// path, so persistence problems are logged and the event is kept in memory.
// DequeueConfirmed and MarkConfirmed are idempotent.
type Store interface {
	Enqueue(event Event)
	DequeueConfirmed(clientEventID string)
	ListPending() []Event
	MarkConfirmed(clientEventID string, result ServerResult)
}

// coalesce merges a newer event for the same (module, lesson) pair into an
// already-queued one. The queued position is preserved, the maximum progress
// value wins and time deltas are summed so accumulated time is never lost.
func coalesce(queued, newer Event) Event {
	merged := queued

	merged.ClientEventID = newer.ClientEventID
	if newer.Progress > merged.Progress {
		merged.Progress = newer.Progress
	}
	merged.Completed = progress.IsComplete(merged.Progress)
	merged.TimeSpentDelta += newer.TimeSpentDelta
	if newer.Score != nil {
		score := *newer.Score
		merged.Score = &score
	}
	if len(newer.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string, len(newer.Metadata))
		}
		for k, v := range newer.Metadata {
			merged.Metadata[k] = v
		}
	}
	if newer.ClientUpdatedAt.After(merged.ClientUpdatedAt) {
		merged.ClientUpdatedAt = newer.ClientUpdatedAt
	}
	merged.Attempts = 0

	return merged
}
