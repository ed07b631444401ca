package outbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(id, lessonID string, fraction float64, timeSpent int) Event {
	return Event{
		ClientEventID:   id,
		ModuleID:        "vent-basics",
		LessonID:        lessonID,
		Progress:        fraction,
		TimeSpentDelta:  timeSpent,
		ClientUpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFileStore_Enqueue(t *testing.T) {
	t.Run("events for different lessons queue in order", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "outbox.yml"))
		require.NoError(t, err)

		store.Enqueue(testEvent("e1", "vb-01", 0.3, 10))
		store.Enqueue(testEvent("e2", "vb-02", 0.5, 20))

		pending := store.ListPending()
		require.Len(t, pending, 2)
		assert.Equal(t, "e1", pending[0].ClientEventID)
		assert.Equal(t, "e2", pending[1].ClientEventID)
	})

	t.Run("same lesson coalesces into the queued event", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "outbox.yml"))
		require.NoError(t, err)

		first := testEvent("e1", "vb-01", 0.6, 30)
		first.Attempts = 2
		store.Enqueue(first)
		store.Enqueue(testEvent("e2", "vb-02", 0.1, 5))

		newer := testEvent("e3", "vb-01", 0.4, 15)
		newer.ClientUpdatedAt = first.ClientUpdatedAt.Add(10 * time.Second)
		store.Enqueue(newer)

		pending := store.ListPending()
		require.Len(t, pending, 2)

		merged := pending[0]
		assert.Equal(t, "e3", merged.ClientEventID, "newest event id wins")
		assert.Equal(t, 0.6, merged.Progress, "maximum progress wins")
		assert.Equal(t, 45, merged.TimeSpentDelta, "time deltas sum")
		assert.Equal(t, newer.ClientUpdatedAt, merged.ClientUpdatedAt)
		assert.Equal(t, 0, merged.Attempts, "coalescing resets the attempt count")
	})

	t.Run("confirmed events are not coalesce targets", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "outbox.yml"))
		require.NoError(t, err)

		store.Enqueue(testEvent("e1", "vb-01", 0.6, 30))
		store.MarkConfirmed("e1", ServerResult{Merged: true})

		store.Enqueue(testEvent("e2", "vb-01", 0.7, 10))

		pending := store.ListPending()
		require.Len(t, pending, 1)
		assert.Equal(t, "e2", pending[0].ClientEventID)
		assert.Equal(t, 10, pending[0].TimeSpentDelta)
	})
}

func TestFileStore_MarkConfirmedAndDequeue(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "outbox.yml"))
	require.NoError(t, err)

	store.Enqueue(testEvent("e1", "vb-01", 0.3, 10))
	store.Enqueue(testEvent("e2", "vb-02", 0.5, 20))

	store.MarkConfirmed("e1", ServerResult{
		ServerUpdatedAt: time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
		Merged:          true,
	})
	pending := store.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "e2", pending[0].ClientEventID)

	store.DequeueConfirmed("e1")
	store.DequeueConfirmed("e1") // idempotent
	store.DequeueConfirmed("unknown")

	pending = store.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "e2", pending[0].ClientEventID)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.yml")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	score := 0.9
	event := testEvent("e1", "vb-01", 0.8, 40)
	event.Score = &score
	event.Metadata = map[string]string{"source": "quiz"}
	store.Enqueue(event)
	store.Enqueue(testEvent("e2", "vb-02", 0.2, 10))
	store.MarkConfirmed("e2", ServerResult{Merged: true})

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	pending := reopened.ListPending()
	require.Len(t, pending, 1)
	got := pending[0]
	assert.Equal(t, "e1", got.ClientEventID)
	assert.Equal(t, 0.8, got.Progress)
	assert.Equal(t, 40, got.TimeSpentDelta)
	require.NotNil(t, got.Score)
	assert.Equal(t, 0.9, *got.Score)
	assert.Equal(t, map[string]string{"source": "quiz"}, got.Metadata)
	assert.False(t, got.EnqueuedAt.IsZero())
}
