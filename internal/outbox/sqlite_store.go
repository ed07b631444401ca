package outbox

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outbox_events (
	position          INTEGER PRIMARY KEY AUTOINCREMENT,
	client_event_id   TEXT NOT NULL UNIQUE,
	module_id         TEXT NOT NULL,
	lesson_id         TEXT NOT NULL,
	progress          REAL NOT NULL,
	completed         INTEGER NOT NULL,
	time_spent_delta  INTEGER NOT NULL,
	score             REAL,
	metadata          TEXT,
	client_updated_at TEXT NOT NULL,
	enqueued_at       TEXT NOT NULL,
	attempts          INTEGER NOT NULL DEFAULT 0,
	confirmed_at      TEXT,
	server_updated_at TEXT,
	merged            INTEGER
);
CREATE INDEX IF NOT EXISTS idx_outbox_events_lesson ON outbox_events (module_id, lesson_id);
`

type eventRow struct {
	Position        int64           `db:"position"`
	ClientEventID   string          `db:"client_event_id"`
	ModuleID        string          `db:"module_id"`
	LessonID        string          `db:"lesson_id"`
	Progress        float64         `db:"progress"`
	Completed       int             `db:"completed"`
	TimeSpentDelta  int             `db:"time_spent_delta"`
	Score           sql.NullFloat64 `db:"score"`
	Metadata        sql.NullString  `db:"metadata"`
	ClientUpdatedAt string          `db:"client_updated_at"`
	EnqueuedAt      string          `db:"enqueued_at"`
	Attempts        int             `db:"attempts"`
	ConfirmedAt     sql.NullString  `db:"confirmed_at"`
	ServerUpdatedAt sql.NullString  `db:"server_updated_at"`
	Merged          sql.NullInt64   `db:"merged"`
}

// SQLiteStore persists the queue in a learner-local SQLite database.
// Events that cannot be written are held in an in-memory overflow so a
// database failure never loses a queued intent for the process lifetime.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time

	mu       sync.Mutex
	overflow []Event
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the schema and returns a SQLite-backed store.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("db.Exec(outbox schema) > %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Enqueue inserts an event, or coalesces it into the queued unconfirmed
// event for the same (module, lesson) pair, preserving its queue position.
func (s *SQLiteStore) Enqueue(event Event) {
	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = s.now()
	}

	var existing eventRow
	err := s.db.Get(&existing,
		"SELECT * FROM outbox_events WHERE module_id = ? AND lesson_id = ? AND confirmed_at IS NULL",
		event.ModuleID, event.LessonID)
	if err == nil {
		queued, decodeErr := fromRow(existing)
		if decodeErr != nil {
			slog.Default().Warn("outbox: replacing undecodable queued row", "clientEventID", existing.ClientEventID, "error", decodeErr)
			queued = event
		}
		merged := coalesce(queued, event)
		if execErr := s.update(existing.Position, merged); execErr != nil {
			// The row still holds the older delta, so only the newer
			// event is held back.
			slog.Default().Warn("outbox: failed to coalesce event, keeping it in memory", "lessonID", event.LessonID, "error", execErr)
			s.keepInMemory(event)
		}
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Default().Warn("outbox: failed to read queued event", "lessonID", event.LessonID, "error", err)
	}
	if execErr := s.insert(event); execErr != nil {
		slog.Default().Warn("outbox: failed to enqueue event, keeping it in memory", "lessonID", event.LessonID, "error", execErr)
		s.keepInMemory(event)
	}
}

// keepInMemory holds an event the database refused, coalescing with any
// overflow entry already queued for the same lesson.
func (s *SQLiteStore) keepInMemory(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.overflow {
		if s.overflow[i].ModuleID == event.ModuleID && s.overflow[i].LessonID == event.LessonID {
			s.overflow[i] = coalesce(s.overflow[i], event)
			return
		}
	}
	s.overflow = append(s.overflow, event)
}

// dropFromOverflow removes an overflow entry by its idempotency key.
func (s *SQLiteStore) dropFromOverflow(clientEventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.overflow {
		if s.overflow[i].ClientEventID == clientEventID {
			s.overflow = append(s.overflow[:i], s.overflow[i+1:]...)
			return
		}
	}
}

func (s *SQLiteStore) insert(event Event) error {
	_, err := s.db.Exec(
		`INSERT INTO outbox_events
			(client_event_id, module_id, lesson_id, progress, completed, time_spent_delta, score, metadata, client_updated_at, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ClientEventID, event.ModuleID, event.LessonID, event.Progress, boolToInt(event.Completed),
		event.TimeSpentDelta, scoreValue(event.Score), metadataValue(event.Metadata),
		formatTime(event.ClientUpdatedAt), formatTime(event.EnqueuedAt), event.Attempts)
	if err != nil {
		return fmt.Errorf("db.Exec(insert outbox_event) > %w", err)
	}
	return nil
}

func (s *SQLiteStore) update(position int64, event Event) error {
	_, err := s.db.Exec(
		`UPDATE outbox_events
		SET client_event_id = ?, progress = ?, completed = ?, time_spent_delta = ?, score = ?, metadata = ?, client_updated_at = ?, attempts = ?
		WHERE position = ?`,
		event.ClientEventID, event.Progress, boolToInt(event.Completed), event.TimeSpentDelta,
		scoreValue(event.Score), metadataValue(event.Metadata), formatTime(event.ClientUpdatedAt), event.Attempts,
		position)
	if err != nil {
		return fmt.Errorf("db.Exec(update outbox_event) > %w", err)
	}
	return nil
}

// DequeueConfirmed removes an event by its idempotency key. No-op for
// unknown ids.
func (s *SQLiteStore) DequeueConfirmed(clientEventID string) {
	if _, err := s.db.Exec("DELETE FROM outbox_events WHERE client_event_id = ?", clientEventID); err != nil {
		slog.Default().Warn("outbox: failed to dequeue event", "clientEventID", clientEventID, "error", err)
	}
	s.dropFromOverflow(clientEventID)
}

// ListPending returns all unconfirmed events in enqueue order, durable rows
// first, then any in-memory overflow.
func (s *SQLiteStore) ListPending() []Event {
	var rows []eventRow
	if err := s.db.Select(&rows,
		"SELECT * FROM outbox_events WHERE confirmed_at IS NULL ORDER BY position"); err != nil {
		slog.Default().Warn("outbox: failed to list pending events", "error", err)
	}

	var pending []Event
	for _, row := range rows {
		event, err := fromRow(row)
		if err != nil {
			slog.Default().Warn("outbox: skipping undecodable row", "clientEventID", row.ClientEventID, "error", err)
			continue
		}
		pending = append(pending, event)
	}

	s.mu.Lock()
	pending = append(pending, s.overflow...)
	s.mu.Unlock()
	return pending
}

// MarkConfirmed records the server acknowledgement while keeping the row.
// A confirmed overflow entry has no row to keep, so it is simply dropped.
func (s *SQLiteStore) MarkConfirmed(clientEventID string, result ServerResult) {
	if _, err := s.db.Exec(
		"UPDATE outbox_events SET confirmed_at = ?, server_updated_at = ?, merged = ? WHERE client_event_id = ? AND confirmed_at IS NULL",
		formatTime(s.now()), formatTime(result.ServerUpdatedAt), boolToInt(result.Merged), clientEventID); err != nil {
		slog.Default().Warn("outbox: failed to mark event confirmed", "clientEventID", clientEventID, "error", err)
	}
	s.dropFromOverflow(clientEventID)
}

func fromRow(row eventRow) (Event, error) {
	clientUpdatedAt, err := parseTime(row.ClientUpdatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("parseTime(client_updated_at) > %w", err)
	}
	enqueuedAt, err := parseTime(row.EnqueuedAt)
	if err != nil {
		return Event{}, fmt.Errorf("parseTime(enqueued_at) > %w", err)
	}

	event := Event{
		ClientEventID:   row.ClientEventID,
		ModuleID:        row.ModuleID,
		LessonID:        row.LessonID,
		Progress:        row.Progress,
		Completed:       row.Completed != 0,
		TimeSpentDelta:  row.TimeSpentDelta,
		ClientUpdatedAt: clientUpdatedAt,
		EnqueuedAt:      enqueuedAt,
		Attempts:        row.Attempts,
	}
	if row.Score.Valid {
		score := row.Score.Float64
		event.Score = &score
	}
	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &event.Metadata); err != nil {
			return Event{}, fmt.Errorf("json.Unmarshal(metadata) > %w", err)
		}
	}
	return event, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scoreValue(score *float64) any {
	if score == nil {
		return nil
	}
	return *score
}

func metadataValue(metadata map[string]string) any {
	if len(metadata) == 0 {
		return nil
	}
	contents, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return string(contents)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
