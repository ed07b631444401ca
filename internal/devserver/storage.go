// Package devserver is a development stand-in for the external server of
// record. It implements the progress wire contract, including server-side
// last-writer-wins arbitration by clientUpdatedAt and idempotent replay by
// clientEventId.
package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/syncapi"
)

var schemaStatements = []string{`
CREATE TABLE IF NOT EXISTS lesson_progress (
	learner_id         VARCHAR(191) NOT NULL,
	module_id          VARCHAR(191) NOT NULL,
	lesson_id          VARCHAR(191) NOT NULL,
	progress           REAL NOT NULL,
	is_completed       INTEGER NOT NULL,
	time_spent_seconds INTEGER NOT NULL,
	score              REAL,
	metadata           TEXT,
	client_updated_at  TEXT NOT NULL,
	server_updated_at  TEXT NOT NULL,
	PRIMARY KEY (learner_id, module_id, lesson_id)
)`, `
CREATE TABLE IF NOT EXISTS applied_events (
	learner_id      VARCHAR(191) NOT NULL,
	client_event_id VARCHAR(191) NOT NULL,
	applied_at      TEXT NOT NULL,
	PRIMARY KEY (learner_id, client_event_id)
)`}

type progressRow struct {
	LearnerID        string          `db:"learner_id"`
	ModuleID         string          `db:"module_id"`
	LessonID         string          `db:"lesson_id"`
	Progress         float64         `db:"progress"`
	IsCompleted      int             `db:"is_completed"`
	TimeSpentSeconds int             `db:"time_spent_seconds"`
	Score            sql.NullFloat64 `db:"score"`
	Metadata         sql.NullString  `db:"metadata"`
	ClientUpdatedAt  string          `db:"client_updated_at"`
	ServerUpdatedAt  string          `db:"server_updated_at"`
}

// Storage persists lesson progress per learner through sqlx; it works
// against MySQL in deployment and SQLite in tests.
type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStorage initializes the schema and returns the storage.
func NewStorage(db *sqlx.DB) (*Storage, error) {
	for _, statement := range schemaStatements {
		if _, err := db.Exec(statement); err != nil {
			return nil, fmt.Errorf("db.Exec(schema) > %w", err)
		}
	}
	return &Storage{db: db, now: time.Now}, nil
}

// List returns a learner's records, optionally filtered by module and
// lesson, never nil.
func (s *Storage) List(ctx context.Context, learnerID, moduleID, lessonID string) ([]progress.LessonProgress, error) {
	query := "SELECT * FROM lesson_progress WHERE learner_id = ?"
	args := []any{learnerID}
	if moduleID != "" {
		query += " AND module_id = ?"
		args = append(args, moduleID)
	}
	if lessonID != "" {
		query += " AND lesson_id = ?"
		args = append(args, lessonID)
	}
	query += " ORDER BY module_id, lesson_id"

	var rows []progressRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext(lesson_progress) > %w", err)
	}

	records := make([]progress.LessonProgress, 0, len(rows))
	for _, row := range rows {
		record, err := recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("recordFromRow(%s/%s) > %w", row.ModuleID, row.LessonID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Merge applies one update under last-writer-wins by clientUpdatedAt.
// Every applied clientEventId is remembered in applied_events, so a replay
// changes nothing and reports merged no matter how many writes have landed
// for the lesson since. A fresh stale write keeps the stored record but
// still accumulates the reported time delta.
func (s *Storage) Merge(ctx context.Context, learnerID string, update syncapi.ProgressUpdate) (progress.LessonProgress, bool, error) {
	applied, err := s.eventApplied(ctx, learnerID, update.ClientEventID)
	if err != nil {
		return progress.LessonProgress{}, false, fmt.Errorf("eventApplied() > %w", err)
	}

	var existing progressRow
	err = s.db.GetContext(ctx, &existing,
		"SELECT * FROM lesson_progress WHERE learner_id = ? AND module_id = ? AND lesson_id = ?",
		learnerID, update.ModuleID, update.LessonID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return progress.LessonProgress{}, false, fmt.Errorf("db.GetContext(lesson_progress) > %w", err)
	}

	now := s.now().UTC()

	if errors.Is(err, sql.ErrNoRows) {
		record := recordFromUpdate(update, now)
		if err := s.insert(ctx, learnerID, record); err != nil {
			return progress.LessonProgress{}, false, err
		}
		if err := s.markApplied(ctx, learnerID, update.ClientEventID, now); err != nil {
			return progress.LessonProgress{}, false, err
		}
		return record, true, nil
	}

	// Idempotent replay: the event was already applied.
	if applied {
		record, err := recordFromRow(existing)
		if err != nil {
			return progress.LessonProgress{}, false, fmt.Errorf("recordFromRow() > %w", err)
		}
		return record, true, nil
	}

	storedAt, err := time.Parse(time.RFC3339Nano, existing.ClientUpdatedAt)
	if err != nil {
		return progress.LessonProgress{}, false, fmt.Errorf("time.Parse(client_updated_at) > %w", err)
	}

	if !update.ClientUpdatedAt.After(storedAt) {
		// Stale write loses arbitration; time spent is still real.
		if update.TimeSpentDelta > 0 {
			existing.TimeSpentSeconds += update.TimeSpentDelta
			if _, err := s.db.ExecContext(ctx,
				"UPDATE lesson_progress SET time_spent_seconds = ?, server_updated_at = ? WHERE learner_id = ? AND module_id = ? AND lesson_id = ?",
				existing.TimeSpentSeconds, now.Format(time.RFC3339Nano), learnerID, update.ModuleID, update.LessonID); err != nil {
				return progress.LessonProgress{}, false, fmt.Errorf("db.ExecContext(accumulate time) > %w", err)
			}
			existing.ServerUpdatedAt = now.Format(time.RFC3339Nano)
		}
		if err := s.markApplied(ctx, learnerID, update.ClientEventID, now); err != nil {
			return progress.LessonProgress{}, false, err
		}
		record, err := recordFromRow(existing)
		if err != nil {
			return progress.LessonProgress{}, false, fmt.Errorf("recordFromRow() > %w", err)
		}
		return record, false, nil
	}

	merged := recordFromUpdate(update, now)
	merged.TimeSpentSeconds = existing.TimeSpentSeconds + update.TimeSpentDelta
	if _, err := s.db.ExecContext(ctx,
		`UPDATE lesson_progress
		SET progress = ?, is_completed = ?, time_spent_seconds = ?, score = ?, metadata = ?, client_updated_at = ?, server_updated_at = ?
		WHERE learner_id = ? AND module_id = ? AND lesson_id = ?`,
		merged.Progress, boolToInt(merged.Completed), merged.TimeSpentSeconds,
		nullableScore(merged.Score), nullableMetadata(merged.Metadata),
		merged.ClientUpdatedAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		learnerID, update.ModuleID, update.LessonID); err != nil {
		return progress.LessonProgress{}, false, fmt.Errorf("db.ExecContext(update lesson_progress) > %w", err)
	}
	if err := s.markApplied(ctx, learnerID, update.ClientEventID, now); err != nil {
		return progress.LessonProgress{}, false, err
	}
	return merged, true, nil
}

// eventApplied reports whether a clientEventId was already applied for the
// learner. Updates without an event id are never deduplicated.
func (s *Storage) eventApplied(ctx context.Context, learnerID, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM applied_events WHERE learner_id = ? AND client_event_id = ?",
		learnerID, eventID); err != nil {
		return false, fmt.Errorf("db.GetContext(applied_events) > %w", err)
	}
	return count > 0, nil
}

func (s *Storage) markApplied(ctx context.Context, learnerID, eventID string, now time.Time) error {
	if eventID == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO applied_events (learner_id, client_event_id, applied_at) VALUES (?, ?, ?)",
		learnerID, eventID, now.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("db.ExecContext(insert applied_event) > %w", err)
	}
	return nil
}

func (s *Storage) insert(ctx context.Context, learnerID string, record progress.LessonProgress) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO lesson_progress
			(learner_id, module_id, lesson_id, progress, is_completed, time_spent_seconds, score, metadata, client_updated_at, server_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		learnerID, record.ModuleID, record.LessonID, record.Progress, boolToInt(record.Completed),
		record.TimeSpentSeconds, nullableScore(record.Score), nullableMetadata(record.Metadata),
		record.ClientUpdatedAt.Format(time.RFC3339Nano), record.ServerUpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("db.ExecContext(insert lesson_progress) > %w", err)
	}
	return nil
}

// recordFromUpdate builds the stored record for an accepted write. The
// completion flag is recomputed from the clamped progress fraction; the
// incoming isCompleted flag is never trusted on its own.
func recordFromUpdate(update syncapi.ProgressUpdate, now time.Time) progress.LessonProgress {
	fraction := progress.Clamp(update.Progress)
	record := progress.LessonProgress{
		ModuleID:         update.ModuleID,
		LessonID:         update.LessonID,
		Progress:         fraction,
		Completed:        progress.IsComplete(fraction),
		TimeSpentSeconds: update.TimeSpentDelta,
		Metadata:         update.Metadata,
		ClientUpdatedAt:  update.ClientUpdatedAt,
		ServerUpdatedAt:  now,
	}
	if update.Score != nil {
		score := *update.Score
		record.Score = &score
	}
	return record
}

func recordFromRow(row progressRow) (progress.LessonProgress, error) {
	clientUpdatedAt, err := time.Parse(time.RFC3339Nano, row.ClientUpdatedAt)
	if err != nil {
		return progress.LessonProgress{}, fmt.Errorf("time.Parse(client_updated_at) > %w", err)
	}
	serverUpdatedAt, err := time.Parse(time.RFC3339Nano, row.ServerUpdatedAt)
	if err != nil {
		return progress.LessonProgress{}, fmt.Errorf("time.Parse(server_updated_at) > %w", err)
	}

	record := progress.LessonProgress{
		ModuleID:         row.ModuleID,
		LessonID:         row.LessonID,
		Progress:         row.Progress,
		Completed:        row.IsCompleted != 0,
		TimeSpentSeconds: row.TimeSpentSeconds,
		ClientUpdatedAt:  clientUpdatedAt,
		ServerUpdatedAt:  serverUpdatedAt,
	}
	if row.Score.Valid {
		score := row.Score.Float64
		record.Score = &score
	}
	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &record.Metadata); err != nil {
			return progress.LessonProgress{}, fmt.Errorf("json.Unmarshal(metadata) > %w", err)
		}
	}
	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableScore(score *float64) any {
	if score == nil {
		return nil
	}
	return *score
}

func nullableMetadata(metadata map[string]string) any {
	if len(metadata) == 0 {
		return nil
	}
	contents, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return string(contents)
}
