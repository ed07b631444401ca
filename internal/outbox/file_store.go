package outbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// fileRecord is one persisted queue entry. Confirmed events keep their
// server metadata until they are dequeued.
type fileRecord struct {
	Event       Event         `yaml:"event"`
	ConfirmedAt *time.Time    `yaml:"confirmed_at,omitempty"`
	Result      *ServerResult `yaml:"result,omitempty"`
}

type fileDocument struct {
	Records []fileRecord `yaml:"records"`
}

// FileStore persists the queue to a single YAML file, rewritten atomically
// on every mutation so the queue survives process restarts.
type FileStore struct {
	path string

	mu      sync.Mutex
	records []fileRecord
	now     func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or creates) a file-backed outbox at path.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path: path,
		now:  time.Now,
	}

	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal(%s) > %w", path, err)
	}
	store.records = doc.Records
	return store, nil
}

// Enqueue inserts an event, or coalesces it into the queued unconfirmed
// event for the same (module, lesson) pair.
func (s *FileStore) Enqueue(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = s.now()
	}

	replaced := false
	for i := range s.records {
		record := &s.records[i]
		if record.ConfirmedAt != nil {
			continue
		}
		if record.Event.ModuleID == event.ModuleID && record.Event.LessonID == event.LessonID {
			record.Event = coalesce(record.Event, event)
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, fileRecord{Event: event})
	}

	s.persist()
}

// DequeueConfirmed removes an event once the server confirmed it.
// Removing an unknown id is a no-op.
func (s *FileStore) DequeueConfirmed(clientEventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Event.ClientEventID == clientEventID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.persist()
			return
		}
	}
}

// ListPending returns all unconfirmed events in enqueue order.
func (s *FileStore) ListPending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Event
	for _, record := range s.records {
		if record.ConfirmedAt == nil {
			pending = append(pending, record.Event)
		}
	}
	return pending
}

// MarkConfirmed records the server acknowledgement without removing the
// historical record.
func (s *FileStore) MarkConfirmed(clientEventID string, result ServerResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		record := &s.records[i]
		if record.Event.ClientEventID == clientEventID && record.ConfirmedAt == nil {
			at := s.now()
			record.ConfirmedAt = &at
			record.Result = &result
			s.persist()
			return
		}
	}
}

// persist rewrites the backing file via a temp file and rename. A write
// failure is logged, not returned: the queue stays intact in memory and the
// optimistic path must not fail. Callers must hold s.mu.
func (s *FileStore) persist() {
	contents, err := yaml.Marshal(fileDocument{Records: s.records})
	if err != nil {
		slog.Default().Warn("outbox: failed to marshal queue", "path", s.path, "error", err)
		return
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Default().Warn("outbox: failed to create directory", "dir", dir, "error", err)
		return
	}

	tmp, err := os.CreateTemp(dir, ".outbox-*.yml")
	if err != nil {
		slog.Default().Warn("outbox: failed to create temp file", "dir", dir, "error", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(contents); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		slog.Default().Warn("outbox: failed to write temp file", "path", tmpName, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		slog.Default().Warn("outbox: failed to close temp file", "path", tmpName, "error", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		slog.Default().Warn("outbox: failed to replace queue file", "path", s.path, "error", err)
	}
}
