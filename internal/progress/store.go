package progress

import (
	"sync"
	"time"

	"github.com/ventilearn/ventilearn/internal/curriculum"
)

// Store is the normalized in-memory projection of all module snapshots for
// the current learner. It is the single source of truth for availability
// derivation and is mutated only through ApplyOptimistic, ApplyConfirmed
// and Revert. All accessors return copies.
type Store struct {
	graph *curriculum.Graph

	mu      sync.Mutex
	modules map[string]*ModuleProgressSnapshot

	subscribersMu sync.Mutex
	subscribers   map[int]func()
	nextSubID     int

	now func() time.Time
}

// NewStore creates an empty Store. The curriculum graph is used to derive
// module completion timestamps; it is read-only.
func NewStore(graph *curriculum.Graph) *Store {
	return &Store{
		graph:       graph,
		modules:     make(map[string]*ModuleProgressSnapshot),
		subscribers: make(map[int]func()),
		now:         time.Now,
	}
}

// Subscribe registers a callback invoked after every committed mutation.
// The returned function unsubscribes. Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func()) func() {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.subscribersMu.Lock()
		defer s.subscribersMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) notify() {
	s.subscribersMu.Lock()
	callbacks := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		callbacks = append(callbacks, fn)
	}
	s.subscribersMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// ApplyOptimistic updates a lesson's progress immediately, before any
// network call resolves. Progress is clamped to [0, 1], never regresses,
// and Completed is recomputed purely from the clamped value.
// It returns the resulting entry.
func (s *Store) ApplyOptimistic(moduleID, lessonID string, delta Delta) LessonProgress {
	s.mu.Lock()

	module := s.module(moduleID)
	entry, ok := module.Lessons[lessonID]
	if !ok {
		entry = LessonProgress{ModuleID: moduleID, LessonID: lessonID}
	}

	fraction := Clamp(delta.Progress)
	if fraction > entry.Progress {
		entry.Progress = fraction
	}
	entry.Completed = IsComplete(entry.Progress)
	entry.TimeSpentSeconds += delta.TimeSpentDelta
	if delta.Score != nil {
		score := *delta.Score
		entry.Score = &score
	}
	if len(delta.Metadata) > 0 {
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]string, len(delta.Metadata))
		}
		for k, v := range delta.Metadata {
			entry.Metadata[k] = v
		}
	}
	at := delta.At
	if at.IsZero() {
		at = s.now()
	}
	entry.ClientUpdatedAt = at

	module.Lessons[lessonID] = entry
	s.refreshModule(module)
	result := entry.clone()

	s.mu.Unlock()
	s.notify()
	return result
}

// ApplyConfirmed replaces a lesson's optimistic entry with server truth,
// merged through the reconciler rules.
func (s *Store) ApplyConfirmed(moduleID, lessonID string, serverRecord LessonProgress) LessonProgress {
	s.mu.Lock()

	module := s.module(moduleID)
	merged := serverRecord.clone()
	if local, ok := module.Lessons[lessonID]; ok {
		merged = MergeConfirmed(local, serverRecord)
	}
	merged.ModuleID = moduleID
	merged.LessonID = lessonID
	module.Lessons[lessonID] = merged
	s.refreshModule(module)
	result := merged.clone()

	s.mu.Unlock()
	s.notify()
	return result
}

// Revert removes a lesson's optimistic entry so it falls back to the
// last-known-server state. Used only for non-recoverable client errors.
func (s *Store) Revert(moduleID, lessonID string) {
	s.mu.Lock()
	if module, ok := s.modules[moduleID]; ok {
		delete(module.Lessons, lessonID)
		s.refreshModule(module)
		if len(module.Lessons) == 0 {
			delete(s.modules, moduleID)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// GetModuleSnapshot returns a copy of the snapshot for a module.
func (s *Store) GetModuleSnapshot(moduleID string) (ModuleProgressSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	module, ok := s.modules[moduleID]
	if !ok {
		return ModuleProgressSnapshot{}, false
	}
	return module.clone(), true
}

// GetLessonProgress returns a copy of one lesson's progress.
func (s *Store) GetLessonProgress(moduleID, lessonID string) (LessonProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	module, ok := s.modules[moduleID]
	if !ok {
		return LessonProgress{}, false
	}
	entry, ok := module.Lessons[lessonID]
	if !ok {
		return LessonProgress{}, false
	}
	return entry.clone(), true
}

// module returns the snapshot for a module, creating it when absent.
// Callers must hold s.mu.
func (s *Store) module(moduleID string) *ModuleProgressSnapshot {
	module, ok := s.modules[moduleID]
	if !ok {
		module = &ModuleProgressSnapshot{
			ModuleID: moduleID,
			Lessons:  make(map[string]LessonProgress),
		}
		s.modules[moduleID] = module
	}
	return module
}

// refreshModule recomputes module-level aggregation: total time spent, the
// mean score over scored lessons, and CompletedAt, which is set only when
// every completable lesson of the module is at progress 1.0.
// Callers must hold s.mu.
func (s *Store) refreshModule(module *ModuleProgressSnapshot) {
	timeSpent := 0
	scoreSum := 0.0
	scored := 0
	for _, lesson := range module.Lessons {
		timeSpent += lesson.TimeSpentSeconds
		if lesson.Score != nil {
			scoreSum += *lesson.Score
			scored++
		}
	}
	module.LearningProgress.TimeSpentSeconds = timeSpent
	module.LearningProgress.Score = nil
	if scored > 0 {
		mean := scoreSum / float64(scored)
		module.LearningProgress.Score = &mean
	}

	if s.graph == nil {
		return
	}
	completable := s.graph.CompletableLessons(module.ModuleID)
	if len(completable) == 0 {
		module.LearningProgress.CompletedAt = nil
		return
	}
	for _, lesson := range completable {
		entry, ok := module.Lessons[lesson.ID]
		if !ok || !IsComplete(entry.Progress) {
			module.LearningProgress.CompletedAt = nil
			return
		}
	}
	if module.LearningProgress.CompletedAt == nil {
		at := s.now()
		module.LearningProgress.CompletedAt = &at
	}
}
