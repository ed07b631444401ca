// Package availability derives lesson and level unlock state from the
// curriculum graph and the progress store. Everything here is a pure
// function over copies: no side effects, deterministic, safe to call on
// every render.
package availability

import (
	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/progress"
)

// State is the conceptual lesson state machine. It is derived on demand and
// never persisted, so it cannot diverge from the progress store.
type State int

const (
	StateLocked State = iota
	StateAvailable
	StateInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	default:
		return "locked"
	}
}

// ProgressReader is the read-side of the progress store the resolver
// consumes. *progress.Store satisfies it.
type ProgressReader interface {
	GetLessonProgress(moduleID, lessonID string) (progress.LessonProgress, bool)
}

// IsLessonAvailable reports whether a lesson is unlocked.
//
// The first lesson of a module is available when the module's level is
// beginner or the immediately preceding level is fully completed. Every
// subsequent lesson is gated only by the immediately preceding lesson in
// the same module reaching progress 1.0; lessons in other modules never
// gate each other directly.
//
// Modules or lessons referenced in progress data but absent from the graph
// are treated as unavailable rather than an error, so stale progress data
// cannot break the caller.
func IsLessonAvailable(graph *curriculum.Graph, reader ProgressReader, moduleID, lessonID string) bool {
	lessons := graph.LessonsOf(moduleID)
	index := -1
	for i, lesson := range lessons {
		if lesson.ID == lessonID {
			index = i
			break
		}
	}
	if index < 0 {
		return false
	}

	if index == 0 {
		return isModuleEntryUnlocked(graph, reader, moduleID)
	}

	previous := lessons[index-1]
	entry, ok := reader.GetLessonProgress(moduleID, previous.ID)
	return ok && progress.IsComplete(entry.Progress)
}

// LessonState computes the full state machine value for a lesson.
func LessonState(graph *curriculum.Graph, reader ProgressReader, moduleID, lessonID string) State {
	entry, tracked := reader.GetLessonProgress(moduleID, lessonID)
	if tracked && progress.IsComplete(entry.Progress) {
		return StateCompleted
	}
	if !IsLessonAvailable(graph, reader, moduleID, lessonID) {
		return StateLocked
	}
	if tracked && entry.Progress > 0 {
		return StateInProgress
	}
	return StateAvailable
}

// IsModuleCompleted reports whether every completable lesson of the module
// is at progress 1.0. Modules with zero completable lessons are vacuously
// complete so they never block level progression.
func IsModuleCompleted(graph *curriculum.Graph, reader ProgressReader, moduleID string) bool {
	if _, ok := graph.LevelOf(moduleID); !ok {
		return false
	}
	for _, lesson := range graph.CompletableLessons(moduleID) {
		entry, ok := reader.GetLessonProgress(moduleID, lesson.ID)
		if !ok || !progress.IsComplete(entry.Progress) {
			return false
		}
	}
	return true
}

// IsLevelCompleted reports whether every module of the level that has at
// least one completable lesson is completed.
func IsLevelCompleted(graph *curriculum.Graph, reader ProgressReader, levelID curriculum.LevelID) bool {
	modules := graph.ModulesOf(levelID)
	if modules == nil {
		return false
	}
	for _, module := range modules {
		if len(graph.CompletableLessons(module.ID)) == 0 {
			continue
		}
		if !IsModuleCompleted(graph, reader, module.ID) {
			return false
		}
	}
	return true
}

// isModuleEntryUnlocked decides whether a module's first lesson may open:
// beginner modules always, later levels once the preceding level is done.
func isModuleEntryUnlocked(graph *curriculum.Graph, reader ProgressReader, moduleID string) bool {
	levelID, ok := graph.LevelOf(moduleID)
	if !ok {
		return false
	}
	if levelID == curriculum.LevelBeginner {
		return true
	}
	preceding, ok := graph.PrecedingLevel(levelID)
	if !ok {
		// No preceding level is defined in this curriculum; nothing can
		// have gated it, so treat the entry as open.
		return true
	}
	return IsLevelCompleted(graph, reader, preceding)
}
