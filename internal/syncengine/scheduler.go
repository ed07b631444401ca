package syncengine

import (
	"sync"
	"time"
)

type lessonKey struct {
	moduleID string
	lessonID string
}

// scheduler owns the per-lesson retry timers. Tasks are keyed by
// (module, lesson) and cancelable, so a newer update for a lesson always
// replaces the stale retry instead of racing it.
type scheduler struct {
	mu      sync.Mutex
	timers  map[lessonKey]*time.Timer
	stopped bool
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[lessonKey]*time.Timer)}
}

// schedule plans fn after delay, replacing any task already planned for the
// same key.
func (s *scheduler) schedule(key lessonKey, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] == timer {
			delete(s.timers, key)
		}
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
	s.timers[key] = timer
}

// cancel drops the planned task for a key, if any.
func (s *scheduler) cancel(key lessonKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// stop cancels everything and refuses further scheduling.
func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

func (s *scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
