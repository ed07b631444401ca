// Package progress provides the in-memory learner progress store and the
// merge rules between optimistic local writes and server-confirmed records.
package progress

import "time"

// LessonProgress is one learner's state on one lesson. The numeric Progress
// fraction is the only authority on completion; Completed is derived from it
// and never set independently.
type LessonProgress struct {
	ModuleID         string            `yaml:"module_id" json:"moduleId"`
	LessonID         string            `yaml:"lesson_id" json:"lessonId"`
	Progress         float64           `yaml:"progress" json:"progress"`
	Completed        bool              `yaml:"completed" json:"completed"`
	TimeSpentSeconds int               `yaml:"time_spent_seconds" json:"timeSpentSeconds"`
	Score            *float64          `yaml:"score,omitempty" json:"score,omitempty"`
	Metadata         map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	ClientUpdatedAt  time.Time         `yaml:"client_updated_at" json:"clientUpdatedAt"`
	ServerUpdatedAt  time.Time         `yaml:"server_updated_at,omitempty" json:"serverUpdatedAt,omitzero"`
}

// Delta is a progress-reporting event produced by the caller: a page view,
// an answer submission, a video-progress tick.
type Delta struct {
	Progress       float64
	TimeSpentDelta int
	Score          *float64
	Metadata       map[string]string
	At             time.Time
}

// LearningProgress holds module-level aggregation metadata.
type LearningProgress struct {
	TimeSpentSeconds int        `yaml:"time_spent_seconds" json:"timeSpentSeconds"`
	Score            *float64   `yaml:"score,omitempty" json:"score,omitempty"`
	CompletedAt      *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// ModuleProgressSnapshot aggregates LessonProgress for one module.
type ModuleProgressSnapshot struct {
	ModuleID         string                    `yaml:"module_id" json:"moduleId"`
	LearningProgress LearningProgress          `yaml:"learning_progress" json:"learningProgress"`
	Lessons          map[string]LessonProgress `yaml:"lessons" json:"lessonsById"`
}

// Clamp bounds a progress fraction to [0, 1].
func Clamp(fraction float64) float64 {
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// IsComplete reports completion purely from the progress fraction.
func IsComplete(fraction float64) bool {
	return fraction == 1.0
}

func (p LessonProgress) clone() LessonProgress {
	out := p
	if p.Score != nil {
		score := *p.Score
		out.Score = &score
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (s ModuleProgressSnapshot) clone() ModuleProgressSnapshot {
	out := s
	if s.LearningProgress.Score != nil {
		score := *s.LearningProgress.Score
		out.LearningProgress.Score = &score
	}
	if s.LearningProgress.CompletedAt != nil {
		at := *s.LearningProgress.CompletedAt
		out.LearningProgress.CompletedAt = &at
	}
	out.Lessons = make(map[string]LessonProgress, len(s.Lessons))
	for id, lesson := range s.Lessons {
		out.Lessons[id] = lesson.clone()
	}
	return out
}
