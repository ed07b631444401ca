package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeConfirmed(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(30 * time.Second)
	localScore := 0.7
	serverScore := 0.85

	tests := []struct {
		name   string
		local  LessonProgress
		server LessonProgress
		want   LessonProgress
	}{
		{
			name:   "server record wins when ahead",
			local:  LessonProgress{Progress: 0.4, TimeSpentSeconds: 60, ClientUpdatedAt: earlier},
			server: LessonProgress{Progress: 0.9, TimeSpentSeconds: 120, ClientUpdatedAt: later, ServerUpdatedAt: later},
			want:   LessonProgress{Progress: 0.9, TimeSpentSeconds: 120, ClientUpdatedAt: later, ServerUpdatedAt: later},
		},
		{
			name:   "local progress floor is preserved",
			local:  LessonProgress{Progress: 0.8, TimeSpentSeconds: 60, ClientUpdatedAt: later},
			server: LessonProgress{Progress: 0.5, TimeSpentSeconds: 120, ClientUpdatedAt: earlier, ServerUpdatedAt: later},
			want:   LessonProgress{Progress: 0.8, TimeSpentSeconds: 120, ClientUpdatedAt: later, ServerUpdatedAt: later},
		},
		{
			name:   "completion is recomputed from the merged fraction",
			local:  LessonProgress{Progress: 1.0, Completed: true, ClientUpdatedAt: later},
			server: LessonProgress{Progress: 0.6, ClientUpdatedAt: earlier},
			want:   LessonProgress{Progress: 1.0, Completed: true, ClientUpdatedAt: later},
		},
		{
			name:   "accumulated time is never lost by overwrite",
			local:  LessonProgress{Progress: 0.5, TimeSpentSeconds: 500, ClientUpdatedAt: earlier},
			server: LessonProgress{Progress: 0.5, TimeSpentSeconds: 200, ClientUpdatedAt: later},
			want:   LessonProgress{Progress: 0.5, TimeSpentSeconds: 500, ClientUpdatedAt: later},
		},
		{
			name:   "local score fills a missing server score",
			local:  LessonProgress{Progress: 0.5, Score: &localScore, ClientUpdatedAt: earlier},
			server: LessonProgress{Progress: 0.5, ClientUpdatedAt: later},
			want:   LessonProgress{Progress: 0.5, Score: &localScore, ClientUpdatedAt: later},
		},
		{
			name:   "server score is kept when present",
			local:  LessonProgress{Progress: 0.5, Score: &localScore, ClientUpdatedAt: earlier},
			server: LessonProgress{Progress: 0.5, Score: &serverScore, ClientUpdatedAt: later},
			want:   LessonProgress{Progress: 0.5, Score: &serverScore, ClientUpdatedAt: later},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MergeConfirmed(tc.local, tc.server))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1.5))
	assert.Equal(t, 1.0, Clamp(2.3))
	assert.Equal(t, 0.42, Clamp(0.42))
}

func TestIsComplete(t *testing.T) {
	assert.True(t, IsComplete(1.0))
	assert.False(t, IsComplete(0.999999))
	assert.False(t, IsComplete(0))
}
