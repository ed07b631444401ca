package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventilearn/ventilearn/internal/availability"
	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/testutil"
)

func seededStore(t *testing.T) (*progress.Store, time.Time) {
	t.Helper()
	graph := testutil.LoadTestGraph(t)
	store := progress.NewStore(graph)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	score := 0.9
	store.ApplyOptimistic("vent-basics", "vb-01", progress.Delta{Progress: 1.0, TimeSpentDelta: 300, Score: &score, At: at})
	store.ApplyOptimistic("vent-basics", "vb-02", progress.Delta{Progress: 0.4, TimeSpentDelta: 120, At: at})
	return store, at
}

func TestBuild(t *testing.T) {
	store, at := seededStore(t)
	graph := testutil.LoadTestGraph(t)

	built := Build(graph, store, "learner-1", at)

	assert.Equal(t, "learner-1", built.LearnerID)
	assert.Equal(t, 420, built.TimeSpentSeconds)
	require.Len(t, built.Levels, 3)

	beginner := built.Levels[0]
	assert.False(t, beginner.Completed)
	require.NotEmpty(t, beginner.Modules)

	basics := beginner.Modules[0]
	assert.Equal(t, "vent-basics", basics.Module.ID)
	assert.Equal(t, 1, basics.CompletedLessons)
	assert.Equal(t, 420, basics.TimeSpentSeconds)
	require.Len(t, basics.Lessons, 3)
	assert.Equal(t, availability.StateCompleted, basics.Lessons[0].State)
	assert.Equal(t, availability.StateInProgress, basics.Lessons[1].State)
	assert.Equal(t, availability.StateLocked, basics.Lessons[2].State)
}

func TestMarkdown(t *testing.T) {
	store, at := seededStore(t)
	graph := testutil.LoadTestGraph(t)

	rendered := Markdown(Build(graph, store, "learner-1", at))

	assert.Contains(t, rendered, "# Learning Progress Report")
	assert.Contains(t, rendered, "- Learner: learner-1")
	assert.Contains(t, rendered, "## Level: beginner")
	assert.Contains(t, rendered, "### Ventilation Basics")
	assert.Contains(t, rendered, "1/3 lessons completed")
	assert.Contains(t, rendered, "| Respiratory Physiology | completed | 100% | 5m00s | 0.9 |")
	assert.Contains(t, rendered, "| Ventilator Anatomy | in_progress | 40% | 2m00s | - |")
	assert.Contains(t, rendered, "| First Settings | locked | 0% | 0s | - |")
}

func TestWriteMarkdown(t *testing.T) {
	store, at := seededStore(t)
	graph := testutil.LoadTestGraph(t)

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, WriteMarkdown(Build(graph, store, "", at), path))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "# Learning Progress Report")
}

func TestExportPDF_RequiresMarkdownExtension(t *testing.T) {
	_, err := ExportPDF(filepath.Join(t.TempDir(), "report.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".md extension")
}

func TestTopLessonsByTime(t *testing.T) {
	store, at := seededStore(t)
	graph := testutil.LoadTestGraph(t)
	built := Build(graph, store, "", at)

	top := TopLessonsByTime(built, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "vb-01", top[0].Lesson.ID)

	all := TopLessonsByTime(built, 10)
	assert.Len(t, all, 2, "untouched lessons are excluded")
}
