package cli

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/testutil"
)

func TestCurriculumView_Render(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	graph := testutil.LoadTestGraph(t)
	store := progress.NewStore(graph)
	store.ApplyOptimistic("vent-basics", "vb-01", progress.Delta{Progress: 1.0})
	store.ApplyOptimistic("vent-basics", "vb-02", progress.Delta{Progress: 0.4})

	var out bytes.Buffer
	view := NewCurriculumView(graph, store, &out)
	require.NoError(t, view.Render())

	rendered := out.String()
	assert.Contains(t, rendered, "beginner\n")
	assert.Contains(t, rendered, "  Ventilation Basics\n")
	assert.Contains(t, rendered, "[completed] Respiratory Physiology")
	assert.Contains(t, rendered, "[in_progress] Ventilator Anatomy (40%)")
	assert.Contains(t, rendered, "[locked] First Settings")
	assert.Contains(t, rendered, "[available] Volume Control")
	assert.Contains(t, rendered, "[locked] Readiness Screening")
	assert.Contains(t, rendered, "intermediate\n")
}
