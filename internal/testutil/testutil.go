// Package testutil provides shared test helpers for curriculum and config
// fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ventilearn/ventilearn/internal/curriculum"
)

// CurriculumYAML is a small but complete three-level curriculum used across
// package tests: two beginner modules, one intermediate, one advanced, plus
// a placeholder module with no completable lessons.
const CurriculumYAML = `levels:
  - id: beginner
    modules:
      - id: vent-basics
        title: Ventilation Basics
        lessons:
          - id: vb-01
            title: Respiratory Physiology
            order: 1
            sections: 3
          - id: vb-02
            title: Ventilator Anatomy
            order: 2
            sections: 2
          - id: vb-03
            title: First Settings
            order: 3
            sections: 4
      - id: vent-modes
        title: Ventilation Modes
        lessons:
          - id: vm-01
            title: Volume Control
            order: 1
            sections: 2
          - id: vm-02
            title: Pressure Control
            order: 2
            sections: 2
      - id: vent-glossary
        title: Glossary
        lessons:
          - id: vg-01
            title: Terminology
            order: 1
            sections: 0
            allow_empty: true
  - id: intermediate
    modules:
      - id: vent-weaning
        title: Weaning Strategies
        lessons:
          - id: vw-01
            title: Readiness Screening
            order: 1
            sections: 3
          - id: vw-02
            title: Spontaneous Breathing Trials
            order: 2
            sections: 2
  - id: advanced
    modules:
      - id: vent-ards
        title: ARDS Management
        lessons:
          - id: va-01
            title: Lung-Protective Ventilation
            order: 1
            sections: 5
`

// LoadTestGraph parses CurriculumYAML into a graph.
func LoadTestGraph(t *testing.T) *curriculum.Graph {
	t.Helper()

	path := filepath.Join(t.TempDir(), "curriculum.yml")
	require.NoError(t, os.WriteFile(path, []byte(CurriculumYAML), 0644))

	graph, err := curriculum.Load(path)
	require.NoError(t, err)
	return graph
}

// SetupTestConfig creates a minimal config file pointing at a curriculum
// fixture inside tmpDir. Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir, baseURL string) string {
	t.Helper()

	curriculumPath := filepath.Join(tmpDir, "curriculum.yml")
	require.NoError(t, os.WriteFile(curriculumPath, []byte(CurriculumYAML), 0644))

	configContent := fmt.Sprintf(`server:
  base_url: %s
  timeout_seconds: 2
learner:
  id: test-learner
outbox:
  driver: file
  path: %s
curriculum:
  file: %s
`,
		baseURL,
		filepath.Join(tmpDir, "outbox.yml"),
		curriculumPath,
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}
