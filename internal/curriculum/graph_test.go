package curriculum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() Definition {
	return Definition{
		Levels: []Level{
			{
				ID: LevelBeginner,
				Modules: []Module{
					{
						ID:    "vent-basics",
						Title: "Ventilation Basics",
						Lessons: []Lesson{
							{ID: "vb-02", Title: "Ventilator Anatomy", Order: 2, Sections: 2},
							{ID: "vb-01", Title: "Respiratory Physiology", Order: 1, Sections: 3},
							{ID: "vb-03", Title: "First Settings", Order: 3, Sections: 4},
						},
					},
					{
						ID:    "vent-glossary",
						Title: "Glossary",
						Lessons: []Lesson{
							{ID: "vg-01", Title: "Terminology", Order: 1, Sections: 0, AllowEmpty: true},
						},
					},
				},
			},
			{
				ID: LevelIntermediate,
				Modules: []Module{
					{
						ID: "vent-weaning",
						Lessons: []Lesson{
							{ID: "vw-01", Order: 1, Sections: 3},
						},
					},
				},
			},
		},
	}
}

func TestNewGraph(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Definition)
		wantError string
	}{
		{
			name:   "valid definition",
			mutate: func(def *Definition) {},
		},
		{
			name: "unknown level",
			mutate: func(def *Definition) {
				def.Levels[0].ID = "expert"
			},
			wantError: `unknown level "expert"`,
		},
		{
			name: "levels out of rank order",
			mutate: func(def *Definition) {
				def.Levels[0].ID = LevelIntermediate
				def.Levels[1].ID = LevelBeginner
			},
			wantError: `level "beginner" is out of order or duplicated`,
		},
		{
			name: "duplicate level",
			mutate: func(def *Definition) {
				def.Levels[1].ID = LevelBeginner
			},
			wantError: `level "beginner" is out of order or duplicated`,
		},
		{
			name: "duplicate module",
			mutate: func(def *Definition) {
				def.Levels[1].Modules[0].ID = "vent-basics"
			},
			wantError: `duplicate module "vent-basics"`,
		},
		{
			name: "duplicate lesson across modules",
			mutate: func(def *Definition) {
				def.Levels[1].Modules[0].Lessons[0].ID = "vb-01"
			},
			wantError: `duplicate lesson "vb-01"`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			def := testDefinition()
			tc.mutate(&def)

			graph, err := NewGraph(def)
			if tc.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantError)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, graph)
		})
	}
}

func TestGraph_LessonsOf(t *testing.T) {
	graph, err := NewGraph(testDefinition())
	require.NoError(t, err)

	t.Run("lessons are sorted by declared order", func(t *testing.T) {
		lessons := graph.LessonsOf("vent-basics")
		require.Len(t, lessons, 3)
		assert.Equal(t, "vb-01", lessons[0].ID)
		assert.Equal(t, "vb-02", lessons[1].ID)
		assert.Equal(t, "vb-03", lessons[2].ID)
	})

	t.Run("unknown module yields empty", func(t *testing.T) {
		assert.Empty(t, graph.LessonsOf("no-such-module"))
	})
}

func TestGraph_Lookups(t *testing.T) {
	graph, err := NewGraph(testDefinition())
	require.NoError(t, err)

	t.Run("ModuleOfLesson", func(t *testing.T) {
		moduleID, ok := graph.ModuleOfLesson("vb-02")
		require.True(t, ok)
		assert.Equal(t, "vent-basics", moduleID)

		_, ok = graph.ModuleOfLesson("missing")
		assert.False(t, ok)
	})

	t.Run("LevelOf", func(t *testing.T) {
		levelID, ok := graph.LevelOf("vent-weaning")
		require.True(t, ok)
		assert.Equal(t, LevelIntermediate, levelID)

		_, ok = graph.LevelOf("missing")
		assert.False(t, ok)
	})

	t.Run("Lesson", func(t *testing.T) {
		lesson, ok := graph.Lesson("vent-basics", "vb-03")
		require.True(t, ok)
		assert.Equal(t, "First Settings", lesson.Title)

		_, ok = graph.Lesson("vent-basics", "vw-01")
		assert.False(t, ok)
	})

	t.Run("PrecedingLevel", func(t *testing.T) {
		preceding, ok := graph.PrecedingLevel(LevelIntermediate)
		require.True(t, ok)
		assert.Equal(t, LevelBeginner, preceding)

		_, ok = graph.PrecedingLevel(LevelBeginner)
		assert.False(t, ok)
	})

	t.Run("PrecedingLevel resolves even for an undefined level", func(t *testing.T) {
		// The test definition has no advanced level, but its predecessor
		// (intermediate) is defined, so the lookup still resolves.
		preceding, ok := graph.PrecedingLevel(LevelAdvanced)
		require.True(t, ok)
		assert.Equal(t, LevelIntermediate, preceding)
	})

	t.Run("CompletableLessons excludes placeholders", func(t *testing.T) {
		assert.Len(t, graph.CompletableLessons("vent-basics"), 3)
		assert.Empty(t, graph.CompletableLessons("vent-glossary"))
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads and validates a curriculum file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "curriculum.yml")
		require.NoError(t, os.WriteFile(path, []byte(`levels:
  - id: beginner
    modules:
      - id: vent-basics
        lessons:
          - id: vb-01
            order: 1
            sections: 2
`), 0644))

		graph, err := Load(path)
		require.NoError(t, err)
		lessons := graph.LessonsOf("vent-basics")
		require.Len(t, lessons, 1)
		assert.Equal(t, "vb-01", lessons[0].ID)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("validation failure on missing module id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "curriculum.yml")
		require.NoError(t, os.WriteFile(path, []byte(`levels:
  - id: beginner
    modules:
      - lessons:
          - id: vb-01
            order: 1
`), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})
}

func TestLesson_Completable(t *testing.T) {
	tests := []struct {
		name   string
		lesson Lesson
		want   bool
	}{
		{
			name:   "lesson with sections",
			lesson: Lesson{ID: "l1", Sections: 1},
			want:   true,
		},
		{
			name:   "lesson with no sections",
			lesson: Lesson{ID: "l2", Sections: 0},
			want:   false,
		},
		{
			name:   "lesson explicitly allowed to be empty",
			lesson: Lesson{ID: "l3", Sections: 4, AllowEmpty: true},
			want:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.lesson.Completable())
		})
	}
}
