package curriculum

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Graph is the read-only lookup structure over a curriculum definition.
// It is built once at startup; a malformed definition fails loudly there
// instead of being tolerated during unlock computation.
type Graph struct {
	levels []Level

	levelByID      map[LevelID]*Level
	moduleByID     map[string]*Module
	levelOfModule  map[string]LevelID
	moduleOfLesson map[string]string
	lessonByKey    map[string]*Lesson
}

// NewGraph builds a Graph from a validated definition.
func NewGraph(def Definition) (*Graph, error) {
	g := &Graph{
		levels:         def.Levels,
		levelByID:      make(map[LevelID]*Level),
		moduleByID:     make(map[string]*Module),
		levelOfModule:  make(map[string]LevelID),
		moduleOfLesson: make(map[string]string),
		lessonByKey:    make(map[string]*Lesson),
	}

	seenRank := -1
	for i := range g.levels {
		level := &g.levels[i]
		rank, ok := levelRanks[level.ID]
		if !ok {
			return nil, fmt.Errorf("unknown level %q", level.ID)
		}
		if rank <= seenRank {
			return nil, fmt.Errorf("level %q is out of order or duplicated", level.ID)
		}
		seenRank = rank

		g.levelByID[level.ID] = level
		for j := range level.Modules {
			module := &level.Modules[j]
			if _, exists := g.moduleByID[module.ID]; exists {
				return nil, fmt.Errorf("duplicate module %q", module.ID)
			}
			g.moduleByID[module.ID] = module
			g.levelOfModule[module.ID] = level.ID

			sort.SliceStable(module.Lessons, func(a, b int) bool {
				return module.Lessons[a].Order < module.Lessons[b].Order
			})
			for k := range module.Lessons {
				lesson := &module.Lessons[k]
				if _, exists := g.moduleOfLesson[lesson.ID]; exists {
					return nil, fmt.Errorf("duplicate lesson %q", lesson.ID)
				}
				g.moduleOfLesson[lesson.ID] = module.ID
				g.lessonByKey[lessonKey(module.ID, lesson.ID)] = lesson
			}
		}
	}

	return g, nil
}

// Load reads a curriculum YAML file, validates it and builds the Graph.
func Load(path string) (*Graph, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(contents, &def); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal(%s) > %w", path, err)
	}

	if err := validateDefinition(def); err != nil {
		return nil, fmt.Errorf("validateDefinition(%s) > %w", path, err)
	}

	graph, err := NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("NewGraph(%s) > %w", path, err)
	}
	return graph, nil
}

func lessonKey(moduleID, lessonID string) string {
	return moduleID + "\x00" + lessonID
}

// Levels returns all levels in rank order.
func (g *Graph) Levels() []Level {
	levels := make([]Level, len(g.levels))
	copy(levels, g.levels)
	return levels
}

// ModulesOf returns the modules of a level in declared order.
// An unknown level yields an empty slice.
func (g *Graph) ModulesOf(levelID LevelID) []Module {
	level, ok := g.levelByID[levelID]
	if !ok {
		return nil
	}
	modules := make([]Module, len(level.Modules))
	copy(modules, level.Modules)
	return modules
}

// LessonsOf returns the lessons of a module sorted by their declared order.
// An unknown module yields an empty slice.
func (g *Graph) LessonsOf(moduleID string) []Lesson {
	module, ok := g.moduleByID[moduleID]
	if !ok {
		return nil
	}
	lessons := make([]Lesson, len(module.Lessons))
	copy(lessons, module.Lessons)
	return lessons
}

// LevelOf returns the level owning a module.
func (g *Graph) LevelOf(moduleID string) (LevelID, bool) {
	levelID, ok := g.levelOfModule[moduleID]
	return levelID, ok
}

// ModuleOfLesson resolves the owning module of a lesson ID.
// Lesson IDs are unique across the curriculum, so a bare lesson ID is resolvable.
func (g *Graph) ModuleOfLesson(lessonID string) (string, bool) {
	moduleID, ok := g.moduleOfLesson[lessonID]
	return moduleID, ok
}

// Lesson returns a lesson by module and lesson ID.
func (g *Graph) Lesson(moduleID, lessonID string) (Lesson, bool) {
	lesson, ok := g.lessonByKey[lessonKey(moduleID, lessonID)]
	if !ok {
		return Lesson{}, false
	}
	return *lesson, true
}

// PrecedingLevel returns the level immediately before the given one in rank
// order, or false for the first level or an unknown level.
func (g *Graph) PrecedingLevel(levelID LevelID) (LevelID, bool) {
	rank, ok := levelRanks[levelID]
	if !ok || rank == 0 {
		return "", false
	}
	for id, r := range levelRanks {
		if r == rank-1 {
			if _, defined := g.levelByID[id]; defined {
				return id, true
			}
			return "", false
		}
	}
	return "", false
}

// CompletableLessons returns the completable lessons of a module in order.
func (g *Graph) CompletableLessons(moduleID string) []Lesson {
	var lessons []Lesson
	for _, lesson := range g.LessonsOf(moduleID) {
		if lesson.Completable() {
			lessons = append(lessons, lesson)
		}
	}
	return lessons
}
