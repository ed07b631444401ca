// Package curriculum provides the static level/module/lesson structure and ordered lookups.
package curriculum

// LevelID identifies a curriculum level. Levels are ranked: beginner < intermediate < advanced.
type LevelID string

const (
	LevelBeginner     LevelID = "beginner"
	LevelIntermediate LevelID = "intermediate"
	LevelAdvanced     LevelID = "advanced"
)

// levelRanks defines the fixed ordering of levels.
var levelRanks = map[LevelID]int{
	LevelBeginner:     0,
	LevelIntermediate: 1,
	LevelAdvanced:     2,
}

// Lesson is a single unit of content within a module.
type Lesson struct {
	ID         string `yaml:"id" validate:"required"`
	Title      string `yaml:"title"`
	Order      int    `yaml:"order" validate:"gte=0"`
	Sections   int    `yaml:"sections" validate:"gte=0"`
	AllowEmpty bool   `yaml:"allow_empty"`
}

// Completable reports whether the lesson counts toward module and level completion.
// Placeholder lessons (no sections, or explicitly allowed to be empty) never gate progression.
func (l Lesson) Completable() bool {
	return l.Sections >= 1 && !l.AllowEmpty
}

// Module owns an ordered set of lessons. Lesson order is defined strictly
// within its owning module.
type Module struct {
	ID      string   `yaml:"id" validate:"required"`
	Title   string   `yaml:"title"`
	Lessons []Lesson `yaml:"lessons" validate:"dive"`
}

// Level owns an ordered set of modules.
type Level struct {
	ID      LevelID  `yaml:"id" validate:"required,oneof=beginner intermediate advanced"`
	Modules []Module `yaml:"modules" validate:"dive"`
}

// Definition is the YAML document shape for a curriculum file.
type Definition struct {
	Levels []Level `yaml:"levels" validate:"required,min=1,dive"`
}
