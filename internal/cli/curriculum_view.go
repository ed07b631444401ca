// Package cli renders learner-facing terminal output.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ventilearn/ventilearn/internal/availability"
	"github.com/ventilearn/ventilearn/internal/curriculum"
)

// CurriculumView prints the curriculum tree with each lesson's derived
// unlock state.
type CurriculumView struct {
	graph  *curriculum.Graph
	reader availability.ProgressReader
	writer io.Writer

	green  *color.Color
	yellow *color.Color
	cyan   *color.Color
	faint  *color.Color
	bold   *color.Color
}

func NewCurriculumView(graph *curriculum.Graph, reader availability.ProgressReader, writer io.Writer) *CurriculumView {
	return &CurriculumView{
		graph:  graph,
		reader: reader,
		writer: writer,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		faint:  color.New(color.Faint),
		bold:   color.New(color.Bold),
	}
}

// Render walks levels, modules and lessons in curriculum order.
func (v *CurriculumView) Render() error {
	for _, level := range v.graph.Levels() {
		marker := ""
		if availability.IsLevelCompleted(v.graph, v.reader, level.ID) {
			marker = " (completed)"
		}
		if _, err := v.bold.Fprintf(v.writer, "%s%s\n", level.ID, marker); err != nil {
			return fmt.Errorf("bold.Fprintf() > %w", err)
		}

		for _, module := range v.graph.ModulesOf(level.ID) {
			title := module.Title
			if title == "" {
				title = module.ID
			}
			moduleMarker := ""
			if availability.IsModuleCompleted(v.graph, v.reader, module.ID) {
				moduleMarker = " ✓"
			}
			if _, err := fmt.Fprintf(v.writer, "  %s%s\n", title, moduleMarker); err != nil {
				return fmt.Errorf("fmt.Fprintf() > %w", err)
			}

			for _, lesson := range v.graph.LessonsOf(module.ID) {
				if err := v.renderLesson(module.ID, lesson); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (v *CurriculumView) renderLesson(moduleID string, lesson curriculum.Lesson) error {
	title := lesson.Title
	if title == "" {
		title = lesson.ID
	}
	state := availability.LessonState(v.graph, v.reader, moduleID, lesson.ID)

	line := fmt.Sprintf("    [%s] %s", state, title)
	if entry, ok := v.reader.GetLessonProgress(moduleID, lesson.ID); ok && state == availability.StateInProgress {
		line = fmt.Sprintf("%s (%.0f%%)", line, entry.Progress*100)
	}

	var err error
	switch state {
	case availability.StateCompleted:
		_, err = v.green.Fprintln(v.writer, line)
	case availability.StateInProgress:
		_, err = v.yellow.Fprintln(v.writer, line)
	case availability.StateAvailable:
		_, err = v.cyan.Fprintln(v.writer, line)
	default:
		_, err = v.faint.Fprintln(v.writer, line)
	}
	if err != nil {
		return fmt.Errorf("color.Fprintln() > %w", err)
	}
	return nil
}
