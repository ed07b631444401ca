// Package report renders a learner's progress as markdown and exports it to
// PDF.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mandolyte/mdtopdf"

	"github.com/ventilearn/ventilearn/internal/availability"
	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/progress"
)

// LessonRow is one row of the report: a lesson with its derived state.
type LessonRow struct {
	Lesson           curriculum.Lesson
	State            availability.State
	Progress         float64
	TimeSpentSeconds int
	Score            *float64
}

// ModuleSection groups a module's rows with its rollup numbers.
type ModuleSection struct {
	Module           curriculum.Module
	Completed        bool
	TimeSpentSeconds int
	CompletedLessons int
	Lessons          []LessonRow
}

// LevelSection groups a level's modules.
type LevelSection struct {
	Level     curriculum.Level
	Completed bool
	Modules   []ModuleSection
}

// Report is the full derived progress view for one learner.
type Report struct {
	GeneratedAt      time.Time
	LearnerID        string
	Levels           []LevelSection
	TimeSpentSeconds int
}

// Build walks the curriculum in level/module/lesson order and derives every
// row from the progress store. Progress entries for lessons the curriculum no
// longer defines are ignored.
func Build(graph *curriculum.Graph, reader availability.ProgressReader, learnerID string, now time.Time) Report {
	report := Report{
		GeneratedAt: now,
		LearnerID:   learnerID,
	}

	for _, level := range graph.Levels() {
		levelSection := LevelSection{
			Level:     level,
			Completed: availability.IsLevelCompleted(graph, reader, level.ID),
		}
		for _, module := range graph.ModulesOf(level.ID) {
			section := ModuleSection{
				Module:    module,
				Completed: availability.IsModuleCompleted(graph, reader, module.ID),
			}
			for _, lesson := range graph.LessonsOf(module.ID) {
				row := LessonRow{
					Lesson: lesson,
					State:  availability.LessonState(graph, reader, module.ID, lesson.ID),
				}
				if entry, ok := reader.GetLessonProgress(module.ID, lesson.ID); ok {
					row.Progress = entry.Progress
					row.TimeSpentSeconds = entry.TimeSpentSeconds
					row.Score = entry.Score
					section.TimeSpentSeconds += entry.TimeSpentSeconds
					if progress.IsComplete(entry.Progress) {
						section.CompletedLessons++
					}
				}
				section.Lessons = append(section.Lessons, row)
			}
			report.TimeSpentSeconds += section.TimeSpentSeconds
			levelSection.Modules = append(levelSection.Modules, section)
		}
		report.Levels = append(report.Levels, levelSection)
	}

	return report
}

// Markdown renders the report as a markdown document.
func Markdown(report Report) string {
	var sb strings.Builder

	sb.WriteString("# Learning Progress Report\n\n")
	if report.LearnerID != "" {
		sb.WriteString(fmt.Sprintf("- Learner: %s\n", report.LearnerID))
	}
	sb.WriteString(fmt.Sprintf("- Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("- Total time spent: %s\n\n", formatDuration(report.TimeSpentSeconds)))

	for _, level := range report.Levels {
		sb.WriteString(fmt.Sprintf("## Level: %s%s\n\n", level.Level.ID, completedSuffix(level.Completed)))

		for _, section := range level.Modules {
			title := section.Module.Title
			if title == "" {
				title = section.Module.ID
			}
			sb.WriteString(fmt.Sprintf("### %s%s\n\n", title, completedSuffix(section.Completed)))
			sb.WriteString(fmt.Sprintf("%d/%d lessons completed, %s spent\n\n",
				section.CompletedLessons, len(section.Lessons), formatDuration(section.TimeSpentSeconds)))

			if len(section.Lessons) == 0 {
				continue
			}
			sb.WriteString("| Lesson | State | Progress | Time | Score |\n")
			sb.WriteString("| --- | --- | --- | --- | --- |\n")
			for _, row := range section.Lessons {
				title := row.Lesson.Title
				if title == "" {
					title = row.Lesson.ID
				}
				sb.WriteString(fmt.Sprintf("| %s | %s | %.0f%% | %s | %s |\n",
					title, row.State, row.Progress*100,
					formatDuration(row.TimeSpentSeconds), formatScore(row.Score)))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// WriteMarkdown writes the rendered report to a .md file.
func WriteMarkdown(report Report, path string) error {
	if err := os.WriteFile(path, []byte(Markdown(report)), 0o644); err != nil {
		return fmt.Errorf("os.WriteFile(%s) > %w", path, err)
	}
	return nil
}

// ExportPDF converts a markdown report file to PDF next to it and returns
// the PDF path.
func ExportPDF(markdownPath string) (string, error) {
	if !strings.HasSuffix(markdownPath, ".md") {
		return "", fmt.Errorf("input file must have .md extension: %s", markdownPath)
	}

	content, err := os.ReadFile(markdownPath)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile(%s) > %w", markdownPath, err)
	}

	pdfPath := strings.TrimSuffix(markdownPath, ".md") + ".pdf"

	renderer := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", nil, mdtopdf.LIGHT)
	if err := renderer.Process(content); err != nil {
		return "", fmt.Errorf("renderer.Process() > %w", err)
	}

	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return pdfPath, nil
	}
	return absPath, nil
}

// TopLessonsByTime returns up to n lessons ordered by time spent descending.
// Ties keep curriculum order.
func TopLessonsByTime(report Report, n int) []LessonRow {
	var rows []LessonRow
	for _, level := range report.Levels {
		for _, section := range level.Modules {
			for _, row := range section.Lessons {
				if row.TimeSpentSeconds > 0 {
					rows = append(rows, row)
				}
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TimeSpentSeconds > rows[j].TimeSpentSeconds
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func completedSuffix(completed bool) string {
	if completed {
		return " ✓"
	}
	return ""
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%02ds", minutes, seconds%60)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}
