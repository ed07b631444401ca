package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ventilearn/ventilearn/internal/syncengine"
)

func newProgressCommand() *cobra.Command {
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Report and inspect lesson progress",
	}

	progressCmd.AddCommand(newProgressReportCommand())
	progressCmd.AddCommand(newProgressShowCommand())

	return progressCmd
}

func newProgressReportCommand() *cobra.Command {
	var moduleID string
	var fraction float64
	var timeSpent int
	var score float64
	var hasScore bool

	cmd := &cobra.Command{
		Use:   "report [lesson-id]",
		Short: "Record progress on a lesson and sync it to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			delta := syncengine.Delta{
				LessonID:       args[0],
				ModuleID:       moduleID,
				Progress:       fraction,
				TimeSpentDelta: timeSpent,
			}
			if hasScore {
				delta.Score = &score
			}

			record, err := s.engine.Report(cmd.Context(), delta)
			if err != nil {
				return fmt.Errorf("engine.Report() > %w", err)
			}

			fmt.Printf("Lesson %s: %.0f%%", record.LessonID, record.Progress*100)
			if record.Completed {
				fmt.Print(" (completed)")
			}
			fmt.Printf(" [%s]\n", s.engine.Status())
			return nil
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module ID (resolved from the curriculum when omitted)")
	cmd.Flags().Float64Var(&fraction, "progress", 0, "progress fraction between 0.0 and 1.0")
	cmd.Flags().IntVar(&timeSpent, "time", 0, "seconds spent since the last report")
	cmd.Flags().Float64Var(&score, "score", 0, "assessment score for the lesson")
	cmd.Flags().BoolVar(&hasScore, "with-score", false, "record the --score value")
	if err := cmd.MarkFlagRequired("progress"); err != nil {
		panic(err)
	}

	return cmd
}

func newProgressShowCommand() *cobra.Command {
	var moduleID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the server's progress records",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			records, err := s.client.FetchProgress(cmd.Context(), moduleID, "")
			if err != nil {
				return fmt.Errorf("client.FetchProgress() > %w", err)
			}
			if len(records) == 0 {
				fmt.Println("No progress recorded yet.")
				return nil
			}
			for _, record := range records {
				line := fmt.Sprintf("%s/%s: %.0f%%, %ds spent",
					record.ModuleID, record.LessonID, record.Progress*100, record.TimeSpentSeconds)
				if record.Score != nil {
					line += fmt.Sprintf(", score %.1f", *record.Score)
				}
				if record.Completed {
					line += ", completed"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "only show one module")

	return cmd
}
