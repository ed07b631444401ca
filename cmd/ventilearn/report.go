package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ventilearn/ventilearn/internal/report"
)

func newReportCommand() *cobra.Command {
	var output string
	var exportPDF bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a markdown progress report, optionally exported to PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			if !offline {
				if err := s.hydrate(cmd.Context()); err != nil {
					slog.Default().Warn("Could not fetch server progress; reporting local state",
						"error", err)
				}
			}

			built := report.Build(s.graph, s.store, s.cfg.Learner.ID, time.Now())
			if err := report.WriteMarkdown(built, output); err != nil {
				return fmt.Errorf("report.WriteMarkdown() > %w", err)
			}
			fmt.Printf("Wrote %s\n", output)

			if exportPDF {
				pdfPath, err := report.ExportPDF(output)
				if err != nil {
					return fmt.Errorf("report.ExportPDF() > %w", err)
				}
				fmt.Printf("Wrote %s\n", pdfPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "progress-report.md", "markdown output path")
	cmd.Flags().BoolVar(&exportPDF, "pdf", false, "also export the report to PDF")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip fetching server progress")

	return cmd
}
