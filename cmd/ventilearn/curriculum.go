package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ventilearn/ventilearn/internal/cli"
	"github.com/ventilearn/ventilearn/internal/curriculum"
)

func newCurriculumCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curriculum",
		Short: "Inspect the curriculum definition",
	}
	cmd.AddCommand(
		newCurriculumShowCommand(),
		newCurriculumValidateCommand(),
	)
	return cmd
}

func newCurriculumShowCommand() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the curriculum with each lesson's unlock state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			if !offline {
				if err := s.hydrate(cmd.Context()); err != nil {
					slog.Default().Warn("Could not fetch server progress; showing local state",
						"error", err)
				}
			}

			view := cli.NewCurriculumView(s.graph, s.store, os.Stdout)
			if err := view.Render(); err != nil {
				return fmt.Errorf("view.Render() > %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip fetching server progress")

	return cmd
}

func newCurriculumValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a curriculum definition file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Curriculum.File
			}

			graph, err := curriculum.Load(path)
			if err != nil {
				return fmt.Errorf("curriculum.Load() > %w", err)
			}

			levels := graph.Levels()
			modules, lessons := 0, 0
			for _, level := range levels {
				for _, module := range graph.ModulesOf(level.ID) {
					modules++
					lessons += len(graph.LessonsOf(module.ID))
				}
			}
			cmd.Printf("%s is valid: %d level(s), %d module(s), %d lesson(s)\n",
				path, len(levels), modules, lessons)
			return nil
		},
	}
}
