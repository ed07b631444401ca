package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ventilearn/ventilearn/internal/cli"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and drain the queue of unsent progress events",
	}
	cmd.AddCommand(
		newSyncFlushCommand(),
		newSyncStatusCommand(),
	)
	return cmd
}

func newSyncFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send queued progress events to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			pending := len(s.queue.ListPending())
			if pending == 0 {
				cmd.Println("Nothing to sync.")
				return nil
			}
			cmd.Printf("Syncing %d queued event(s)...\n", pending)

			if err := s.engine.Flush(cmd.Context()); err != nil {
				return fmt.Errorf("engine.Flush() > %w", err)
			}

			cmd.Printf("Done. %d event(s) remaining. [%s]\n",
				len(s.queue.ListPending()), s.engine.Status())
			return nil
		},
	}
}

func newSyncStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queued progress events without sending them",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()

			view := cli.NewSyncStatusView(cmd.OutOrStdout())
			if err := view.Render(s.queue.ListPending()); err != nil {
				return fmt.Errorf("view.Render() > %w", err)
			}
			return nil
		},
	}
}
