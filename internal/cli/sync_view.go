package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ventilearn/ventilearn/internal/outbox"
)

// SyncStatusView prints the outbox queue of not-yet-confirmed progress
// events.
type SyncStatusView struct {
	writer io.Writer

	green  *color.Color
	yellow *color.Color
	red    *color.Color
}

func NewSyncStatusView(writer io.Writer) *SyncStatusView {
	return &SyncStatusView{
		writer: writer,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
	}
}

// Render lists the pending events in queue order. Events that already
// failed delivery attempts are highlighted.
func (v *SyncStatusView) Render(pending []outbox.Event) error {
	if len(pending) == 0 {
		if _, err := v.green.Fprintln(v.writer, "All progress is synced."); err != nil {
			return fmt.Errorf("green.Fprintln() > %w", err)
		}
		return nil
	}

	if _, err := v.yellow.Fprintf(v.writer, "%d event(s) waiting to sync:\n", len(pending)); err != nil {
		return fmt.Errorf("yellow.Fprintf() > %w", err)
	}
	for _, event := range pending {
		line := fmt.Sprintf("  %s/%s progress=%.0f%% time=+%ds queued=%s",
			event.ModuleID, event.LessonID, event.Progress*100, event.TimeSpentDelta,
			event.EnqueuedAt.UTC().Format(time.RFC3339))

		var err error
		if event.Attempts > 0 {
			_, err = v.red.Fprintf(v.writer, "%s attempts=%d\n", line, event.Attempts)
		} else {
			_, err = fmt.Fprintln(v.writer, line)
		}
		if err != nil {
			return fmt.Errorf("Fprintln() > %w", err)
		}
	}
	return nil
}
