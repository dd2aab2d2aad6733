package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/taskhost/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task_id>",
		Short: "Show one live task of a running host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			t, err := client.GetTask(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get task: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task: %d\n", t.ID)
			fmt.Fprintf(out, "  Thread:     %s\n", t.Identity)
			fmt.Fprintf(out, "  Owner:      %s\n", t.Owner)
			fmt.Fprintf(out, "  Status:     %s\n", t.Status)
			fmt.Fprintf(out, "  Capability: %s\n", t.Capability)
			if t.Canceled {
				fmt.Fprintf(out, "  Canceled:   yes\n")
			}
			switch t.Timing.Kind {
			case model.TimingWait, model.TimingDelay:
				fmt.Fprintf(out, "  Timing:     %s %s since %s\n", t.Timing.Kind, t.Timing.Duration, t.Timing.Start.Format("15:04:05.000"))
			default:
				fmt.Fprintf(out, "  Timing:     %s\n", t.Timing.Kind)
			}
			if t.PendingArgs > 0 {
				fmt.Fprintf(out, "  Pending:    %d resume value(s)\n", t.PendingArgs)
			}
			fmt.Fprintf(out, "  Created:    %s\n", t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
}
