package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task_id>",
		Short: "Cancel the next scheduled resumption of a task",
		Long: `Marks a task canceled so the scheduler skips it when it becomes ready.
The task stays registered; use kill to tear it down.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			t, err := client.CancelTask(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d: canceled (status %s)\n", t.ID, t.Status)
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <task_id>",
		Short: "Tear down a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if err := client.KillTask(cmd.Context(), id); err != nil {
				return fmt.Errorf("kill task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s: killed\n", id)
			return nil
		},
	}
}
