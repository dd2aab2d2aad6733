package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/taskhost/pkg/model"
)

func newListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the live tasks of a running host",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := client.ListTasks(cmd.Context(), model.TaskStatus(status))
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No live tasks.")
				return nil
			}

			fmt.Fprintf(out, "%-6s  %-10s  %-8s  %-24s  %s\n", "ID", "STATUS", "CANCELED", "THREAD", "OWNER")
			fmt.Fprintf(out, "%-6s  %-10s  %-8s  %-24s  %s\n", "--", "------", "--------", "------", "-----")
			for _, t := range tasks {
				fmt.Fprintf(out, "%-6d  %-10s  %-8t  %-24s  %s\n", t.ID, t.Status, t.Canceled, t.Identity, t.Owner)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show tasks with this status")
	return cmd
}
