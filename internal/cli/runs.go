package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/taskhost/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var dbPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled script runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = hostConfig.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no journal: pass --db or set db_path in the config file")
			}
			st, err := openStore(cmd.Context(), dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, total, err := st.ListRuns(cmd.Context(), model.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-42s  %-10s  %-8s  %-25s  %s\n", "ID", "STATE", "FAILURES", "STARTED", "SCRIPT")
			fmt.Fprintf(out, "%-42s  %-10s  %-8s  %-25s  %s\n", "--", "-----", "--------", "-------", "------")
			for _, r := range runs {
				fmt.Fprintf(out, "%-42s  %-10s  %-8d  %-25s  %s\n", r.ID, r.State, r.Failures, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), r.Script)
			}
			if total > len(runs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal to read")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}
