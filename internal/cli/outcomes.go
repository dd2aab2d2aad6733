package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/me/taskhost/pkg/model"
)

func newOutcomesCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		kind   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List journaled task outcomes",
		Long: `Lists failure and teardown outcomes from the journal. Reads the
SQLite file given by --db, or asks the running host at --server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.ListOptions{Limit: limit, RunID: runID, Kind: model.OutcomeKind(kind)}

			if dbPath == "" {
				dbPath = hostConfig.DBPath
			}
			var entries []*model.JournalEntry
			var total int
			if dbPath != "" {
				st, err := openStore(cmd.Context(), dbPath, logger)
				if err != nil {
					return err
				}
				defer st.Close()
				entries, total, err = st.ListOutcomes(cmd.Context(), opts)
				if err != nil {
					return fmt.Errorf("list outcomes: %w", err)
				}
			} else {
				var err error
				entries, total, err = client.ListOutcomes(cmd.Context(), opts)
				if err != nil {
					return fmt.Errorf("list outcomes: %w", err)
				}
			}

			printOutcomes(cmd.OutOrStdout(), entries, total)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal to read (default: ask --server)")
	cmd.Flags().StringVar(&runID, "run", "", "Only show outcomes of this run")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show outcomes of this kind (failed, killed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of outcomes")
	return cmd
}

func printOutcomes(out io.Writer, entries []*model.JournalEntry, total int) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No outcomes found.")
		return
	}
	fmt.Fprintf(out, "%-5s  %-6s  %-7s  %-10s  %-16s  %s\n", "SEQ", "TASK", "KIND", "CAUSE", "OWNER", "MESSAGE")
	fmt.Fprintf(out, "%-5s  %-6s  %-7s  %-10s  %-16s  %s\n", "---", "----", "----", "-----", "-----", "-------")
	for _, e := range entries {
		o := e.Outcome
		fmt.Fprintf(out, "%-5d  %-6d  %-7s  %-10s  %-16s  %s\n", e.Seq, o.TaskID, o.Kind, o.Cause, o.Owner, o.Message)
	}
	if total > len(entries) {
		fmt.Fprintf(out, "\n(%d of %d shown)\n", len(entries), total)
	}
}
