package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cde-sql/internal/history"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent query runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveSettings(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return fmt.Errorf("no history file configured: use --history or CDE_HISTORY_PATH")
			}

			store, err := history.Open(cfg.HistoryPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			//nolint:errcheck
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tJOB\tOUTCOME\tDURATION\tROWS\tSQL")
			for _, e := range entries {
				sql := e.SQL
				if len(sql) > 60 {
					sql = sql[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.StartedAt.Format("2006-01-02 15:04:05"),
					e.JobName, e.Outcome, e.Duration.Truncate(time.Millisecond), e.RowsReturned, sql)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}
