// cmd/history.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/layoutprobe/internal/observability"
)

// newHistoryCmd lists stored runs, or the violations of one run.
func newHistoryCmd(d deps) *cobra.Command {
	var (
		runID string
		limit int
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Shows audit runs saved with --save",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("history requires database.url (or LAYOUTPROBE_DATABASE_URL)")
			}

			s, err := d.openStore(ctx, cfg.Database.URL, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				vs, err := s.Violations(ctx, runID)
				if err != nil {
					return err
				}
				if len(vs) == 0 {
					fmt.Fprintf(out, "No violations recorded for run %s\n", runID)
					return nil
				}
				for _, v := range vs {
					fmt.Fprintf(out, "%s @ %s (%dx%d) %s\n  %s\n", v.Check, v.Viewport, v.Width, v.Height, v.Path, v.Summary)
				}
				return nil
			}

			runs, err := s.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %s  %d passed, %d failed, %d errored\n",
					r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.BaseURL, r.Passed, r.Failed, r.Errored)
			}
			return nil
		},
	}

	historyCmd.Flags().StringVar(&runID, "run-id", "", "Show the violations of this run")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return historyCmd
}
