package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intel-engine/internal/runlog"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent workflow run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Runlog.Enabled {
			return eris.New("runlog is disabled; set runlog.enabled to record run history")
		}

		store, err := runlog.NewSQLite(cfg.Runlog.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}

		runs, err := store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		for _, r := range runs {
			completed := "-"
			if r.CompletedAt != nil {
				completed = r.CompletedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-10s  %-9s  %2d tasks  %s  %s\n",
				r.ID[:8], r.Status, r.Priority, r.TaskCount,
				r.SubmittedAt.Format("2006-01-02 15:04:05"), completed)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}
