package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intel-engine/internal/aggregate"
	"github.com/sells-group/intel-engine/internal/model"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <results.json>",
	Short: "Consolidate raw scan results into a scored entity report",
	Long:  "Reads a JSON array of scan result records ({scanner, confidence, timestamp, result}) and prints the deduplicated, confidence-scored entity graph.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read results %s", args[0])
		}

		var records []model.ScanResultRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return eris.Wrap(err, "parse results json")
		}

		agg := aggregate.NewAggregator(cfg.Aggregate)
		report, err := agg.Aggregate(cmd.Context(), records)
		if err != nil {
			return err
		}

		return printJSON(report)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
