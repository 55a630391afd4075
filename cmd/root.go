package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intel-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intel-engine",
	Short: "Intelligence workflow orchestration and result aggregation",
	Long:  "Runs trees of dependent scanner tasks under concurrency limits with retry/backoff, and consolidates raw scan results into a deduplicated, confidence-scored entity graph.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
