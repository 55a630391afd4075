package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/intel-engine/internal/scanner"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List registered scanner capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := scanner.NewRegistry()
		scanner.RegisterBuiltins(registry)

		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}
