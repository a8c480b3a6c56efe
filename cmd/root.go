package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/returns-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "returns-cli",
	Short: "Branch returns consolidation pipeline",
	Long:  "Consolidates weekly branch returns spreadsheets into one master dataset, flags every structural and content inconsistency, and ranks return reasons.",
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
