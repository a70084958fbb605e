package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "opsdash",
	Short: "Operational intelligence dashboard for equipment rental",
	Long:  "Reconciles revenue, utilization, and inventory across financial scorecards, POS exports, and RFID correlation data, and serves confidence-scored reports over HTTP.",
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
