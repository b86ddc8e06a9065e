package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mapengine",
	Short: "Viewport-driven map discovery engine",
	Long:  "Resolves the visible city, discovers nearby points of interest from OpenStreetMap, and merges them with the group's saved places into a live map overlay.",
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
