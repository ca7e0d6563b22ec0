package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging config files, environment
variable overrides and defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFiles...)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		out, err := cfg.YAML()
		if err != nil {
			return err
		}

		if _, err := os.Stdout.Write(out); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
