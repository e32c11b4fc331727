package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cascade/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the merged configuration as YAML.

Precedence (highest first): environment variables (CASCADE_* and
ANTHROPIC_API_KEY), project config (.cascade.yaml up the tree), user
config (~/.config/cascade/config.yaml), built-in defaults.

The API key is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if cfg.Provider.APIKey != "" {
			cfg.Provider.APIKey = "****"
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	},
}
