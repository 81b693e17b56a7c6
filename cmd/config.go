package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/rawsniff/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the effective values",
		Long: `Load the config file (if any), apply RAWSNIFF_* environment overrides and
defaults, validate the result and print it as YAML.

Examples:
  rawsniff config
  rawsniff config -c /etc/rawsniff/config.yml
  RAWSNIFF_CAPTURE_INTERFACE=eth1 rawsniff config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(configFile, cmd.OutOrStdout())
		},
	}
}

// effectiveConfig mirrors the file layout under the rawsniff root key.
type effectiveConfig struct {
	Rawsniff *config.GlobalConfig `yaml:"rawsniff"`
}

func runConfig(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(effectiveConfig{Rawsniff: cfg}); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
