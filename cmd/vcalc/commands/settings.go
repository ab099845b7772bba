package commands

import (
	"fmt"
	"io"
	"maps"

	"github.com/marmos91/vcalc/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the effective settings as YAML",
		Long: `Print the settings vcalc would run with, after merging defaults, the
settings file, VCALC_* environment variables and flags.

The output is a valid settings file. Secret values are masked.

Examples:
  # Show the defaults
  vcalc settings

  # Show what a settings file resolves to
  vcalc settings --settings /etc/vcalc/settings.yaml -p 4000`,
		Args: cobra.NoArgs,
		RunE: runSettings,
	}
}

func runSettings(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return writeSettings(cmd.OutOrStdout(), cfg)
}

// writeSettings encodes cfg as YAML with secrets masked.
func writeSettings(w io.Writer, cfg *config.Config) error {
	out := *cfg
	out.Credentials.S3 = maps.Clone(cfg.Credentials.S3)
	if secret, ok := out.Credentials.S3["secret_access_key"].(string); ok && secret != "" {
		out.Credentials.S3["secret_access_key"] = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}
