// Package commands implements the vcalc command line.
package commands

import (
	"github.com/marmos91/vcalc/pkg/adapter/vcalc"
	"github.com/marmos91/vcalc/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const flagSettings = "settings"

// NewRootCmd builds the vcalc command tree. Running the root command starts
// the server.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vcalc",
		Short: "vcalc - authenticated vector product service",
		Long: `vcalc authenticates each TCP client with a salted SHA-256
challenge-response handshake and then computes saturating products over
the vectors the client sends.

Credentials are read once at startup from a file of login:secret lines,
either on the local filesystem or in S3 (s3://bucket/key).

Every setting can also be given in a settings file (--settings) or through
VCALC_<SECTION>_<KEY> environment variables, for example:
  VCALC_ADAPTER_MAX_CONNECTIONS=64
  VCALC_ADAPTER_READ_TIMEOUT=30s
Flags take precedence over the environment, which takes precedence over
the settings file.`,
		Example: `  # Serve with the default credential file and port
  vcalc

  # Serve on a custom port with a local credential file
  vcalc -c ./users.conf -p 4000 -l ./vcalc.log

  # Read credentials from S3
  vcalc -c s3://my-bucket/vcalc/users.conf

  # Show the effective settings
  vcalc settings --settings /etc/vcalc/settings.yaml`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runServe,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP(config.FlagConfig, "c", config.DefaultCredentialsSource, "credential file path or s3://bucket/key URI")
	flags.StringP(config.FlagLog, "l", config.DefaultLogOutput, "log file path (appended; also mirrored to stdout)")
	flags.IntP(config.FlagPort, "p", vcalc.DefaultPort, "TCP port to listen on (1-65535)")
	flags.String(config.FlagLogLevel, "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.String(flagSettings, "", "optional YAML or TOML settings file")

	rootCmd.SetVersionTemplate("vcalc {{.Version}} (commit: " + Commit + ", built: " + Date + ")\n")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newSettingsCmd())

	return rootCmd
}

// Execute runs the command line against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the configuration using the settings file and flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	settingsPath, err := cmd.Flags().GetString(flagSettings)
	if err != nil {
		return nil, err
	}
	return config.Load(settingsPath, cmd.Flags())
}
