package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/vcalc/pkg/adapter/vcalc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names understood by Load. The CLI registers flags under these names
// and Load binds them over the corresponding settings keys.
const (
	FlagConfig   = "config"
	FlagLog      = "log"
	FlagPort     = "port"
	FlagLogLevel = "log-level"
)

// flagBindings maps CLI flags to the settings keys they override.
var flagBindings = map[string]string{
	FlagConfig:   "credentials.source",
	FlagLog:      "logging.output",
	FlagPort:     "adapter.port",
	FlagLogLevel: "logging.level",
}

// Config represents the complete vcalc configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (VCALC_*)
//  3. Settings file (YAML or TOML), when one is given
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Credentials selects the credential source and the backend holding it
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`

	// Adapter configures the TCP listener.
	// Uses the vcalc.Config type directly to avoid duplication.
	Adapter vcalc.Config `mapstructure:"adapter" yaml:"adapter"`

	// Metrics controls the Prometheus exposition endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	// opened in append mode
	Output string `mapstructure:"output" validate:"required" yaml:"output"`

	// Console mirrors file output to stdout
	Console bool `mapstructure:"console" yaml:"console"`
}

// CredentialsConfig specifies where credentials come from and where they
// are kept once parsed.
//
// Only the backend section matching Backend is used. The S3 section is only
// used when Source is an s3:// URI.
type CredentialsConfig struct {
	// Source is a local file path or an s3://bucket/key URI
	Source string `mapstructure:"source" validate:"required" yaml:"source"`

	// Backend selects the store implementation
	// Valid values: memory, badger
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger" yaml:"backend"`

	// Badger contains BadgerDB-specific configuration
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains the client configuration for s3:// sources
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`
}

// Load builds the configuration from defaults, the optional settings file,
// VCALC_* environment variables and the given flags.
//
// An empty settingsPath skips the settings file. A named file that cannot be
// read is an error. flags may be nil; only flags that were set on the command
// line override the other sources.
func Load(settingsPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setupViper(v)
	registerDefaults(v)

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, settingsPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support.
// Example: VCALC_ADAPTER_MAX_CONNECTIONS=64
func setupViper(v *viper.Viper) {
	v.SetEnvPrefix("VCALC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads the settings file if one was requested.
func readConfigFile(v *viper.Viper, settingsPath string) error {
	if settingsPath == "" {
		return nil
	}

	v.SetConfigFile(settingsPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("settings file not found: %s", settingsPath)
		}
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	return nil
}
