package config

import (
	"strings"
	"time"

	"github.com/marmos91/vcalc/pkg/adapter/vcalc"
	"github.com/spf13/viper"
)

const (
	DefaultCredentialsSource = "/etc/vcalc.conf"
	DefaultLogOutput         = "/var/log/vcalc.log"
	DefaultBadgerPath        = "/var/lib/vcalc/credentials"
	DefaultS3Region          = "us-east-1"
	DefaultS3MaxRetries      = 10
	DefaultMetricsPort       = 9090
)

// registerDefaults makes every key known to viper so environment variables
// resolve even when no settings file mentions the key.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", DefaultLogOutput)
	v.SetDefault("logging.console", true)

	v.SetDefault("credentials.source", DefaultCredentialsSource)
	v.SetDefault("credentials.backend", "memory")
	v.SetDefault("credentials.badger.db_path", DefaultBadgerPath)
	v.SetDefault("credentials.badger.in_memory", false)
	v.SetDefault("credentials.s3.region", DefaultS3Region)
	v.SetDefault("credentials.s3.endpoint", "")
	v.SetDefault("credentials.s3.access_key_id", "")
	v.SetDefault("credentials.s3.secret_access_key", "")
	v.SetDefault("credentials.s3.max_retries", DefaultS3MaxRetries)

	v.SetDefault("adapter.port", vcalc.DefaultPort)
	v.SetDefault("adapter.max_connections", 0)
	v.SetDefault("adapter.read_timeout", "0s")
	v.SetDefault("adapter.write_timeout", "0s")
	v.SetDefault("adapter.shutdown_timeout", "30s")
	v.SetDefault("adapter.metrics_log_interval", "5m")
	v.SetDefault("adapter.max_vectors", 0)
	v.SetDefault("adapter.max_vector_length", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", DefaultMetricsPort)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// The adapter port is deliberately left alone: zero is not a usable port for
// the service and must fail validation rather than be silently replaced.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCredentialsDefaults(&cfg.Credentials)
	applyAdapterDefaults(&cfg.Adapter)

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = DefaultLogOutput
	}
}

func applyCredentialsDefaults(cfg *CredentialsConfig) {
	if cfg.Source == "" {
		cfg.Source = DefaultCredentialsSource
	}
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	cfg.Backend = strings.ToLower(cfg.Backend)

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = DefaultBadgerPath
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = DefaultS3Region
	}
	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = DefaultS3MaxRetries
	}
}

// applyAdapterDefaults sets adapter defaults. Limits and deadlines default
// to zero, which means unlimited.
func applyAdapterDefaults(cfg *vcalc.Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Console: true,
		},
		Adapter: vcalc.Config{
			Port:               vcalc.DefaultPort,
			MetricsLogInterval: 5 * time.Minute,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
