package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/vcalc/pkg/credentials"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here; validation
// accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if credentials.IsS3URI(cfg.Credentials.Source) {
		if _, _, err := credentials.ParseS3URI(cfg.Credentials.Source); err != nil {
			return fmt.Errorf("credentials.source: %w", err)
		}

		var s3Opts S3ClientConfig
		if err := decodeOptions(cfg.Credentials.S3, &s3Opts); err != nil {
			return fmt.Errorf("credentials.s3: %w", err)
		}
		if s3Opts.Region == "" {
			return fmt.Errorf("credentials.s3.region is required for s3:// sources")
		}
		if (s3Opts.AccessKeyID == "") != (s3Opts.SecretAccessKey == "") {
			return fmt.Errorf("credentials.s3: access_key_id and secret_access_key must be set together")
		}
	}

	if cfg.Credentials.Backend == "badger" {
		var badgerOpts BadgerOptions
		if err := decodeOptions(cfg.Credentials.Badger, &badgerOpts); err != nil {
			return fmt.Errorf("credentials.badger: %w", err)
		}
		if !badgerOpts.InMemory && badgerOpts.DBPath == "" {
			return fmt.Errorf("credentials.badger.db_path is required unless in_memory is set")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapter.Port {
		return fmt.Errorf("metrics.port %d conflicts with adapter.port", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
