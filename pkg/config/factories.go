package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsCredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/pkg/credentials"
	"github.com/mitchellh/mapstructure"
)

// S3ClientConfig holds the options of the credentials.s3 section.
type S3ClientConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// BadgerOptions holds the options of the credentials.badger section.
type BadgerOptions struct {
	DBPath           string `mapstructure:"db_path"`
	InMemory         bool   `mapstructure:"in_memory"`
	BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
	IndexCacheSizeMB int64  `mapstructure:"index_cache_size_mb"`
}

// decodeOptions decodes a free-form options map into out. Values coming from
// environment variables arrive as strings, so weak typing is enabled.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// CreateCredentialStore loads the configured source and places the parsed
// table in the configured backend.
//
// Supported backends:
//   - "memory": immutable in-process map
//   - "badger": BadgerDB database, replaced wholesale with the loaded table
//
// The returned store must be closed by the caller.
func CreateCredentialStore(ctx context.Context, cfg *CredentialsConfig, log *logger.Logger) (credentials.Store, error) {
	src, err := CreateCredentialSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	table, err := credentials.Load(ctx, src, log)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory", "":
		return credentials.NewMemoryStore(table), nil
	case "badger":
		return createBadgerCredentialStore(ctx, cfg.Badger, table, log)
	default:
		return nil, fmt.Errorf("unknown credential backend: %q (supported: memory, badger)", cfg.Backend)
	}
}

// CreateCredentialSource resolves cfg.Source to a local file or an S3 object.
func CreateCredentialSource(ctx context.Context, cfg *CredentialsConfig) (credentials.Source, error) {
	if !credentials.IsS3URI(cfg.Source) {
		return credentials.FileSource{Path: cfg.Source}, nil
	}

	bucket, key, err := credentials.ParseS3URI(cfg.Source)
	if err != nil {
		return nil, err
	}

	client, err := createS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}

	return credentials.S3Source{Client: client, Bucket: bucket, Key: key}, nil
}

func createBadgerCredentialStore(ctx context.Context, options map[string]any, table credentials.Table, log *logger.Logger) (credentials.Store, error) {
	var opts BadgerOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger credential store options: %w", err)
	}

	store, err := credentials.NewBadgerStore(ctx, credentials.BadgerStoreConfig{
		DBPath:           opts.DBPath,
		InMemory:         opts.InMemory,
		BlockCacheSizeMB: opts.BlockCacheSizeMB,
		IndexCacheSizeMB: opts.IndexCacheSizeMB,
	}, table, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger credential store: %w", err)
	}

	log.Debug("Badger credential store initialized", logger.KeyPath, opts.DBPath, logger.KeyRecords, store.Len())
	return store, nil
}

// createS3Client builds an S3 client from the credentials.s3 options.
func createS3Client(ctx context.Context, options map[string]any) (*s3.Client, error) {
	var clientCfg S3ClientConfig
	if err := decodeOptions(options, &clientCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 client config: %w", err)
	}

	if clientCfg.Region == "" {
		return nil, fmt.Errorf("S3 credential source: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(clientCfg.Region))

	// Custom endpoint for MinIO, Localstack and other S3-compatible services
	if clientCfg.Endpoint != "" {
		//nolint:staticcheck // BaseEndpoint needs per-service wiring; the resolver covers every client
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               clientCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static keys when configured, otherwise the default credential chain
	if clientCfg.AccessKeyID != "" && clientCfg.SecretAccessKey != "" {
		credProvider := awsCredentials.NewStaticCredentialsProvider(
			clientCfg.AccessKeyID,
			clientCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := clientCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if clientCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}
