package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/history"
	"github.com/mpreviati/bandvault/pkg/remote"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// CreateStore builds the atomic document store from configuration.
func CreateStore(cfg *StorageConfig) *storage.Store {
	return storage.New(
		storage.WithLockTimeout(cfg.LockTimeout),
		storage.WithStaleAfter(cfg.LockStaleAfter),
		storage.WithBackup(!cfg.DisableWriteBackup),
	)
}

// CreateHistoryStore opens the scan-history database under the music root.
// Returns nil without error when history recording is disabled.
func CreateHistoryStore(ctx context.Context, cfg *Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	dir := filepath.Join(cfg.Collection.MusicRootPath, collection.ScanHistoryDirName)
	store, err := history.Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan history: %w", err)
	}
	return store, nil
}

// CreateMirror builds the S3 backup mirror from configuration.
// Returns nil without error when mirroring is disabled.
//
// The S3 section is decoded from its loose map form so the config file can
// omit any field; custom endpoints (MinIO, Localstack) and static
// credentials are supported, otherwise the default AWS chain applies.
func CreateMirror(ctx context.Context, cfg *RemoteConfig) (*remote.Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	type s3MirrorConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var mirrorCfg s3MirrorConfig
	if err := mapstructure.Decode(cfg.S3, &mirrorCfg); err != nil {
		return nil, fmt.Errorf("failed to decode remote s3 config: %w", err)
	}
	if mirrorCfg.Bucket == "" {
		return nil, fmt.Errorf("remote s3: bucket is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(mirrorCfg.Region))

	if mirrorCfg.Endpoint != "" {
		//nolint:staticcheck // BaseEndpoint migration pending, matches SDK guidance for custom endpoints
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               mirrorCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if mirrorCfg.AccessKeyID != "" && mirrorCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			mirrorCfg.AccessKeyID,
			mirrorCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := mirrorCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
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

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack compatibility.
		if mirrorCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	mirror, err := remote.NewMirror(remote.Config{
		Client:    client,
		Bucket:    mirrorCfg.Bucket,
		KeyPrefix: mirrorCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backup mirror: %w", err)
	}

	logger.Info("backup mirror initialized: bucket=%s, prefix=%s", mirrorCfg.Bucket, mirrorCfg.KeyPrefix)
	return mirror, nil
}
