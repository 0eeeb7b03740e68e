package s3

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// ClientConfig holds the configuration for creating S3 clients
type ClientConfig struct {
	Config *bucketx.Config
	Logger *zap.Logger
}

// ClientManager owns one S3 service client. It performs no network
// activity on construction.
type ClientManager struct {
	s3Client *s3.Client
	config   *bucketx.Config
	logger   *zap.Logger
}

// NewClientManager creates a new S3 client manager. It fails with
// bucketx.ErrNotConfigured when the credentials are missing.
func NewClientManager(ctx context.Context, clientConfig ClientConfig) (*ClientManager, error) {
	if clientConfig.Config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if clientConfig.Logger == nil {
		clientConfig.Logger = zap.NewNop()
	}

	cfg := clientConfig.Config
	logger := clientConfig.Logger

	if !cfg.IsConfigured() {
		return nil, &bucketx.StoreError{Op: "connect", Err: bucketx.ErrNotConfigured}
	}

	logger.Debug("Creating S3 client manager",
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.EndpointURL),
		zap.Bool("use_path_style", cfg.UsePathStyle),
	)

	awsConfig, err := buildAWSConfigWithLoader(ctx, cfg, logger, func(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		// Configure path-style addressing for MinIO compatibility
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.GetEndpointURL())
		}

		// S3-compatible servers do not all understand the default
		// flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired

		o.HTTPClient = newHTTPClient(cfg.RequestTimeout)
	})

	return &ClientManager{
		s3Client: s3Client,
		config:   cfg,
		logger:   logger,
	}, nil
}

// newHTTPClient bounds connecting and waiting for response headers by
// timeout. Reading a body is not bounded, so large or slow objects stream
// for as long as the server keeps sending.
func newHTTPClient(timeout time.Duration) *awshttp.BuildableClient {
	return awshttp.NewBuildableClient().
		WithTimeout(0).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = timeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.ResponseHeaderTimeout = timeout
		})
}

// awsConfigLoader is a function that loads an aws.Config given LoadOptions.
type awsConfigLoader func(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error)

// buildAWSConfigWithLoader builds an AWS config using the supplied loader.
// Only static credentials are used; the SDK default chain is never
// consulted for credentials.
func buildAWSConfigWithLoader(ctx context.Context, cfg *bucketx.Config, logger *zap.Logger, loader awsConfigLoader) (aws.Config, error) {
	if !cfg.IsConfigured() {
		return aws.Config{}, bucketx.ErrNotConfigured
	}

	var options []func(*config.LoadOptions) error

	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}

	options = append(options, config.WithCredentialsProvider(
		credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	))

	// Configure retries with exponential backoff
	options = append(options, config.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = cfg.MaxRetries
			o.MaxBackoff = cfg.BackoffMax
			o.Backoff = createBackoffStrategy(cfg)
		})
	}))

	awsConfig, err := loader(ctx, options...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	logger.Debug("AWS config loaded",
		zap.String("region", awsConfig.Region),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	return awsConfig, nil
}

// createBackoffStrategy creates a custom backoff strategy
func createBackoffStrategy(cfg *bucketx.Config) retry.BackoffDelayerFunc {
	return func(attempt int, err error) (time.Duration, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.BackoffInitial
		b.MaxInterval = cfg.BackoffMax
		b.MaxElapsedTime = 0
		b.Multiplier = 2.0
		b.RandomizationFactor = 0.1
		b.Reset()

		var delay time.Duration
		for i := 0; i < attempt; i++ {
			delay = b.NextBackOff()
			if delay == backoff.Stop {
				break
			}
		}

		return delay, nil
	}
}

// GetS3Client returns the configured S3 client
func (cm *ClientManager) GetS3Client() *s3.Client {
	return cm.s3Client
}

// BucketExists checks if the bucket exists and is accessible
func (cm *ClientManager) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := cm.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		mapped := MapS3Error(err, "head_bucket", bucket, "")
		if errors.Is(mapped, bucketx.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}

	return true, nil
}

// CreateBucketIfNotExists creates the bucket if it doesn't exist
func (cm *ClientManager) CreateBucketIfNotExists(ctx context.Context, bucket string) error {
	exists, err := cm.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if exists {
		cm.logger.Debug("Bucket already exists", zap.String("bucket", bucket))
		return nil
	}

	cm.logger.Info("Creating bucket", zap.String("bucket", bucket))

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}

	// For regions other than us-east-1, we need to specify the location constraint
	if !cm.config.IsCustomEndpoint() && cm.config.Region != "" && cm.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(cm.config.Region),
		}
	}

	if _, err := cm.s3Client.CreateBucket(ctx, input); err != nil {
		var owned *s3Types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return MapS3Error(err, "create_bucket", bucket, "")
	}

	return nil
}
