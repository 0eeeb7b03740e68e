package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// Store implements bucketx.Store on top of the AWS SDK S3 client
type Store struct {
	client *ClientManager
	logger *zap.Logger
	instr  *bucketx.Instrumenter
}

var (
	_ bucketx.Store         = (*Store)(nil)
	_ bucketx.BucketCreator = (*Store)(nil)
)

// NewStore creates a new S3 store. It fails with bucketx.ErrNotConfigured
// before any network activity when the credentials are missing.
func NewStore(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (*Store, error) {
	config, options := bucketx.GetEffectiveConfig(cfg, opts...)

	if err := bucketx.ValidateConfig(config); err != nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: err}
	}

	clientManager, err := NewClientManager(ctx, ClientConfig{
		Config: config,
		Logger: options.GetLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client manager: %w", err)
	}

	return &Store{
		client: clientManager,
		logger: options.GetLogger(),
		instr:  options.GetInstrumenter(),
	}, nil
}

// NewStoreFunc adapts NewStore to the bucketx factory signature
func NewStoreFunc(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (bucketx.Store, error) {
	return NewStore(ctx, cfg, opts...)
}

// List retrieves one page of objects under a prefix
func (s *Store) List(ctx context.Context, bucket string, opts bucketx.ListOptions) (bucketx.ListPage, error) {
	var page bucketx.ListPage

	err := s.instr.TraceOperation(ctx, "list", bucket, opts.Prefix, func(ctx context.Context) error {
		s.logger.Debug("Listing objects",
			zap.String("bucket", bucket),
			zap.String("prefix", opts.Prefix))

		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
		}

		if opts.Prefix != "" {
			input.Prefix = aws.String(opts.Prefix)
		}

		if opts.ContinuationToken != "" {
			input.ContinuationToken = aws.String(opts.ContinuationToken)
		}

		output, err := s.client.GetS3Client().ListObjectsV2(ctx, input)
		if err != nil {
			return MapS3Error(err, "list", bucket, "")
		}

		page = bucketx.ListPage{
			Objects:     make([]bucketx.ObjectInfo, 0, len(output.Contents)),
			IsTruncated: aws.ToBool(output.IsTruncated),
			NextToken:   aws.ToString(output.NextContinuationToken),
		}

		for _, obj := range output.Contents {
			if obj.Key == nil {
				continue
			}

			info := bucketx.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}

			page.Objects = append(page.Objects, info)
		}

		s.logger.Debug("Objects listed successfully",
			zap.String("bucket", bucket),
			zap.Int("count", len(page.Objects)),
			zap.Bool("truncated", page.IsTruncated))

		return nil
	})

	return page, err
}

// Get retrieves an object as a streaming reader
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, bucketx.ObjectInfo, error) {
	var (
		body io.ReadCloser
		info bucketx.ObjectInfo
	)

	err := s.instr.TraceOperation(ctx, "get", bucket, key, func(ctx context.Context) error {
		s.logger.Debug("Getting object",
			zap.String("bucket", bucket),
			zap.String("key", key))

		output, err := s.client.GetS3Client().GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return MapS3Error(err, "get", bucket, key)
		}

		info = bucketx.ObjectInfo{
			Key:  key,
			Size: aws.ToInt64(output.ContentLength),
			ETag: aws.ToString(output.ETag),
		}
		if output.LastModified != nil {
			info.LastModified = *output.LastModified
		}
		body = output.Body

		return nil
	})
	if err != nil {
		return nil, bucketx.ObjectInfo{}, err
	}

	return body, info, nil
}

// Put stores an object. The content type is sniffed from the payload.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	return s.instr.TraceOperation(ctx, "put", bucket, key, func(ctx context.Context) error {
		contentType := mimetype.Detect(data).String()

		s.logger.Debug("Putting object",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Int("size", len(data)),
			zap.String("content_type", contentType))

		_, err := s.client.GetS3Client().PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return MapS3Error(err, "put", bucket, key)
		}

		s.instr.RecordBytes("upload", int64(len(data)))
		return nil
	})
}

// Delete removes a single object
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return s.instr.TraceOperation(ctx, "delete", bucket, key, func(ctx context.Context) error {
		s.logger.Debug("Deleting object",
			zap.String("bucket", bucket),
			zap.String("key", key))

		_, err := s.client.GetS3Client().DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return MapS3Error(err, "delete", bucket, key)
		}
		return nil
	})
}

// CreateBucketIfNotExists creates the bucket when it is missing
func (s *Store) CreateBucketIfNotExists(ctx context.Context, bucket string) error {
	return s.instr.TraceOperation(ctx, "create_bucket", bucket, "", func(ctx context.Context) error {
		return s.client.CreateBucketIfNotExists(ctx, bucket)
	})
}

// Close releases the client. The SDK client holds no resources that need
// explicit cleanup.
func (s *Store) Close() error {
	s.logger.Debug("Closing S3 store")
	return nil
}
