package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// DefaultPageSize is the number of objects returned per List call
const DefaultPageSize = 1000

// Store implements bucketx.Store for MinIO and S3-compatible storage
type Store struct {
	client   *minio.Client
	config   *bucketx.Config
	logger   *zap.Logger
	instr    *bucketx.Instrumenter
	pageSize int
}

var (
	_ bucketx.Store         = (*Store)(nil)
	_ bucketx.BucketCreator = (*Store)(nil)
)

// NewStore creates a MinIO store. The client is built without contacting
// the server; missing credentials fail with bucketx.ErrNotConfigured.
func NewStore(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (*Store, error) {
	config, options := bucketx.GetEffectiveConfig(cfg, opts...)

	if err := bucketx.ValidateConfig(config); err != nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: err}
	}

	endpoint, secure, err := splitEndpoint(config.GetEndpointURL())
	if err != nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: fmt.Errorf("%w: %v", bucketx.ErrInvalidConfig, err)}
	}

	lookup := minio.BucketLookupAuto
	if config.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure:       secure,
		Region:       config.Region,
		BucketLookup: lookup,
		MaxRetries:   config.MaxRetries,
	})
	if err != nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: fmt.Errorf("%w: %v", bucketx.ErrInvalidConfig, err)}
	}

	options.GetLogger().Debug("Created MinIO client",
		zap.String("endpoint", endpoint),
		zap.Bool("secure", secure),
		zap.String("region", config.Region))

	return &Store{
		client:   client,
		config:   config,
		logger:   options.GetLogger(),
		instr:    options.GetInstrumenter(),
		pageSize: DefaultPageSize,
	}, nil
}

// NewStoreFunc adapts NewStore to the bucketx factory signature
func NewStoreFunc(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (bucketx.Store, error) {
	return NewStore(ctx, cfg, opts...)
}

func splitEndpoint(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

// List returns one page of objects. minio-go hides the wire pagination
// behind a channel, so pages are cut here and continue after the last key
// of the previous page.
func (s *Store) List(ctx context.Context, bucket string, opts bucketx.ListOptions) (bucketx.ListPage, error) {
	var page bucketx.ListPage

	err := s.instr.TraceOperation(ctx, "list", bucket, opts.Prefix, func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		objects := make([]bucketx.ObjectInfo, 0, s.pageSize)
		truncated := false

		for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
			Prefix:     opts.Prefix,
			Recursive:  true,
			StartAfter: opts.ContinuationToken,
		}) {
			if obj.Err != nil {
				return mapMinioError(obj.Err, "list", bucket, "")
			}
			if len(objects) == s.pageSize {
				truncated = true
				break
			}
			objects = append(objects, bucketx.ObjectInfo{
				Key:          obj.Key,
				Size:         obj.Size,
				ETag:         obj.ETag,
				LastModified: obj.LastModified,
			})
		}

		page = bucketx.ListPage{Objects: objects, IsTruncated: truncated}
		if truncated {
			page.NextToken = objects[len(objects)-1].Key
		}

		s.logger.Debug("Objects listed successfully",
			zap.String("bucket", bucket),
			zap.Int("count", len(objects)),
			zap.Bool("truncated", truncated))

		return nil
	})

	return page, err
}

// Get retrieves an object. minio-go defers the request until first use,
// so the object is stat'ed here to surface a missing key immediately.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, bucketx.ObjectInfo, error) {
	var (
		body io.ReadCloser
		info bucketx.ObjectInfo
	)

	err := s.instr.TraceOperation(ctx, "get", bucket, key, func(ctx context.Context) error {
		obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return mapMinioError(err, "get", bucket, key)
		}

		stat, err := obj.Stat()
		if err != nil {
			_ = obj.Close()
			return mapMinioError(err, "get", bucket, key)
		}

		info = bucketx.ObjectInfo{
			Key:          key,
			Size:         stat.Size,
			ETag:         stat.ETag,
			LastModified: stat.LastModified,
		}
		body = obj
		return nil
	})
	if err != nil {
		return nil, bucketx.ObjectInfo{}, err
	}

	return body, info, nil
}

// Put writes an object with a sniffed content type
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	return s.instr.TraceOperation(ctx, "put", bucket, key, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: mimetype.Detect(data).String(),
		})
		if err != nil {
			return mapMinioError(err, "put", bucket, key)
		}

		s.instr.RecordBytes("upload", int64(len(data)))
		return nil
	})
}

// Delete removes an object; a missing object is not an error
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return s.instr.TraceOperation(ctx, "delete", bucket, key, func(ctx context.Context) error {
		err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
		if err != nil {
			mapped := mapMinioError(err, "delete", bucket, key)
			if errors.Is(mapped, bucketx.ErrNotFound) {
				return nil
			}
			return mapped
		}
		return nil
	})
}

// CreateBucketIfNotExists creates the bucket when it is missing
func (s *Store) CreateBucketIfNotExists(ctx context.Context, bucket string) error {
	return s.instr.TraceOperation(ctx, "create_bucket", bucket, "", func(ctx context.Context) error {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return mapMinioError(err, "head_bucket", bucket, "")
		}
		if exists {
			return nil
		}

		s.logger.Info("Creating bucket", zap.String("bucket", bucket))
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
			if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
				return nil
			}
			return mapMinioError(err, "create_bucket", bucket, "")
		}
		return nil
	})
}

// mapMinioError converts minio-go errors to domain errors
func mapMinioError(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}

	wrap := func(sentinel error) error {
		return &bucketx.StoreError{
			Op:     op,
			Bucket: bucket,
			Key:    key,
			Err:    fmt.Errorf("%w: %v", sentinel, err),
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return wrap(bucketx.ErrAborted)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(bucketx.ErrTimeout)
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return wrap(bucketx.ErrNotFound)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return wrap(bucketx.ErrInvalidConfig)
	case "RequestTimeout", "RequestTimeTooSkewed":
		return wrap(bucketx.ErrTimeout)
	}

	return wrap(bucketx.ErrTransport)
}
