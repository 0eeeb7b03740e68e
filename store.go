package bucketx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Domain Errors - use errors.Is for checking
var (
	// ErrNotConfigured indicates a store client was requested before the
	// access key and secret key were set
	ErrNotConfigured = errors.New("bucketx: credentials not configured")

	// ErrNotFound indicates the requested object (or bucket) was not found
	ErrNotFound = errors.New("bucketx: object not found")

	// ErrTransport indicates a network or store-side failure unrelated to
	// object existence
	ErrTransport = errors.New("bucketx: transport failure")

	// ErrFilesystem indicates a local directory creation or write failure
	ErrFilesystem = errors.New("bucketx: filesystem failure")

	// ErrInvalidConfig indicates the store configuration is invalid
	ErrInvalidConfig = errors.New("bucketx: invalid configuration")

	// ErrInvalidKey indicates the object key cannot be mapped to a local file
	ErrInvalidKey = errors.New("bucketx: invalid object key")

	// ErrAborted indicates the operation was cancelled
	ErrAborted = errors.New("bucketx: operation aborted")

	// ErrTimeout indicates the operation timed out
	ErrTimeout = errors.New("bucketx: operation timeout")
)

// StoreError wraps underlying errors with additional context
type StoreError struct {
	Op     string // operation that failed
	Bucket string // bucket name (if applicable)
	Key    string // object key (if applicable)
	Err    error  // underlying error
}

func (e *StoreError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("bucketx %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("bucketx %s %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("bucketx %s: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotConfigured checks if an error is or wraps ErrNotConfigured
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// ObjectInfo describes a listed or fetched object
type ObjectInfo struct {
	// Key is the object identifier
	Key string

	// Size is the object size in bytes
	Size int64

	// ETag is the entity tag (often MD5 hash)
	ETag string

	// LastModified is when the object was last modified
	LastModified time.Time
}

// ListOptions configures a single listing request
type ListOptions struct {
	// Prefix filters objects by key prefix; empty matches the whole bucket
	Prefix string

	// ContinuationToken continues from a previous page
	ContinuationToken string
}

// ListPage contains one page of listing results. The page size is chosen
// by the store.
type ListPage struct {
	// Objects contains the objects of this page in listing order
	Objects []ObjectInfo

	// NextToken continues the listing (empty if done)
	NextToken string

	// IsTruncated indicates more pages are available
	IsTruncated bool
}

// Store is the capability set a store client exposes to the orchestrator
// and the fixture generator.
type Store interface {
	// List retrieves one page of objects under a prefix
	List(ctx context.Context, bucket string, opts ListOptions) (ListPage, error)

	// Get retrieves an object body. It fails with ErrNotFound when the key
	// does not exist.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)

	// Put writes an object
	Put(ctx context.Context, bucket, key string, data []byte) error

	// Delete removes an object
	Delete(ctx context.Context, bucket, key string) error
}

// BucketCreator is implemented by stores that can create buckets.
type BucketCreator interface {
	CreateBucketIfNotExists(ctx context.Context, bucket string) error
}

// NewStoreFunc constructs a Store client from an explicit configuration.
// Each call returns an independent client; callers that need one client per
// worker call it once per worker.
type NewStoreFunc func(ctx context.Context, cfg *Config, opts ...Option) (Store, error)
