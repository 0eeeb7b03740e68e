package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/gostratum/bucketx"
)

// MapS3Error converts S3 SDK errors to domain errors. The SDK wraps service
// errors in operation errors, so matching goes through errors.As.
func MapS3Error(err error, op, bucket, key string) error {
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

	if errors.Is(err, context.Canceled) {
		return wrap(bucketx.ErrAborted)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(bucketx.ErrTimeout)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return wrap(bucketx.ErrNotFound)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied", "InvalidBucketName":
			return wrap(bucketx.ErrInvalidConfig)
		case "RequestTimeout", "RequestTimeTooSkewed":
			return wrap(bucketx.ErrTimeout)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return wrap(bucketx.ErrNotFound)
	}

	return wrap(bucketx.ErrTransport)
}
