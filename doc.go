// Package bucketx downloads objects from S3-compatible object stores to a
// local directory.
//
// The root package holds the shared pieces: the credential context
// (Configure, Config), the Store capability set every provider implements,
// listing pagination, the key-to-path mapping and the optional
// instrumenter. Concrete providers live under adapters/:
//
//	import (
//	    "github.com/gostratum/bucketx"
//	    "github.com/gostratum/bucketx/adapters/s3"
//	)
//
//	cfg := bucketx.NewConfig(bucketx.Configure(accessKey, secretKey, endpoint))
//	store, err := s3.NewStore(ctx, cfg)
//
// Bulk downloads are driven by the transfer package; the fixture package
// writes and removes synthetic test objects.
package bucketx
