package s3

import (
	"go.uber.org/fx"

	"github.com/gostratum/bucketx"
)

// Module returns an fx.Module which provides the S3 store factory.
// Consumers should opt-in this module explicitly (e.g. s3.Module()) instead
// of relying on package init side-effects. Clients are built by the
// consumers of the factory, one per session or per worker.
func Module() fx.Option {
	return fx.Module("bucketx-s3",
		fx.Provide(
			func() bucketx.NewStoreFunc { return NewStoreFunc },
		),
	)
}
