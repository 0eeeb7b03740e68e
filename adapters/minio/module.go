package minio

import (
	"go.uber.org/fx"

	"github.com/gostratum/bucketx"
)

// Module returns an fx.Module which provides the MinIO store factory
func Module() fx.Option {
	return fx.Module("bucketx-minio",
		fx.Provide(
			func() bucketx.NewStoreFunc { return NewStoreFunc },
		),
	)
}
