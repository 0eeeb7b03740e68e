package fixture

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// Module provides a *Generator. A fixture Config may be supplied to the
// graph; DefaultConfig is used otherwise.
func Module() fx.Option {
	return fx.Module("bucketx-fixture",
		fx.Provide(NewFromParams),
	)
}

// Params defines the dependencies of a generator
type Params struct {
	fx.In

	StoreConfig  *bucketx.Config
	NewStore     bucketx.NewStoreFunc
	Fixture      *Config               `optional:"true"`
	Logger       *zap.Logger           `optional:"true"`
	Instrumenter *bucketx.Instrumenter `optional:"true"`
}

// NewFromParams is an fx-friendly constructor for Generator
func NewFromParams(p Params) (*Generator, error) {
	cfg := DefaultConfig()
	if p.Fixture != nil {
		cfg = *p.Fixture
	}

	var opts []bucketx.Option
	if p.Logger != nil {
		opts = append(opts, bucketx.WithLogger(p.Logger))
	}
	if p.Instrumenter != nil {
		opts = append(opts, bucketx.WithInstrumenter(p.Instrumenter))
	}

	return New(p.StoreConfig, p.NewStore, cfg, opts...)
}
