package transfer

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// Module provides an *Orchestrator built from the configuration and store
// factory in the graph.
func Module() fx.Option {
	return fx.Module("bucketx-transfer",
		fx.Provide(NewFromParams),
	)
}

// Params defines the dependencies of an orchestrator
type Params struct {
	fx.In

	Config       *bucketx.Config
	NewStore     bucketx.NewStoreFunc
	Logger       *zap.Logger           `optional:"true"`
	Instrumenter *bucketx.Instrumenter `optional:"true"`
}

// NewFromParams is an fx-friendly constructor for Orchestrator
func NewFromParams(p Params) *Orchestrator {
	var opts []bucketx.Option
	if p.Logger != nil {
		opts = append(opts, bucketx.WithLogger(p.Logger))
	}
	if p.Instrumenter != nil {
		opts = append(opts, bucketx.WithInstrumenter(p.Instrumenter))
	}
	return New(p.Config, p.NewStore, opts...)
}
