package bucketx

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the base bucketx wiring for fx: the optional
// instrumenter and lifecycle logging. It does NOT include a store
// provider; add an adapter module (s3.Module() or minio.Module()) and a
// configuration (WithConfig) to get a working NewStoreFunc.
//
// Example usage:
//
//	app := fx.New(
//	    bucketx.Module(),
//	    bucketx.WithConfig(cfg),
//	    s3.Module(),
//	    transfer.Module(),
//	    fx.Populate(&orchestrator),
//	)
func Module() fx.Option {
	return fx.Module("bucketx",
		fx.Provide(NewObservabilityInstrumenter),
		fx.Invoke(registerLifecycle),
	)
}

// WithConfig supplies a normalized and validated configuration to the
// graph. Validation failures abort app construction.
func WithConfig(cfg *Config) fx.Option {
	return fx.Provide(func() (*Config, error) {
		normalized := cfg.Normalize()
		if err := ValidateConfig(normalized); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return normalized, nil
	})
}

// WithCustomLogger supplies a logger to the graph
func WithCustomLogger(logger *zap.Logger) fx.Option {
	return fx.Supply(logger)
}

// ObservabilityDeps defines optional observability dependencies
type ObservabilityDeps struct {
	fx.In

	Registerer     prometheus.Registerer `optional:"true"`
	TracerProvider trace.TracerProvider  `optional:"true"`
}

// NewObservabilityInstrumenter creates an instrumenter from whatever
// observability backends are present in the graph
func NewObservabilityInstrumenter(deps ObservabilityDeps) (*Instrumenter, error) {
	return NewInstrumenter(deps.Registerer, deps.TracerProvider)
}

// LifecycleParams defines parameters for lifecycle management
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *Config     `optional:"true"`
	Logger    *zap.Logger `optional:"true"`
}

func registerLifecycle(params LifecycleParams) {
	if params.Logger == nil {
		return
	}

	logger := params.Logger
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if params.Config != nil {
				logger.Debug("bucketx started", zap.Object("config", params.Config))
			} else {
				logger.Debug("bucketx started without configuration")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Debug("bucketx stopped")
			return nil
		},
	})
}
