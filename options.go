package bucketx

import (
	"time"

	"go.uber.org/zap"
)

// Supported store providers
const (
	ProviderS3    = "s3"
	ProviderMinio = "minio"
)

// Options holds functional options for customizing store behavior
type Options struct {
	logger       *zap.Logger
	instrumenter *Instrumenter
	clock        func() time.Time
}

// Option is a functional option for configuring a Store or a component using one
type Option func(*Options)

// WithLogger sets a custom zap logger
func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithInstrumenter sets the metrics and tracing instrumenter
func WithInstrumenter(instr *Instrumenter) Option {
	return func(opts *Options) {
		opts.instrumenter = instr
	}
}

// WithClock sets a custom time provider (useful for testing)
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.clock = clock
	}
}

// ApplyOptions resolves a set of options, filling defaults for unset values
func ApplyOptions(options ...Option) *Options {
	opts := &Options{}
	for _, opt := range options {
		opt(opts)
	}
	opts.applyDefaults()
	return opts
}

func (opts *Options) applyDefaults() {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	if opts.clock == nil {
		opts.clock = time.Now
	}
}

// GetLogger returns the configured logger
func (opts *Options) GetLogger() *zap.Logger {
	if opts.logger == nil {
		return zap.NewNop()
	}
	return opts.logger
}

// GetInstrumenter returns the configured instrumenter, which may be nil
func (opts *Options) GetInstrumenter() *Instrumenter {
	return opts.instrumenter
}

// GetClock returns the configured clock function
func (opts *Options) GetClock() func() time.Time {
	if opts.clock == nil {
		return time.Now
	}
	return opts.clock
}

// GetEffectiveConfig returns a normalized copy of the configuration with
// options applied
func GetEffectiveConfig(cfg *Config, options ...Option) (*Config, *Options) {
	return cfg.Normalize(), ApplyOptions(options...)
}

// Forward returns options that reproduce the resolved ones, for handing to
// a store factory.
func (opts *Options) Forward() []Option {
	return []Option{
		WithLogger(opts.GetLogger()),
		WithInstrumenter(opts.instrumenter),
		WithClock(opts.GetClock()),
	}
}
