// Package fixture writes and removes a fixed range of synthetic objects,
// used to exercise listing and downloads at scale.
package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// Config describes the fixture key range and object sizes
type Config struct {
	// Prefix is prepended to the object number to form each key
	Prefix string `mapstructure:"prefix" yaml:"prefix" default:"test/dummy"`

	// First is the number of the first object
	First int `mapstructure:"first" yaml:"first" default:"1"`

	// Count is the number of objects
	Count int `mapstructure:"count" yaml:"count" default:"9999"`

	// MinSize and MaxSize bound the object size in bytes (inclusive)
	MinSize int `mapstructure:"min_size" yaml:"min_size" default:"102400"`
	MaxSize int `mapstructure:"max_size" yaml:"max_size" default:"5120000"`

	// Fill is the byte every object is made of
	Fill byte `mapstructure:"fill" yaml:"fill" default:"1"`

	// Seed makes sizes reproducible; zero picks a time-based seed
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the standard fixture: test/dummy1..test/dummy9999,
// each between 100 KiB and 5000 KiB of 0x01 bytes.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("fixture: applying config defaults: %v", err))
	}
	return cfg
}

// Validate checks the range and size bounds
func (c Config) Validate() error {
	var errs []error
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix cannot be empty"))
	}
	if c.First < 0 {
		errs = append(errs, errors.New("first cannot be negative"))
	}
	if c.Count < 0 {
		errs = append(errs, errors.New("count cannot be negative"))
	}
	if c.MinSize < 0 {
		errs = append(errs, errors.New("min_size cannot be negative"))
	}
	if c.MaxSize < c.MinSize {
		errs = append(errs, errors.New("max_size cannot be smaller than min_size"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: fixture: %w", bucketx.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Generator creates and deletes the fixture objects. It is not safe for
// concurrent use.
type Generator struct {
	storeCfg *bucketx.Config
	newStore bucketx.NewStoreFunc
	cfg      Config
	opts     *bucketx.Options
	rng      *rand.Rand
}

// New creates a generator writing through stores built by newStore
func New(storeCfg *bucketx.Config, newStore bucketx.NewStoreFunc, cfg Config, opts ...bucketx.Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Generator{
		storeCfg: storeCfg,
		newStore: newStore,
		cfg:      cfg,
		opts:     bucketx.ApplyOptions(opts...),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Keys returns every fixture key in order
func (g *Generator) Keys() []string {
	keys := make([]string, 0, g.cfg.Count)
	for n := g.cfg.First; n < g.cfg.First+g.cfg.Count; n++ {
		keys = append(keys, g.cfg.Prefix+strconv.Itoa(n))
	}
	return keys
}

func (g *Generator) nextSize() int {
	return g.cfg.MinSize + g.rng.IntN(g.cfg.MaxSize-g.cfg.MinSize+1)
}

func (g *Generator) connect(ctx context.Context) (bucketx.Store, error) {
	if g.storeCfg == nil || !g.storeCfg.IsConfigured() {
		return nil, &bucketx.StoreError{Op: "connect", Err: bucketx.ErrNotConfigured}
	}
	if g.newStore == nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: fmt.Errorf("%w: no store factory", bucketx.ErrInvalidConfig)}
	}
	return g.newStore(ctx, g.storeCfg, g.opts.Forward()...)
}

// Setup creates the bucket when the store can, then writes every fixture
// object. It stops at the first failure and returns how many objects were
// written.
func (g *Generator) Setup(ctx context.Context, bucket string) (int, error) {
	store, err := g.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore(store)

	logger := g.opts.GetLogger().With(zap.String("bucket", bucket), zap.String("prefix", g.cfg.Prefix))

	if creator, ok := store.(bucketx.BucketCreator); ok {
		if err := creator.CreateBucketIfNotExists(ctx, bucket); err != nil {
			return 0, err
		}
	}

	logger.Info("Creating fixture objects", zap.Int("count", g.cfg.Count))

	written := 0
	for _, key := range g.Keys() {
		data := bytes.Repeat([]byte{g.cfg.Fill}, g.nextSize())
		if err := store.Put(ctx, bucket, key, data); err != nil {
			logger.Error("Fixture write failed", zap.String("key", key), zap.Error(err))
			return written, err
		}
		written++

		if written%1000 == 0 {
			logger.Debug("Fixture progress", zap.Int("written", written))
		}
	}

	logger.Info("Fixture objects created", zap.Int("written", written))
	return written, nil
}

// Teardown deletes the fixture key range. It stops at the first failure and
// returns how many deletes succeeded.
func (g *Generator) Teardown(ctx context.Context, bucket string) (int, error) {
	store, err := g.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore(store)

	logger := g.opts.GetLogger().With(zap.String("bucket", bucket), zap.String("prefix", g.cfg.Prefix))
	logger.Info("Deleting fixture objects", zap.Int("count", g.cfg.Count))

	deleted := 0
	for _, key := range g.Keys() {
		if err := store.Delete(ctx, bucket, key); err != nil {
			logger.Error("Fixture delete failed", zap.String("key", key), zap.Error(err))
			return deleted, err
		}
		deleted++
	}

	logger.Info("Fixture objects deleted", zap.Int("deleted", deleted))
	return deleted, nil
}

func closeStore(store bucketx.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
