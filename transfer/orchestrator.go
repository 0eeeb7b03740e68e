// Package transfer downloads objects from a store into a local directory,
// either one object at a time through a single session or through a
// bounded pool of workers that each own a store client.
package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
)

// Orchestrator runs download batches against stores built by a factory
type Orchestrator struct {
	cfg      *bucketx.Config
	newStore bucketx.NewStoreFunc
	opts     *bucketx.Options
}

// New creates an orchestrator. The configuration is normalized but not
// validated here; every batch validates it through the factory before any
// network activity.
func New(cfg *bucketx.Config, newStore bucketx.NewStoreFunc, opts ...bucketx.Option) *Orchestrator {
	var normalized *bucketx.Config
	if cfg != nil {
		normalized = cfg.Normalize()
	}

	return &Orchestrator{
		cfg:      normalized,
		newStore: newStore,
		opts:     bucketx.ApplyOptions(opts...),
	}
}

func (o *Orchestrator) connect(ctx context.Context) (bucketx.Store, error) {
	if o.cfg == nil || !o.cfg.IsConfigured() {
		return nil, &bucketx.StoreError{Op: "connect", Err: bucketx.ErrNotConfigured}
	}
	if o.newStore == nil {
		return nil, &bucketx.StoreError{Op: "connect", Err: fmt.Errorf("%w: no store factory", bucketx.ErrInvalidConfig)}
	}
	return o.newStore(ctx, o.cfg, o.opts.Forward()...)
}

func closeStore(store bucketx.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (o *Orchestrator) begin(mode Mode, fields ...zap.Field) (string, time.Time, *zap.Logger) {
	runID := uuid.NewString()
	logger := o.opts.GetLogger().With(
		append([]zap.Field{zap.String("run_id", runID), zap.Stringer("mode", mode)}, fields...)...,
	)
	return runID, o.opts.GetClock()(), logger
}

func (o *Orchestrator) finish(c *collector, mode Mode, runID string, start time.Time, logger *zap.Logger) Summary {
	s := c.result()
	s.Mode = mode
	s.RunID = runID
	s.Elapsed = o.opts.GetClock()().Sub(start)

	o.opts.GetInstrumenter().RecordBatch(mode.String(), s.Dispatched, len(s.Failures))

	logger.Info("Download finished",
		zap.Int("listed", s.Listed),
		zap.Int("dispatched", s.Dispatched),
		zap.Int("downloaded", s.Downloaded),
		zap.Int("failed", len(s.Failures)),
		zap.Int64("bytes", s.Bytes),
		zap.Duration("elapsed", s.Elapsed))

	return s
}

// fetch downloads a job whose parent directories already exist
func (o *Orchestrator) fetch(ctx context.Context, store bucketx.Store, job Job) (int64, error) {
	body, _, err := store.Get(ctx, job.Bucket, job.Key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := writeFile(job, body)
	if err != nil {
		return n, err
	}

	o.opts.GetInstrumenter().RecordBytes("download", n)
	return n, nil
}

// download fetches a job and creates its parent directories once the
// object is known to exist
func (o *Orchestrator) download(ctx context.Context, store bucketx.Store, job Job) (int64, error) {
	body, _, err := store.Get(ctx, job.Bucket, job.Key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := bucketx.EnsureParentDirectories(job.Destination); err != nil {
		return 0, err
	}

	n, err := writeFile(job, body)
	if err != nil {
		return n, err
	}

	o.opts.GetInstrumenter().RecordBytes("download", n)
	return n, nil
}

func newJob(bucket, key, localDir string) (Job, error) {
	if err := bucketx.ValidateKey(key); err != nil {
		return Job{}, &bucketx.StoreError{Op: "map", Bucket: bucket, Key: key, Err: err}
	}
	return Job{
		Bucket:      bucket,
		Key:         key,
		Destination: bucketx.MapKeyToPath(localDir, key),
	}, nil
}

// DownloadByPrefix downloads every object under prefix through one session,
// walking the listing page by page and finishing each object before the
// next. A failed object is logged and recorded; the walk continues. Listing
// and configuration failures end the batch and are returned.
func (o *Orchestrator) DownloadByPrefix(ctx context.Context, bucket, prefix, localDir string) (Summary, error) {
	c := &collector{}
	runID, start, logger := o.begin(ModeSequential,
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.String("local_dir", localDir))

	store, err := o.connect(ctx)
	if err != nil {
		return o.finish(c, ModeSequential, runID, start, logger), err
	}
	defer closeStore(store)

	logger.Info("Downloading by prefix")

	p := bucketx.NewListPaginator(store, bucket, prefix)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			logger.Error("Listing failed", zap.Error(err))
			return o.finish(c, ModeSequential, runID, start, logger), err
		}
		c.listed(len(page.Objects))

		for _, obj := range page.Objects {
			if err := ctx.Err(); err != nil {
				return o.finish(c, ModeSequential, runID, start, logger), &bucketx.StoreError{
					Op:     "download",
					Bucket: bucket,
					Err:    fmt.Errorf("%w: %v", bucketx.ErrAborted, err),
				}
			}

			job, err := newJob(bucket, obj.Key, localDir)
			if err != nil {
				logger.Warn("Skipping object", zap.String("key", obj.Key), zap.Error(err))
				c.failure(obj.Key, err)
				continue
			}

			c.dispatched()
			n, err := o.download(ctx, store, job)
			if err != nil {
				logger.Warn("Download failed", zap.String("key", job.Key), zap.Error(err))
				c.failure(job.Key, err)
				continue
			}

			logger.Debug("Downloaded object",
				zap.String("key", job.Key),
				zap.String("destination", job.Destination),
				zap.Int64("size", n))
			c.success(n)
		}
	}

	return o.finish(c, ModeSequential, runID, start, logger), nil
}

// DownloadByKey downloads a single object. Failures are returned; no file
// is created when the fetch fails.
func (o *Orchestrator) DownloadByKey(ctx context.Context, bucket, key, localDir string) error {
	c := &collector{}
	runID, start, logger := o.begin(ModeSingle,
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("local_dir", localDir))

	store, err := o.connect(ctx)
	if err != nil {
		o.finish(c, ModeSingle, runID, start, logger)
		return err
	}
	defer closeStore(store)

	job, err := newJob(bucket, key, localDir)
	if err != nil {
		c.failure(key, err)
		o.finish(c, ModeSingle, runID, start, logger)
		return err
	}

	c.listed(1)
	c.dispatched()
	n, err := o.download(ctx, store, job)
	if err != nil {
		logger.Warn("Download failed", zap.Error(err))
		c.failure(key, err)
		o.finish(c, ModeSingle, runID, start, logger)
		return err
	}

	c.success(n)
	o.finish(c, ModeSingle, runID, start, logger)
	return nil
}
