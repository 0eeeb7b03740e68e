package transfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gostratum/bucketx"
)

// DownloadParallel downloads every object under prefix with a pool of
// concurrency workers (runtime.NumCPU() when concurrency <= 0).
//
// The listing is exhausted first through a session store and every
// destination directory is created before dispatch, so workers only fetch
// and write. Each worker builds its own store through the factory. A failed
// job is logged and recorded and never cancels its siblings. The returned
// summary's Dispatched is the number of jobs handed to the pool.
func (o *Orchestrator) DownloadParallel(ctx context.Context, bucket, prefix string, concurrency int, localDir string) (Summary, error) {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	c := &collector{}
	runID, start, logger := o.begin(ModeParallel,
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.String("local_dir", localDir),
		zap.Int("concurrency", concurrency))

	jobs, err := o.enumerate(ctx, c, logger, bucket, prefix, localDir)
	if err != nil {
		return o.finish(c, ModeParallel, runID, start, logger), err
	}

	if len(jobs) == 0 {
		return o.finish(c, ModeParallel, runID, start, logger), nil
	}

	workers := min(concurrency, len(jobs))
	logger.Info("Dispatching jobs", zap.Int("jobs", len(jobs)), zap.Int("workers", workers))

	queue := make(chan Job)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
				c.dispatched()
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return o.work(gctx, c, logger.With(zap.Int("worker", w)), queue)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = &bucketx.StoreError{Op: "download", Bucket: bucket, Err: fmt.Errorf("%w: %v", bucketx.ErrAborted, err)}
		}
		return o.finish(c, ModeParallel, runID, start, logger), err
	}

	return o.finish(c, ModeParallel, runID, start, logger), nil
}

// enumerate lists every object and turns it into a job with its parent
// directories in place. Objects that cannot be mapped are recorded as
// failures and left out.
func (o *Orchestrator) enumerate(ctx context.Context, c *collector, logger *zap.Logger, bucket, prefix, localDir string) ([]Job, error) {
	store, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore(store)

	objects, err := bucketx.ListAll(ctx, store, bucket, prefix)
	if err != nil {
		logger.Error("Listing failed", zap.Error(err))
		return nil, err
	}
	c.listed(len(objects))

	jobs := make([]Job, 0, len(objects))
	for _, obj := range objects {
		job, err := newJob(bucket, obj.Key, localDir)
		if err == nil {
			err = bucketx.EnsureParentDirectories(job.Destination)
		}
		if err != nil {
			logger.Warn("Skipping object", zap.String("key", obj.Key), zap.Error(err))
			c.failure(obj.Key, err)
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// work drains the queue with a store of its own. Only a failure to build
// the store is returned; job failures are recorded.
func (o *Orchestrator) work(ctx context.Context, c *collector, logger *zap.Logger, queue <-chan Job) error {
	store, err := o.connect(ctx)
	if err != nil {
		logger.Error("Worker could not connect", zap.Error(err))
		return err
	}
	defer closeStore(store)

	for job := range queue {
		n, err := o.fetch(ctx, store, job)
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

	return nil
}
