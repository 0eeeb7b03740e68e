package transfer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/gostratum/bucketx"
)

// Job is one object download: where it comes from and where it lands
type Job struct {
	Bucket      string
	Key         string
	Destination string
}

// Failure records a job that did not complete
type Failure struct {
	Key string
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Key, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Summary is the outcome of one batch
type Summary struct {
	Mode  Mode
	RunID string

	// Listed is the number of objects the listing returned
	Listed int

	// Dispatched is the number of jobs handed to a downloader. Objects whose
	// key or directory was rejected up front are not dispatched.
	Dispatched int

	// Downloaded is the number of files written
	Downloaded int

	// Bytes is the number of bytes written
	Bytes int64

	// Failures lists every object that was not written, in completion order
	Failures []Failure

	Elapsed time.Duration
}

// Err joins every per-object failure, or returns nil when there were none
func (s Summary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// collector accumulates job outcomes from concurrent workers
type collector struct {
	mu      sync.Mutex
	summary Summary
}

func (c *collector) listed(n int) {
	c.mu.Lock()
	c.summary.Listed += n
	c.mu.Unlock()
}

func (c *collector) dispatched() {
	c.mu.Lock()
	c.summary.Dispatched++
	c.mu.Unlock()
}

func (c *collector) success(n int64) {
	c.mu.Lock()
	c.summary.Downloaded++
	c.summary.Bytes += n
	c.mu.Unlock()
}

func (c *collector) failure(key string, err error) {
	c.mu.Lock()
	c.summary.Failures = append(c.summary.Failures, Failure{Key: key, Err: err})
	c.mu.Unlock()
}

func (c *collector) result() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.Failures = append([]Failure(nil), c.summary.Failures...)
	return s
}

// writeFile streams r into path. The file is only created once there is a
// body to write, and a partially written file is removed.
func writeFile(job Job, r io.Reader) (int64, error) {
	f, err := os.OpenFile(job.Destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &bucketx.StoreError{
			Op:     "write",
			Bucket: job.Bucket,
			Key:    job.Key,
			Err:    fmt.Errorf("%w: %v", bucketx.ErrFilesystem, err),
		}
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(job.Destination)

		// write errors surface as *fs.PathError; anything else came from the body
		sentinel := bucketx.ErrTransport
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			sentinel = bucketx.ErrFilesystem
		}
		return n, &bucketx.StoreError{
			Op:     "write",
			Bucket: job.Bucket,
			Key:    job.Key,
			Err:    fmt.Errorf("%w: %v", sentinel, err),
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(job.Destination)
		return n, &bucketx.StoreError{
			Op:     "write",
			Bucket: job.Bucket,
			Key:    job.Key,
			Err:    fmt.Errorf("%w: %v", bucketx.ErrFilesystem, err),
		}
	}

	return n, nil
}
