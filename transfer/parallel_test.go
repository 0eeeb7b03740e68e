package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/adapters/s3"
	"github.com/gostratum/bucketx/internal/testutil"
)

func seedDummies(store *testutil.MockStore, bucket string, n int) map[string]string {
	objects := make(map[string]string, n)
	for i := 1; i <= n; i++ {
		objects[fmt.Sprintf("test/dummy%d", i)] = fmt.Sprintf("body-%d", i)
	}
	seed(store, bucket, objects)
	return objects
}

func TestDownloadParallel(t *testing.T) {
	store := testutil.NewMockStore()
	store.PageSize = 3
	objects := seedDummies(store, "demo", 20)

	calls := 0
	out := t.TempDir()
	summary, err := newMockOrchestrator(store, &calls).DownloadParallel(context.Background(), "demo", "test/", 4, out)
	require.NoError(t, err)

	assert.Equal(t, ModeParallel, summary.Mode)
	assert.Equal(t, 20, summary.Listed)
	assert.Equal(t, 20, summary.Dispatched)
	assert.Equal(t, 20, summary.Downloaded)
	assert.Empty(t, summary.Failures)

	// one listing session plus one store per worker
	assert.Equal(t, 1+4, calls)

	for key, body := range objects {
		assert.Equal(t, body, readFile(t, bucketx.MapKeyToPath(out, key)))
	}
}

func TestDownloadParallel_FewerJobsThanWorkers(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 2)

	calls := 0
	summary, err := newMockOrchestrator(store, &calls).DownloadParallel(context.Background(), "demo", "test/", 8, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1+2, calls)
}

func TestDownloadParallel_DefaultConcurrency(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 5)

	summary, err := newMockOrchestrator(store, nil).DownloadParallel(context.Background(), "demo", "test/", 0, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Downloaded)
}

func TestDownloadParallel_FailureDoesNotStopSiblings(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 10)
	store.FailGet("test/dummy3", bucketx.ErrNotFound)
	store.FailGet("test/dummy7", bucketx.ErrTransport)

	out := t.TempDir()
	summary, err := newMockOrchestrator(store, nil).DownloadParallel(context.Background(), "demo", "test/", 3, out)
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Dispatched)
	assert.Equal(t, 8, summary.Downloaded)
	require.Len(t, summary.Failures, 2)

	failed := map[string]bool{}
	for _, f := range summary.Failures {
		failed[f.Key] = true
	}
	assert.True(t, failed["test/dummy3"])
	assert.True(t, failed["test/dummy7"])
	assert.NoFileExists(t, bucketx.MapKeyToPath(out, "test/dummy3"))
}

func TestDownloadParallel_EmptyListing(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 3)

	calls := 0
	summary, err := newMockOrchestrator(store, &calls).DownloadParallel(context.Background(), "demo", "other/", 4, t.TempDir())
	require.NoError(t, err)

	assert.Zero(t, summary.Dispatched)
	// no workers are started for an empty batch
	assert.Equal(t, 1, calls)
}

func TestDownloadParallel_ListingFailure(t *testing.T) {
	store := testutil.NewMockStore()
	store.PageSize = 2
	seedDummies(store, "demo", 5)
	store.FailListAt(2, bucketx.ErrTransport)

	out := t.TempDir()
	summary, err := newMockOrchestrator(store, nil).DownloadParallel(context.Background(), "demo", "test/", 2, out)
	assert.ErrorIs(t, err, bucketx.ErrTransport)
	assert.Zero(t, summary.Dispatched)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadParallel_DirectoryFailureIsolated(t *testing.T) {
	store := testutil.NewMockStore()
	seed(store, "demo", map[string]string{"ok/1": "1", "blocked/2": "2"})

	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "blocked"), []byte("x"), 0o644))

	summary, err := newMockOrchestrator(store, nil).DownloadParallel(context.Background(), "demo", "", 2, out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Listed)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Equal(t, 1, summary.Downloaded)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0], bucketx.ErrFilesystem)
}

func TestDownloadParallel_WorkerConnectFailure(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 4)

	var calls atomic.Int32
	connectErr := errors.New("too many connections")
	factory := func(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (bucketx.Store, error) {
		// the listing session succeeds, every worker fails
		if calls.Add(1) > 1 {
			return nil, &bucketx.StoreError{Op: "connect", Err: fmt.Errorf("%w: %v", bucketx.ErrTransport, connectErr)}
		}
		return store, nil
	}

	_, err := New(testutil.NewTestConfig(), factory).DownloadParallel(context.Background(), "demo", "test/", 2, t.TempDir())
	assert.ErrorIs(t, err, bucketx.ErrTransport)
}

func TestDownloadParallel_Unconfigured(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 2)
	calls := 0

	_, err := New(nil, store.Factory(&calls)).DownloadParallel(context.Background(), "demo", "test/", 2, t.TempDir())
	assert.True(t, bucketx.IsNotConfigured(err))
	assert.Zero(t, calls)
}

func TestDownloadParallel_Canceled(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newMockOrchestrator(store, nil).DownloadParallel(ctx, "demo", "test/", 2, t.TempDir())
	require.Error(t, err)
}

func TestDownloadParallel_RecordsBatchMetrics(t *testing.T) {
	store := testutil.NewMockStore()
	seedDummies(store, "demo", 6)
	store.FailGet("test/dummy2", bucketx.ErrTransport)

	reg := prometheus.NewRegistry()
	instr, err := bucketx.NewInstrumenter(reg, nil)
	require.NoError(t, err)

	_, err = newMockOrchestrator(store, nil, bucketx.WithInstrumenter(instr)).
		DownloadParallel(context.Background(), "demo", "test/", 2, t.TempDir())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				found[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				found[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 1.0, found["bucketx_batch_failures_total"])
	assert.Equal(t, 1.0, found["bucketx_batch_objects"])
	assert.Equal(t, float64(5*len("body-1")), found["bucketx_transfer_bytes_total"])
}

// End to end through the S3 adapter against an in-process server.
func TestDownloadParallel_FakeS3(t *testing.T) {
	fake := testutil.NewFakeS3(t, "demo")
	ctx := context.Background()

	seeder, err := s3.NewStore(ctx, fake.Config())
	require.NoError(t, err)

	want := map[string]string{}
	for i := 1; i <= 12; i++ {
		key := fmt.Sprintf("test/dummy%d", i)
		want[key] = fmt.Sprintf("payload %d", i)
		require.NoError(t, seeder.Put(ctx, "demo", key, []byte(want[key])))
	}
	require.NoError(t, seeder.Put(ctx, "demo", "elsewhere/x", []byte("x")))

	o := New(fake.Config(), s3.NewStoreFunc)

	parallelOut := t.TempDir()
	summary, err := o.DownloadParallel(ctx, "demo", "test/", 4, parallelOut)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Downloaded)

	sequentialOut := t.TempDir()
	summary, err = o.DownloadByPrefix(ctx, "demo", "test/", sequentialOut)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Downloaded)

	for key, body := range want {
		assert.Equal(t, body, readFile(t, bucketx.MapKeyToPath(parallelOut, key)))
		assert.Equal(t, body, readFile(t, bucketx.MapKeyToPath(sequentialOut, key)))
	}
	assert.NoFileExists(t, bucketx.MapKeyToPath(parallelOut, "elsewhere/x"))

	err = o.DownloadByKey(ctx, "demo", "test/missing", t.TempDir())
	assert.True(t, bucketx.IsNotFound(err))
}

func TestDownload_AliasedKeysKeepOneFileEach(t *testing.T) {
	objects := map[string]string{
		"a/b":   "first",
		"a//b":  "second",
		"a/./c": "third",
		"a/c":   "fourth",
	}

	strategies := map[string]func(o *Orchestrator, out string) (Summary, error){
		"parallel": func(o *Orchestrator, out string) (Summary, error) {
			return o.DownloadParallel(context.Background(), "demo", "a/", 4, out)
		},
		"sequential": func(o *Orchestrator, out string) (Summary, error) {
			return o.DownloadByPrefix(context.Background(), "demo", "a/", out)
		},
	}

	for name, download := range strategies {
		t.Run(name, func(t *testing.T) {
			store := testutil.NewMockStore()
			seed(store, "demo", objects)

			out := t.TempDir()
			summary, err := download(newMockOrchestrator(store, nil), out)
			require.NoError(t, err)

			assert.Equal(t, 4, summary.Listed)
			assert.Equal(t, 2, summary.Downloaded)
			require.Len(t, summary.Failures, 2)
			for _, f := range summary.Failures {
				assert.ErrorIs(t, f, bucketx.ErrInvalidKey)
			}

			var files []string
			err = filepath.WalkDir(out, func(path string, d os.DirEntry, err error) error {
				if err == nil && d.Type().IsRegular() {
					files = append(files, path)
				}
				return err
			})
			require.NoError(t, err)
			assert.Len(t, files, summary.Downloaded)

			assert.Equal(t, "first", readFile(t, filepath.Join(out, "a", "b")))
			assert.Equal(t, "fourth", readFile(t, filepath.Join(out, "a", "c")))
		})
	}
}
