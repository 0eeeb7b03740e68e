package s3

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/internal/testutil"
)

func newFakeStore(t *testing.T, buckets ...string) *Store {
	t.Helper()

	fake := testutil.NewFakeS3(t, buckets...)
	instr, err := bucketx.NewInstrumenter(prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	store, err := NewStore(context.Background(), fake.Config(),
		bucketx.WithLogger(zap.NewNop()),
		bucketx.WithInstrumenter(instr),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(t, "demo")

	require.NoError(t, store.Put(ctx, "demo", "a/1.txt", []byte("hello")))
	require.NoError(t, store.Put(ctx, "demo", "a/2.txt", []byte("world")))
	require.NoError(t, store.Put(ctx, "demo", "b/3.txt", []byte("other")))

	objects, err := bucketx.ListAll(ctx, store, "demo", "a/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a/1.txt", objects[0].Key)
	assert.Equal(t, int64(5), objects[0].Size)

	body, info, err := store.Get(ctx, "demo", "a/2.txt")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
	assert.Equal(t, int64(5), info.Size)

	require.NoError(t, store.Delete(ctx, "demo", "a/2.txt"))
	objects, err = bucketx.ListAll(ctx, store, "demo", "a/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestStore_GetMissingKey(t *testing.T) {
	store := newFakeStore(t, "demo")

	_, _, err := store.Get(context.Background(), "demo", "nope")
	require.Error(t, err)
	assert.True(t, bucketx.IsNotFound(err))
}

func TestStore_ListMissingBucket(t *testing.T) {
	store := newFakeStore(t)

	_, err := store.List(context.Background(), "missing", bucketx.ListOptions{})
	assert.True(t, bucketx.IsNotFound(err))
}

func TestStore_ListManyObjects(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(t, "demo")

	for i := 0; i < 25; i++ {
		require.NoError(t, store.Put(ctx, "demo", fmt.Sprintf("test/dummy%d", i), []byte{1}))
	}

	objects, err := bucketx.ListAll(ctx, store, "demo", "test/")
	require.NoError(t, err)
	assert.Len(t, objects, 25)
}

func TestStore_CreateBucketIfNotExists(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(t)

	require.NoError(t, store.CreateBucketIfNotExists(ctx, "fresh"))
	// second call sees the bucket and does nothing
	require.NoError(t, store.CreateBucketIfNotExists(ctx, "fresh"))

	exists, err := store.client.BucketExists(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.client.BucketExists(ctx, "never-made")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewStore_Unconfigured(t *testing.T) {
	_, err := NewStore(context.Background(), bucketx.NewConfig(bucketx.Credentials{}))
	require.Error(t, err)
	assert.True(t, bucketx.IsNotConfigured(err))
}

func TestNewStoreFunc(t *testing.T) {
	fake := testutil.NewFakeS3(t, "demo")

	var factory bucketx.NewStoreFunc = NewStoreFunc
	store, err := factory(context.Background(), fake.Config())
	require.NoError(t, err)

	page, err := store.List(context.Background(), "demo", bucketx.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}
