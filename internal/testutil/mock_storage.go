package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gostratum/bucketx"
)

// DefaultPageSize is the listing page size of a MockStore unless changed
const DefaultPageSize = 1000

// MockStore is a thread-safe in-memory implementation of bucketx.Store for
// testing. Listing pages are small and configurable so pagination can be
// exercised without thousands of objects.
type MockStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*mockObject

	// PageSize bounds the number of objects per List call
	PageSize int

	getErrs  map[string]error
	putErrs  map[string]error
	listErr  error
	listCall int
	failAt   int

	gets    int
	puts    int
	deletes int
}

type mockObject struct {
	data         []byte
	lastModified time.Time
	etag         string
}

var (
	_ bucketx.Store         = (*MockStore)(nil)
	_ bucketx.BucketCreator = (*MockStore)(nil)
)

// NewMockStore creates a new in-memory store
func NewMockStore() *MockStore {
	return &MockStore{
		buckets:  make(map[string]map[string]*mockObject),
		PageSize: DefaultPageSize,
		getErrs:  make(map[string]error),
		putErrs:  make(map[string]error),
	}
}

// Seed writes objects directly, bypassing fault injection and counters
func (m *MockStore) Seed(bucket string, objects map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, data := range objects {
		m.bucketLocked(bucket)[key] = newMockObject(data)
	}
}

// FailGet makes every Get of key fail with err
func (m *MockStore) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs[key] = err
}

// FailPut makes every Put of key fail with err
func (m *MockStore) FailPut(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErrs[key] = err
}

// FailListAt makes the n-th List call (1-based) and every later one fail
// with err
func (m *MockStore) FailListAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
	m.listErr = err
}

// Object returns the stored bytes for key
func (m *MockStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns the sorted keys stored in bucket
func (m *MockStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.buckets[bucket], "")
}

// Calls returns the number of Get, Put and Delete calls so far
func (m *MockStore) Calls() (gets, puts, deletes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets, m.puts, m.deletes
}

// ListCalls returns the number of List calls so far
func (m *MockStore) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCall
}

// List returns one page of keys under the prefix in lexicographic order.
// The continuation token is the last key of the previous page.
func (m *MockStore) List(ctx context.Context, bucket string, opts bucketx.ListOptions) (bucketx.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return bucketx.ListPage{}, &bucketx.StoreError{Op: "list", Bucket: bucket, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCall++
	if m.listErr != nil && m.listCall >= m.failAt {
		return bucketx.ListPage{}, &bucketx.StoreError{Op: "list", Bucket: bucket, Err: m.listErr}
	}

	objects, ok := m.buckets[bucket]
	if !ok {
		return bucketx.ListPage{}, &bucketx.StoreError{
			Op:     "list",
			Bucket: bucket,
			Err:    fmt.Errorf("%w: bucket does not exist", bucketx.ErrNotFound),
		}
	}

	keys := sortedKeys(objects, opts.Prefix)
	start := 0
	if opts.ContinuationToken != "" {
		start = sort.SearchStrings(keys, opts.ContinuationToken)
		if start < len(keys) && keys[start] == opts.ContinuationToken {
			start++
		}
	}

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	end := min(start+pageSize, len(keys))

	page := bucketx.ListPage{
		Objects: make([]bucketx.ObjectInfo, 0, end-start),
	}
	for _, key := range keys[start:end] {
		obj := objects[key]
		page.Objects = append(page.Objects, bucketx.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.lastModified,
		})
	}

	if end < len(keys) {
		page.IsTruncated = true
		page.NextToken = keys[end-1]
	}

	return page, nil
}

// Get returns a reader over a copy of the stored bytes
func (m *MockStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, bucketx.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, bucketx.ObjectInfo{}, &bucketx.StoreError{Op: "get", Bucket: bucket, Key: key, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++
	if err, ok := m.getErrs[key]; ok {
		return nil, bucketx.ObjectInfo{}, &bucketx.StoreError{Op: "get", Bucket: bucket, Key: key, Err: err}
	}

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, bucketx.ObjectInfo{}, &bucketx.StoreError{Op: "get", Bucket: bucket, Key: key, Err: bucketx.ErrNotFound}
	}

	info := bucketx.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.lastModified,
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), info, nil
}

// Put stores a copy of data
func (m *MockStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &bucketx.StoreError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if err, ok := m.putErrs[key]; ok {
		return &bucketx.StoreError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}

	m.bucketLocked(bucket)[key] = newMockObject(bytes.Clone(data))
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (m *MockStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return &bucketx.StoreError{Op: "delete", Bucket: bucket, Key: key, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes++
	delete(m.buckets[bucket], key)
	return nil
}

// CreateBucketIfNotExists creates an empty bucket
func (m *MockStore) CreateBucketIfNotExists(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketLocked(bucket)
	return nil
}

// Factory returns a bucketx.NewStoreFunc that always hands out this store
// and counts how many times it was called. Credentials are checked the same
// way the real adapters check them.
func (m *MockStore) Factory(calls *int) bucketx.NewStoreFunc {
	var mu sync.Mutex
	return func(ctx context.Context, cfg *bucketx.Config, opts ...bucketx.Option) (bucketx.Store, error) {
		if cfg == nil || !cfg.IsConfigured() {
			return nil, &bucketx.StoreError{Op: "connect", Err: bucketx.ErrNotConfigured}
		}
		if calls != nil {
			mu.Lock()
			*calls++
			mu.Unlock()
		}
		return m, nil
	}
}

func (m *MockStore) bucketLocked(bucket string) map[string]*mockObject {
	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string]*mockObject)
		m.buckets[bucket] = objects
	}
	return objects
}

func newMockObject(data []byte) *mockObject {
	sum := md5.Sum(data)
	return &mockObject{
		data:         data,
		lastModified: time.Now(),
		etag:         `"` + hex.EncodeToString(sum[:]) + `"`,
	}
}

func sortedKeys(objects map[string]*mockObject, prefix string) []string {
	keys := make([]string, 0, len(objects))
	for key := range objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
