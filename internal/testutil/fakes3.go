package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"

	"github.com/gostratum/bucketx"
)

// Test credentials accepted by the fake server
const (
	TestAccessKey = "AKIAFAKE"
	TestSecretKey = "fake-secret"
)

// FakeS3 is an in-process S3-compatible server backed by memory
type FakeS3 struct {
	URL     string
	Backend *s3mem.Backend
}

// NewFakeS3 starts a gofakes3 server that is shut down when the test ends
func NewFakeS3(t testing.TB, buckets ...string) *FakeS3 {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)
	server := httptest.NewServer(faker.Server())
	t.Cleanup(server.Close)

	for _, bucket := range buckets {
		require.NoError(t, backend.CreateBucket(bucket))
	}

	return &FakeS3{URL: server.URL, Backend: backend}
}

// Config returns a store configuration pointing at the fake server
func (f *FakeS3) Config() *bucketx.Config {
	cfg := bucketx.NewConfig(bucketx.Configure(TestAccessKey, TestSecretKey, f.URL))
	cfg.MaxRetries = 1
	return cfg
}
