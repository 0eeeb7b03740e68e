//go:build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/adapters/minio"
	"github.com/gostratum/bucketx/adapters/s3"
	"github.com/gostratum/bucketx/fixture"
	"github.com/gostratum/bucketx/transfer"
)

// TestEndToEnd creates a small fixture on a real store, downloads it with
// every strategy through both clients and removes it again.
func TestEndToEnd(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration tests - set RUN_INTEGRATION_TESTS=true to run")
	}

	cfg := bucketx.NewConfig(bucketx.Configure(
		getEnvOrDefault("BUCKETX_ACCESS_KEY", "minioadmin"),
		getEnvOrDefault("BUCKETX_SECRET_KEY", "minioadmin"),
		getEnvOrDefault("BUCKETX_ENDPOINT", "http://localhost:9000"),
	))
	cfg.Region = getEnvOrDefault("BUCKETX_REGION", "us-east-1")
	require.NoError(t, bucketx.ValidateConfig(cfg), "Config should be valid")

	bucket := getEnvOrDefault("BUCKETX_TEST_BUCKET", "bucketx-integration")

	fixtureCfg := fixture.DefaultConfig()
	fixtureCfg.Prefix = "integration/dummy"
	fixtureCfg.Count = 25
	fixtureCfg.MinSize = 1024
	fixtureCfg.MaxSize = 64 * 1024

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen, err := fixture.New(cfg, s3.NewStoreFunc, fixtureCfg)
	require.NoError(t, err)

	written, err := gen.Setup(ctx, bucket)
	require.NoError(t, err)
	require.Equal(t, fixtureCfg.Count, written)
	defer func() {
		_, err := gen.Teardown(context.Background(), bucket)
		assert.NoError(t, err)
	}()

	providers := map[string]bucketx.NewStoreFunc{
		bucketx.ProviderS3:    s3.NewStoreFunc,
		bucketx.ProviderMinio: minio.NewStoreFunc,
	}

	for name, newStore := range providers {
		t.Run(name, func(t *testing.T) {
			providerCfg := *cfg
			providerCfg.Provider = name
			o := transfer.New(&providerCfg, newStore)

			t.Run("Parallel", func(t *testing.T) {
				summary, err := o.DownloadParallel(ctx, bucket, "integration/", 4, t.TempDir())
				require.NoError(t, err)
				assert.Equal(t, fixtureCfg.Count, summary.Downloaded)
				assert.Empty(t, summary.Failures)
			})

			t.Run("Sequential", func(t *testing.T) {
				summary, err := o.DownloadByPrefix(ctx, bucket, "integration/", t.TempDir())
				require.NoError(t, err)
				assert.Equal(t, fixtureCfg.Count, summary.Downloaded)
			})

			t.Run("ByKey", func(t *testing.T) {
				dir := t.TempDir()
				require.NoError(t, o.DownloadByKey(ctx, bucket, gen.Keys()[0], dir))

				info, err := os.Stat(bucketx.MapKeyToPath(dir, gen.Keys()[0]))
				require.NoError(t, err)
				assert.GreaterOrEqual(t, info.Size(), int64(fixtureCfg.MinSize))
			})

			t.Run("MissingKey", func(t *testing.T) {
				err := o.DownloadByKey(ctx, bucket, "integration/does-not-exist", t.TempDir())
				assert.True(t, bucketx.IsNotFound(err))
			})
		})
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
