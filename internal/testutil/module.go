package testutil

import (
	"go.uber.org/fx"

	"github.com/gostratum/bucketx"
)

// TestModule provides a test configuration and an in-memory store factory
// suitable for unit tests without any network.
//
// Example usage:
//
//	app := fxtest.New(t,
//	    testutil.TestModule,
//	    transfer.Module(),
//	    fx.Populate(&orchestrator),
//	)
var TestModule = fx.Module("bucketx-test",
	fx.Provide(
		NewTestConfig,
		NewMockStore,
		func(m *MockStore) bucketx.NewStoreFunc { return m.Factory(nil) },
	),
)

// NewTestConfig creates a configuration pointing to a local MinIO instance
// with default credentials.
func NewTestConfig() *bucketx.Config {
	cfg := bucketx.DefaultConfig()
	cfg.Credentials = bucketx.Configure("minioadmin", "minioadmin", "http://localhost:9000")
	cfg.UsePathStyle = true
	cfg.DisableSSL = true
	return cfg.Normalize()
}
