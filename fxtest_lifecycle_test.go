package bucketx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/internal/testutil"
)

func TestModuleLifecycleProvidesStore(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	var newStore bucketx.NewStoreFunc
	var cfg *bucketx.Config

	app := fxtest.New(t,
		testutil.TestModule,
		bucketx.Module(),
		bucketx.WithCustomLogger(zap.New(core)),
		fx.Populate(&newStore, &cfg),
	)
	app.RequireStart()

	store, err := newStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, store)

	app.RequireStop()

	assert.Equal(t, 1, logs.FilterMessage("bucketx started").Len())
	assert.Equal(t, 1, logs.FilterMessage("bucketx stopped").Len())
}

func TestWithConfigRejectsMissingCredentials(t *testing.T) {
	cfg := bucketx.NewConfig(bucketx.Configure("", "", "http://localhost:9000"))

	app := fx.New(
		fx.NopLogger,
		bucketx.WithConfig(cfg),
		fx.Invoke(func(*bucketx.Config) {}),
	)

	err := app.Err()
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid configuration")
}
