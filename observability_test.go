package bucketx

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestInstrumenter(t *testing.T) (*Instrumenter, *prometheus.Registry, *tracetest.SpanRecorder) {
	t.Helper()

	reg := prometheus.NewRegistry()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	instr, err := NewInstrumenter(reg, tp)
	require.NoError(t, err)
	return instr, reg, sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewInstrumenter(t *testing.T) {
	t.Run("registers collectors", func(t *testing.T) {
		_, reg, _ := newTestInstrumenter(t)

		// vectors only show up once a label set is used
		n, err := promtest.GatherAndCount(reg)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("tolerates a second registration", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		first, err := NewInstrumenter(reg, nil)
		require.NoError(t, err)
		second, err := NewInstrumenter(reg, nil)
		require.NoError(t, err)

		second.RecordBytes("download", 7)
		assert.Equal(t, 7.0, promtest.ToFloat64(first.bytes.WithLabelValues("download")))
	})

	t.Run("nil registerer disables metrics", func(t *testing.T) {
		instr, err := NewInstrumenter(nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, instr)
		assert.Nil(t, instr.operations)
	})
}

func TestTraceOperation(t *testing.T) {
	t.Run("successful operation", func(t *testing.T) {
		instr, _, sr := newTestInstrumenter(t)

		called := false
		err := instr.TraceOperation(context.Background(), "get", "demo", "a/1.txt", func(ctx context.Context) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, 1.0, promtest.ToFloat64(instr.operations.WithLabelValues("get", "success")))

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "bucketx.get", spans[0].Name())
		key, ok := spanAttr(spans[0], "bucketx.key")
		require.True(t, ok)
		assert.Equal(t, "a/1.txt", key.AsString())
		bucket, _ := spanAttr(spans[0], "bucketx.bucket")
		assert.Equal(t, "demo", bucket.AsString())
		assert.Equal(t, codes.Unset, spans[0].Status().Code)
	})

	t.Run("failed operation records the error", func(t *testing.T) {
		instr, _, sr := newTestInstrumenter(t)
		testErr := errors.New("connection reset")

		err := instr.TraceOperation(context.Background(), "list", "demo", "", func(ctx context.Context) error {
			return testErr
		})

		assert.Equal(t, testErr, err)
		assert.Equal(t, 1.0, promtest.ToFloat64(instr.operations.WithLabelValues("list", "error")))
		assert.Equal(t, 0.0, promtest.ToFloat64(instr.operations.WithLabelValues("list", "success")))

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "connection reset", spans[0].Status().Description)
		require.Len(t, spans[0].Events(), 1)
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})

	t.Run("passes the span context to fn", func(t *testing.T) {
		instr, _, _ := newTestInstrumenter(t)

		err := instr.TraceOperation(context.Background(), "put", "demo", "k", func(ctx context.Context) error {
			assert.NotNil(t, ctx)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("nil instrumenter still runs fn", func(t *testing.T) {
		var instr *Instrumenter

		called := false
		err := instr.TraceOperation(context.Background(), "delete", "demo", "k", func(ctx context.Context) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
	})
}

func TestRecordBytes(t *testing.T) {
	instr, _, _ := newTestInstrumenter(t)

	instr.RecordBytes("download", 1024)
	instr.RecordBytes("download", 2048)
	instr.RecordBytes("upload", 10)
	instr.RecordBytes("upload", 0)

	assert.Equal(t, 3072.0, promtest.ToFloat64(instr.bytes.WithLabelValues("download")))
	assert.Equal(t, 10.0, promtest.ToFloat64(instr.bytes.WithLabelValues("upload")))

	var nilInstr *Instrumenter
	assert.NotPanics(t, func() { nilInstr.RecordBytes("download", 1) })
}

func TestRecordBatch(t *testing.T) {
	t.Run("with failures", func(t *testing.T) {
		instr, reg, _ := newTestInstrumenter(t)

		instr.RecordBatch("parallel", 100, 5)

		assert.Equal(t, 5.0, promtest.ToFloat64(instr.batchFailures.WithLabelValues("parallel")))
		n, err := promtest.GatherAndCount(reg, "bucketx_batch_objects")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("without failures", func(t *testing.T) {
		instr, reg, _ := newTestInstrumenter(t)

		instr.RecordBatch("sequential", 50, 0)

		n, err := promtest.GatherAndCount(reg, "bucketx_batch_failures_total")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("nil instrumenter", func(t *testing.T) {
		var instr *Instrumenter
		assert.NotPanics(t, func() { instr.RecordBatch("single", 1, 1) })
	})
}
