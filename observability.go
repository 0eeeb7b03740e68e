package bucketx

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gostratum/bucketx"

// Instrumenter wraps store operations with metrics and tracing. A nil
// *Instrumenter is valid and records nothing.
type Instrumenter struct {
	tracer trace.Tracer

	operations    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	bytes         *prometheus.CounterVec
	batchObjects  *prometheus.HistogramVec
	batchFailures *prometheus.CounterVec
}

// NewInstrumenter creates an instrumenter. A nil registerer disables
// metrics; a nil tracer provider falls back to the global one.
func NewInstrumenter(reg prometheus.Registerer, tp trace.TracerProvider) (*Instrumenter, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	i := &Instrumenter{tracer: tp.Tracer(instrumentationName)}
	if reg == nil {
		return i, nil
	}

	i.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketx_operations_total",
		Help: "Total number of store operations",
	}, []string{"operation", "status"})

	i.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bucketx_operation_duration_seconds",
		Help:    "Store operation duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	i.bytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketx_transfer_bytes_total",
		Help: "Bytes transferred by direction",
	}, []string{"direction"})

	i.batchObjects = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bucketx_batch_objects",
		Help:    "Number of objects handled per batch",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"mode"})

	i.batchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketx_batch_failures_total",
		Help: "Number of failed objects in batches",
	}, []string{"mode"})

	// a second instrumenter on the same registry shares the first one's vectors
	var err error
	if i.operations, err = register(reg, i.operations); err != nil {
		return nil, err
	}
	if i.durations, err = register(reg, i.durations); err != nil {
		return nil, err
	}
	if i.bytes, err = register(reg, i.bytes); err != nil {
		return nil, err
	}
	if i.batchObjects, err = register(reg, i.batchObjects); err != nil {
		return nil, err
	}
	if i.batchFailures, err = register(reg, i.batchFailures); err != nil {
		return nil, err
	}

	return i, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// TraceOperation wraps an operation with a span and metrics
func (i *Instrumenter) TraceOperation(ctx context.Context, operation, bucket, key string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	ctx, span := i.tracer.Start(ctx, "bucketx."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bucketx.operation", operation),
			attribute.String("bucketx.bucket", bucket),
			attribute.String("bucketx.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	if i.operations != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		i.operations.WithLabelValues(operation, status).Inc()
		i.durations.WithLabelValues(operation).Observe(duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// RecordBytes records the size of data transferred in one direction
// ("download" or "upload")
func (i *Instrumenter) RecordBytes(direction string, size int64) {
	if i == nil || i.bytes == nil || size <= 0 {
		return
	}
	i.bytes.WithLabelValues(direction).Add(float64(size))
}

// RecordBatch records the size and failure count of a finished batch
func (i *Instrumenter) RecordBatch(mode string, total, failed int) {
	if i == nil || i.batchObjects == nil {
		return
	}
	i.batchObjects.WithLabelValues(mode).Observe(float64(total))
	if failed > 0 {
		i.batchFailures.WithLabelValues(mode).Add(float64(failed))
	}
}
