// Package telemetry initializes OpenTelemetry tracing and metrics exporters
// and owns Beacon's application instruments.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing how this instance reads campaign state.
const (
	AttrStoreDriver      = attribute.Key("beacon.store.driver")
	AttrEngineConfigured = attribute.Key("beacon.engine.configured")
)

// Instrument names.
const (
	MetricReconcileResolutions = "beacon.reconcile.resolutions"
	MetricIngestRejected       = "beacon.ingest.rejected"
)

// Shutdown flushes and stops the providers.
type Shutdown func(ctx context.Context) error

// Options configures Init. An empty Endpoint disables export.
type Options struct {
	Endpoint    string
	ServiceName string
	Version     string
	Insecure    bool

	StoreDriver string
	EngineURL   string
}

// Init configures the global tracer and meter providers. With no endpoint
// the no-op providers stay in place and the returned Shutdown does nothing.
func Init(ctx context.Context, opts Options) (Shutdown, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	// Incoming traceparent headers are extracted here and injected again on
	// engine requests.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithProcessRuntimeVersion(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
			AttrStoreDriver.String(opts.StoreDriver),
			AttrEngineConfigured.Bool(opts.EngineURL != ""),
		),
	)
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// ReconcileResolutions counts latest-run lookups, attributed by the source
// that resolved them: run_record, event_log, not_found or degraded.
func ReconcileResolutions() metric.Int64Counter {
	return counter("beacon/runs", MetricReconcileResolutions, "Latest-run lookups by resolving source")
}

// IngestRejected counts event appends refused before reaching the store,
// attributed by reason.
func IngestRejected() metric.Int64Counter {
	return counter("beacon/ingest", MetricIngestRejected, "Event appends rejected before storage")
}

func counter(scope, name, desc string) metric.Int64Counter {
	c, err := Meter(scope).Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
