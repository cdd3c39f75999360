// Package telemetry provides OpenTelemetry integration for trellis.
//
// Telemetry is disabled by default and costs nothing when off.
//
// # Configuration
//
//	TRELLIS_OTEL_ENABLED=true            enable telemetry (default: off)
//	TRELLIS_OTEL_STDOUT=true             write spans/metrics to stdout (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...      OTLP/HTTP endpoint for metrics (e.g. localhost:4318)
//	OTEL_SERVICE_NAME=trl                override service name
//
// Spans always go to stdout when enabled; metrics go to stdout, OTLP/HTTP
// or both.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/trellis-tracker/trellis"

var (
	mu          sync.Mutex
	shutdownFns []func(context.Context) error
)

// Enabled reports whether telemetry is active (TRELLIS_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("TRELLIS_OTEL_ENABLED") == "true"
}

// Init configures OTel providers. When telemetry is disabled it installs
// no-op providers and returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		serviceName = name
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := buildTraceProvider(res, os.Stderr)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	mp, err := buildMetricProvider(ctx, res, os.Stderr)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	mu.Lock()
	shutdownFns = append(shutdownFns, tp.Shutdown, mp.Shutdown)
	mu.Unlock()
	return nil
}

func buildTraceProvider(res *resource.Resource, w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
	), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, w io.Writer) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	endpoint := firstNonEmpty(
		os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	)
	if os.Getenv("TRELLIS_OTEL_STDOUT") == "true" || endpoint == "" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}
	if endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes spans and metrics and shuts the providers down.
func Shutdown(ctx context.Context) {
	mu.Lock()
	fns := shutdownFns
	shutdownFns = nil
	mu.Unlock()
	for _, fn := range fns {
		_ = fn(ctx)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
