// Package telemetry installs the OpenTelemetry SDK providers behind the
// otel globals the pipeline instruments against.
package telemetry

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(ctx context.Context) error

// Enabled reports whether the environment asks for export. TELEMETRY forces
// it on; otherwise any OTLP endpoint variable does.
func Enabled() bool {
	if os.Getenv("TELEMETRY") != "" {
		return true
	}
	for _, k := range []string{
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
	} {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

// Setup installs OTLP trace and metric providers as the otel globals when
// Enabled. Exporters read the standard OTEL_EXPORTER_OTLP_* variables; the
// protocol defaults to http/protobuf. When disabled the globals are left as
// no-ops and the returned ShutdownFunc does nothing.
func Setup(ctx context.Context, service, version string) (ShutdownFunc, error) {
	if !Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	resource, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			attribute.String("service.name", service),
			attribute.String("service.version", version),
		),
		sdkresource.WithFromEnv(),
		sdkresource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, err
	}

	tracer, err := setupTracer(ctx, resource)
	if err != nil {
		return nil, err
	}
	meter, err := setupMeter(ctx, resource)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tracer.Shutdown(ctx), meter.Shutdown(ctx))
	}, nil
}

func protocol(signal string) string {
	if p := os.Getenv("OTEL_EXPORTER_OTLP_" + signal + "_PROTOCOL"); p != "" {
		return strings.ToLower(p)
	}
	return strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))
}

func setupTracer(ctx context.Context, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	var err error
	var exporter sdktrace.SpanExporter

	if protocol("TRACES") == "grpc" {
		exporter, err = otlptracegrpc.New(ctx)
	} else {
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(resource),
	)
	otel.SetTracerProvider(provider)
	return provider, nil
}

func setupMeter(ctx context.Context, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	var err error
	var exporter sdkmetric.Exporter

	if protocol("METRICS") == "grpc" {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = otlpmetrichttp.New(ctx)
	}
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(resource),
	)
	otel.SetMeterProvider(provider)
	return provider, nil
}
