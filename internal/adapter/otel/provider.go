package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/neomorfeo/orgstate/internal/config"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

const serviceNamespace = "orgstate"

// InvalidationModeKey records how an instance hands cache tags to Redis,
// so spans from "direct" and "river" deployments can be told apart.
const InvalidationModeKey = attribute.Key("orgstate.invalidation.mode")

// ErrUnsupportedExporter is returned by Setup for an unknown exporter name.
var ErrUnsupportedExporter = errors.New("unsupported exporter")

// Config holds OpenTelemetry provider configuration.
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	Exporter         string
	Insecure         bool // plain HTTP to the OTLP collector
	InvalidationMode string
	InstanceID       string
}

// FromConfig derives the telemetry setup from the application config. Each
// call gets a fresh instance id.
func FromConfig(cfg *config.Config, version string) Config {
	return Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		Environment:      cfg.Telemetry.Environment,
		Exporter:         cfg.Telemetry.Exporter,
		Insecure:         cfg.Telemetry.Environment == "development",
		InvalidationMode: cfg.Invalidation.Mode,
		InstanceID:       uuid.NewString(),
	}
}

// Providers holds initialized OTel providers and their shutdown function.
type Providers struct {
	Shutdown func(ctx context.Context) error
}

// Setup installs global tracer and meter providers for cfg.Exporter. With
// ExporterNone the global no-op providers stay in place. Shutdown flushes
// pending telemetry and must be called on exit.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return &Providers{Shutdown: func(context.Context) error { return nil }}, nil
	case ExporterStdout, ExporterOTLP:
	default:
		return nil, fmt.Errorf("%w: %q (use %q, %q or %q)",
			ErrUnsupportedExporter, cfg.Exporter, ExporterStdout, ExporterOTLP, ExporterNone)
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	spans, err := spanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	metrics, err := metricExporter(ctx, cfg)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(spans),
	)
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metrics)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Providers{Shutdown: func(ctx context.Context) error {
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
		return errors.Join(errs...)
	}}, nil
}

// NewResource describes this orgstate instance: service identity, deployment
// environment, invalidation mode and the host and runtime it runs on.
func NewResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace(serviceNamespace),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.InstanceID))
	}
	if cfg.InvalidationMode != "" {
		attrs = append(attrs, InvalidationModeKey.String(cfg.InvalidationMode))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithTelemetrySDK(),
	)
	// A detector that cannot read host details still leaves a usable resource.
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}
	return res, nil
}

func spanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	if cfg.Exporter == ExporterStdout {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	var opts []otlptracehttp.Option
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func metricExporter(ctx context.Context, cfg Config) (metric.Exporter, error) {
	if cfg.Exporter == ExporterStdout {
		return stdoutmetric.New()
	}
	var opts []otlpmetrichttp.Option
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}
