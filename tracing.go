package flightagent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aerodesk/flightagent"

// TracingConfig configures OTLP trace export. With an empty Endpoint, tracing
// stays on the global (no-op) provider and SetupTracing is a no-op.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318" or
	// "https://collector.example.com".
	Endpoint string

	// Headers are added to every export request (auth tokens and the like).
	Headers map[string]string

	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Tracing bundles the installed tracer with its provider for shutdown.
type Tracing struct {
	Tracer trace.Tracer

	tracerProvider *sdktrace.TracerProvider
}

// SetupTracing installs an OTLP exporter as the global tracer provider and
// returns the tracer the agent should use. Call Shutdown before exit to
// flush batched spans.
func SetupTracing(ctx context.Context, cfg TracingConfig) (*Tracing, error) {
	if cfg.Endpoint == "" {
		return &Tracing{Tracer: otel.Tracer(tracerName)}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "flightagent"
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	useInsecure := strings.HasPrefix(cfg.Endpoint, "http://")

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if useInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracing{
		Tracer:         tp.Tracer(tracerName),
		tracerProvider: tp,
	}, nil
}

// Flush forces export of all pending spans.
func (t *Tracing) Flush(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.Shutdown(ctx)
}
