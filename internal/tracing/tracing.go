// Package tracing wires OpenTelemetry spans around router dispatch.
// Exporter wiring is controlled by Config.Telemetry.Enabled rather than
// a build tag; a disabled provider hands out the noop tracer so span
// call sites cost nothing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config mirrors internal/config.TelemetryConfig's shape without
// importing internal/config, to avoid a dependency cycle (internal/config
// has no reason to import internal/tracing).
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
}

// Provider owns the tracer and the exporter shutdown hook. A disabled or
// zero-value Provider returns the otel SDK's noop tracer, so span
// start/end call sites are zero-cost regardless of configuration.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a Provider from cfg. When cfg.Enabled is false, the
// returned Provider wraps otel's global noop tracer and Shutdown is a
// no-op.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: otel.Tracer("convoke")}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "convoke-broker"
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &Provider{tp: tp, tracer: tp.Tracer("convoke")}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Start opens a span named name; callers must defer the returned span's
// End(). Router dispatch calls this once per envelope.
func (p *Provider) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := make([]trace.SpanStartOption, 0, len(attrs))
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	if p.tracer == nil {
		return otel.Tracer("convoke").Start(ctx, name, opts...)
	}
	return p.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and closes the exporter, if one was configured.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
