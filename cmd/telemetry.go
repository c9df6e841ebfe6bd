package cmd

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreclaw/agentcore/internal/config"
)

// initTelemetry wires the agent loop's and tool registry's spans to an OTLP
// collector when telemetry is enabled in config, matching the teacher's
// trace-everything-through-OTel posture (SPEC_FULL §10 ambient stack).
// When disabled, it installs nothing and returns a no-op shutdown, leaving
// otel's own no-op global tracer in place.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	tc := cfg.Telemetry
	if !tc.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if tc.Endpoint == "" {
		return nil, fmt.Errorf("telemetry enabled but no endpoint configured")
	}

	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "agentcore"
	}

	exporter, err := newSpanExporter(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// newSpanExporter only speaks OTLP/HTTP: the repo carries a single exporter
// rather than both HTTP and gRPC variants of the same signal (SPEC_FULL §11).
func newSpanExporter(ctx context.Context, tc config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch tc.Protocol {
	case "http", "":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(tc.Endpoint)}
		if tc.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(tc.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(tc.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q (only \"http\" is supported)", tc.Protocol)
	}
}

func tracer() trace.Tracer {
	return otel.Tracer("github.com/coreclaw/agentcore")
}

// telemetryShutdownTimeout bounds span-emitting shutdown calls so a slow/unreachable
// collector never blocks process exit.
const telemetryShutdownTimeout = 5 * time.Second
