// Package tracing wraps PO turns and tool dispatch in OpenTelemetry
// spans. No OTLP exporter is wired by default: Init builds an
// always-on sdktrace.TracerProvider with no span processor attached
// when no exporter is supplied, so span creation and attribute-setting
// exercise the same SDK surface even when nothing ships spans out of
// process; a real deployer supplies one via Config.Exporter.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether tracing is active and how spans are sampled.
type Config struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64
	Exporter     sdktrace.SpanExporter // optional; nil means spans are recorded but never exported
}

// Init installs the process-wide tracer provider and returns a
// shutdown func. When cfg.Enabled is false, the global tracer is a
// no-op so span calls elsewhere in the engine cost nothing.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from whatever provider Init
// installed (or the global default if Init was never called).
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartTurn opens a span around one PO engine turn.
func StartTurn(ctx context.Context, poName, sessionID string) (context.Context, trace.Span) {
	return Tracer("promptobjects/engine").Start(ctx, "po.turn",
		trace.WithAttributes(
			attribute.String("po.name", poName),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartToolDispatch opens a child span around one tool call/delegation
// dispatched within a turn.
func StartToolDispatch(ctx context.Context, capabilityName, kind string) (context.Context, trace.Span) {
	return Tracer("promptobjects/engine").Start(ctx, "po.tool_dispatch",
		trace.WithAttributes(
			attribute.String("capability.name", capabilityName),
			attribute.String("capability.kind", kind),
		),
	)
}
