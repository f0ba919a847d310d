// Package tracing configures OpenTelemetry span export for the agent loop:
// one span per turn, nested LLM-call and tool-call spans underneath.
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

	"github.com/opencoder/agentruntime/internal/config"
)

// tracer is the package-wide tracer used to start agent/LLM/tool spans. It
// defaults to the otel no-op tracer until Init succeeds, so every caller can
// unconditionally start spans without checking whether telemetry is enabled.
var tracer trace.Tracer = otel.Tracer("agentruntime")

// Shutdown flushes and closes the configured exporter. No-op if Init was
// never called or telemetry is disabled.
var Shutdown = func(context.Context) error { return nil }

// Init wires the OTel SDK tracer provider from TelemetryConfig. Disabled
// configs leave the package-level no-op tracer in place.
func Init(ctx context.Context, cfg config.TelemetryConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("telemetry enabled but no endpoint configured")
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentruntime"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer("agentruntime")
	Shutdown = tp.Shutdown
	return nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	headers := cfg.Headers
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// StartTurn opens a span covering one AgentLoop turn.
func StartTurn(ctx context.Context, sessionKey string, turn int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("session.key", sessionKey),
		attribute.Int("turn", turn),
	))
}

// StartLLMCall opens a span covering one provider Chat/ChatStream call.
func StartLLMCall(ctx context.Context, provider, model string, iteration int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.llm_call", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Int("iteration", iteration),
	))
}

// StartToolCall opens a span covering one tool execution.
func StartToolCall(ctx context.Context, name, callID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.tool_call", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", callID),
	))
}
