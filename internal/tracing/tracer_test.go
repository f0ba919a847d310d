package tracing

import (
	"context"
	"testing"

	"github.com/opencoder/agentruntime/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	if err := Init(context.Background(), config.TelemetryConfig{Enabled: false}); err != nil {
		t.Fatalf("expected no error when telemetry is disabled, got %v", err)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op Shutdown to succeed, got %v", err)
	}
}

func TestInitEnabledWithoutEndpointErrors(t *testing.T) {
	err := Init(context.Background(), config.TelemetryConfig{Enabled: true})
	if err == nil {
		t.Fatal("expected an error when telemetry is enabled with no endpoint")
	}
}

func TestStartTurnReturnsUsableSpan(t *testing.T) {
	ctx, span := StartTurn(context.Background(), "sess-1", 3)
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	if !span.IsRecording() && !span.SpanContext().IsValid() {
		// No-op spans are neither recording nor have a valid context; either
		// shape is fine as long as calling into the API doesn't panic.
		t.Log("span is a no-op span, as expected with no tracer provider configured")
	}
}

func TestStartLLMCallAndToolCallDoNotPanic(t *testing.T) {
	ctx := context.Background()
	_, llmSpan := StartLLMCall(ctx, "anthropic", "claude-3", 1)
	llmSpan.End()

	_, toolSpan := StartToolCall(ctx, "read_file", "call-1")
	toolSpan.End()
}
