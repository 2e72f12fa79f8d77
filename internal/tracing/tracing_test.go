package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer() *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return exporter
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{name: "with SERVICE_VERSION set", envValue: "v1.2.3", expected: "v1.2.3"},
		{name: "without SERVICE_VERSION", envValue: "", expected: "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("SERVICE_VERSION", tt.envValue)
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}
			if got := getVersion(); got != tt.expected {
				t.Errorf("getVersion() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{name: "default", envValue: "", expected: "tempo:4318"},
		{name: "plain host", envValue: "collector:4318", expected: "collector:4318"},
		{name: "strips http scheme", envValue: "http://collector:4318", expected: "collector:4318"},
		{name: "strips https scheme", envValue: "https://collector:4318", expected: "collector:4318"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)
			} else {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			}
			if got := getOTLPEndpoint(); got != tt.expected {
				t.Errorf("getOTLPEndpoint() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStartSpan(t *testing.T) {
	exporter := setupTestTracer()

	ctx, span := StartSpan(context.Background(), "test.operation",
		attribute.String("event_id", "evt-1"),
	)
	if GetTraceID(ctx) == "" {
		t.Error("GetTraceID() empty inside an active span")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "test.operation" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	found := false
	for _, attr := range spans[0].Attributes {
		if attr.Key == "event_id" && attr.Value.AsString() == "evt-1" {
			found = true
		}
	}
	if !found {
		t.Error("span attribute event_id missing")
	}
}

func TestSetSpanError(t *testing.T) {
	exporter := setupTestTracer()

	ctx, span := StartSpan(context.Background(), "test.failing")
	SetSpanError(ctx, errors.New("dispatch failed"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if len(spans[0].Events) == 0 {
		t.Error("error was not recorded as a span event")
	}
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID() = %q on a bare context, want empty", id)
	}
}

func TestQueuePropagationRoundTrip(t *testing.T) {
	setupTestTracer()

	ctx, span := StartSpan(context.Background(), "ingest.publish")
	defer span.End()
	wantTrace := GetTraceID(ctx)
	if wantTrace == "" {
		t.Fatal("no trace id on the publishing side")
	}

	headers := PropagateTraceToQueue(ctx)
	if len(headers) == 0 {
		t.Fatal("no propagation headers injected")
	}

	consumerCtx := ExtractTraceFromQueue(context.Background(), headers)
	childCtx, childSpan := StartSpan(consumerCtx, "worker.delivery")
	defer childSpan.End()
	if got := GetTraceID(childCtx); got != wantTrace {
		t.Errorf("consumer trace id = %q, want %q", got, wantTrace)
	}
}

func TestExtractTraceFromQueueEmptyHeaders(t *testing.T) {
	setupTestTracer()
	ctx := ExtractTraceFromQueue(context.Background(), nil)
	if id := GetTraceID(ctx); id != "" {
		t.Errorf("trace id = %q from empty headers, want empty", id)
	}
}
