package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/foreman/middleware"
)

func newSpanRecorder() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	return provider.Tracer("test"), recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}

	return attribute.Value{}, false
}

func TestTracing_CreatesSpan(t *testing.T) {
	tracer, recorder := newSpanRecorder()
	inv := testInvocation()

	invoke := middleware.Chain(func(ctx context.Context) error {
		return nil
	}, middleware.TracingWithTracer(tracer))

	if err := invoke(context.Background(), inv); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}

	span := spans[0]
	if span.Name() != "foreman.worker.invoke" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindInternal {
		t.Errorf("span kind = %v", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	if v, ok := spanAttr(span, "foreman.worker"); !ok || v.AsString() != "code-reviewer" {
		t.Errorf("foreman.worker = %v", v.AsString())
	}
	if v, ok := spanAttr(span, "foreman.run.id"); !ok || v.AsString() != inv.RunID.String() {
		t.Errorf("foreman.run.id = %v", v.AsString())
	}
	if v, ok := spanAttr(span, "foreman.phase"); !ok || v.AsString() != "review" {
		t.Errorf("foreman.phase = %v", v.AsString())
	}
	if v, ok := spanAttr(span, "foreman.iteration"); !ok || v.AsInt64() != 1 {
		t.Errorf("foreman.iteration = %v", v.AsInt64())
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	tracer, recorder := newSpanRecorder()

	want := errors.New("scan failed")
	invoke := middleware.Chain(func(ctx context.Context) error {
		return want
	}, middleware.TracingWithTracer(tracer))

	if err := invoke(context.Background(), testInvocation()); !errors.Is(err, want) {
		t.Fatalf("invoke = %v, want %v", err, want)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}

	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "scan failed" {
		t.Errorf("description = %q", span.Status().Description)
	}

	found := false
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			found = true
		}
	}
	if !found {
		t.Error("no exception event recorded")
	}
}
