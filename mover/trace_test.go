package mover

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/udhos/queuemover/queue"
)

// go test -run TestRelocatorSpanOnSendFailure ./mover
func TestRelocatorSpanOnSendFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	q := newFaultyQueue()
	q.failSend["x"] = true
	if _, err := q.Mem.Send(context.TODO(), todo, "x", nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	message := receiveOne(t, q)

	r, err := NewRelocator(RelocatorOptions{
		Client: q,
		Tracer: provider.Tracer("queuemover-test"),
	})
	if err != nil {
		t.Fatalf("relocator: %v", err)
	}

	if outcome := r.Move(context.TODO(), todo, completed, message); outcome.Status != SendFailed {
		t.Fatalf("expecting send-failed, got %s", outcome.Status)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expecting 1 ended span, got %d", len(spans))
	}
	span := spans[0]

	if span.Name() != "Relocator.Move" {
		t.Errorf("span name: %q", span.Name())
	}
	if span.Status().Code != codes.Error || span.Status().Description != "send failed" {
		t.Errorf("span status: %+v", span.Status())
	}

	var foundID bool
	for _, kv := range span.Attributes() {
		if kv.Key == "message_id" && kv.Value.AsString() == message.ID {
			foundID = true
		}
	}
	if !foundID {
		t.Errorf("missing message_id=%s attribute: %v", message.ID, span.Attributes())
	}

	var foundException bool
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			foundException = true
		}
	}
	if !foundException {
		t.Errorf("send error not recorded on span: %v", span.Events())
	}
}

// go test -run TestSpanHelpersDisabled ./mover
func TestSpanHelpersDisabled(t *testing.T) {
	ctx := context.TODO()
	got, span := startSpan(ctx, nil, "disabled")
	if got != ctx || span != nil {
		t.Fatalf("nil tracer must return ctx unchanged and nil span")
	}
	if id := spanTraceID(span); id != "tracing-disabled" {
		t.Errorf("trace id: %q", id)
	}
	spanFail(span, "ignored", queue.ErrStaleReceipt)
}
