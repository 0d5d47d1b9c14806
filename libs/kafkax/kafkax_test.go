package kafkax

import (
	"context"
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestNewMessageAndExtractMeta(t *testing.T) {
	msg := NewMessage(EventMeta{EventID: "evt-1", EventType: "booking.appointment.booked.v1"}, "appt-9", []byte(`{}`))
	if msg.Topic != "booking.appointment.booked.v1" || string(msg.Key) != "appt-9" {
		t.Fatalf("unexpected message %+v", msg)
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	bare := kafka.Message{Topic: "t", Key: []byte("k")}
	if meta := ExtractEventMeta(bare); meta.EventID != "k" || meta.EventType != "t" {
		t.Fatalf("expected key/topic fallback, got %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	extracted := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if got := trace.SpanContextFromContext(extracted).TraceID(); got != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch: %s", got)
	}
}
