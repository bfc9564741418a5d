package instrument

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// Default tracer name.
const defaultTracerName = "fluxstore"

// TracerOption configures the tracing observer.
type TracerOption func(*Tracer)

// WithTracer sets the tracer spans are started on.
// Default: otel.Tracer("fluxstore").
func WithTracer(t trace.Tracer) TracerOption {
	return func(tr *Tracer) {
		tr.tracer = t
	}
}

// WithIncludeKeys records the changed keys on emission spans.
// Disabled by default because key lists can be large.
func WithIncludeKeys(include bool) TracerOption {
	return func(tr *Tracer) {
		tr.includeKeys = include
	}
}

// Tracer is a store.Observer that records a span for every change
// emission, covering delivery to all listeners.
type Tracer struct {
	tracer      trace.Tracer
	includeKeys bool
}

var _ store.Observer = (*Tracer)(nil)

// NewTracer creates a tracing observer using the global tracer provider.
//
// Example with a real exporter:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	s := store.New(store.WithObserver(instrument.NewTracer()))
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(defaultTracerName)
	}
	return t
}

// StoreWrite implements store.Observer. Writes are not traced.
func (t *Tracer) StoreWrite(string, int) {}

// StoreEmit implements store.Observer.
func (t *Tracer) StoreEmit(name string, keys []string) func() {
	attrs := []attribute.KeyValue{
		attribute.String("fluxstore.store", name),
		attribute.Int("fluxstore.change_keys", len(keys)),
	}
	if t.includeKeys {
		attrs = append(attrs, attribute.StringSlice("fluxstore.keys", keys))
	}

	_, span := t.tracer.Start(context.Background(), "fluxstore.emit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return func() {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
}

// ListenerPanic implements store.Observer.
func (t *Tracer) ListenerPanic(name string, recovered any) {
	_, span := t.tracer.Start(context.Background(), "fluxstore.listener_panic",
		trace.WithAttributes(attribute.String("fluxstore.store", name)),
	)
	span.SetStatus(codes.Error, fmt.Sprint(recovered))
	span.End()
}
