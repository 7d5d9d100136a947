// Package otelbridge adapts the OpenTelemetry SDK's span lifecycle to
// pftrace's callback contract, so programs instrumented with the otel
// API can produce Perfetto traces without touching pftrace directly.
//
// The bridge is a SpanProcessor: OnStart maps to OnSpanStart on the
// calling goroutine, which is what assigns spans to per-goroutine
// tracks. The SDK only exposes a span's events once the span ends, so
// OnEnd first replays the recorded events as point events (with their
// original timestamps) and then closes the span.
package otelbridge

import (
	"context"
	"encoding/binary"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/pftrace/pftrace"
	"github.com/pftrace/pftrace/sinks"
)

// Processor drives a pftrace.Recorder from OpenTelemetry SDK
// callbacks. Register it on a TracerProvider with
// sdktrace.WithSpanProcessor.
type Processor struct {
	recorder *pftrace.Recorder
	sink     sinks.TraceSink
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithSink sets the destination ForceFlush and Shutdown write the
// accumulated trace to. Without a sink, flushing is the caller's
// responsibility via the Recorder's Context.
func WithSink(sink sinks.TraceSink) ProcessorOption {
	return func(p *Processor) {
		p.sink = sink
	}
}

// NewProcessor creates a span processor emitting through recorder.
func NewProcessor(recorder *pftrace.Recorder, opts ...ProcessorOption) *Processor {
	p := &Processor{recorder: recorder}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnStart maps a started otel span onto a span-created callback. It
// runs synchronously on the goroutine that started the span.
func (p *Processor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	start := pftrace.SpanStart{
		ID:     spanID(s.SpanContext()),
		Parent: spanID(s.Parent()),
		Name:   s.Name(),
		Level:  s.SpanKind().String(),
		Time:   s.StartTime(),
		Fields: fields(s.Attributes()),
	}
	p.recorder.OnSpanStart(start)
}

// OnEnd replays the span's recorded events as point events and then
// closes the span with its end timestamp.
func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	id := spanID(s.SpanContext())
	scope := s.InstrumentationScope().Name
	for _, event := range s.Events() {
		p.recorder.OnEvent(pftrace.PointEvent{
			Span:   id,
			Name:   event.Name,
			Target: scope,
			Time:   event.Time,
			Fields: fields(event.Attributes),
		})
	}
	p.recorder.OnSpanEnd(pftrace.SpanEnd{ID: id, Time: s.EndTime()})
}

// ForceFlush writes the accumulated trace to the configured sink, if
// any.
func (p *Processor) ForceFlush(ctx context.Context) error {
	if p.sink == nil {
		return nil
	}
	return p.recorder.Context().FlushToSink(ctx, p.sink)
}

// Shutdown flushes and closes the configured sink.
func (p *Processor) Shutdown(ctx context.Context) error {
	if err := p.ForceFlush(ctx); err != nil {
		return err
	}
	if p.sink == nil {
		return nil
	}
	return p.sink.Close()
}

// spanID flattens an 8-byte otel span id to the uint64 key the
// recorder's side table uses. An invalid (absent) span context maps to
// 0, which the recorder treats as "no span".
func spanID(sc trace.SpanContext) uint64 {
	if !sc.IsValid() {
		return 0
	}
	id := sc.SpanID()
	return binary.BigEndian.Uint64(id[:])
}

func fields(attributes []attribute.KeyValue) []pftrace.Field {
	if len(attributes) == 0 {
		return nil
	}
	converted := make([]pftrace.Field, 0, len(attributes))
	for _, kv := range attributes {
		converted = append(converted, pftrace.Field{
			Key:   string(kv.Key),
			Value: kv.Value.Emit(),
		})
	}
	return converted
}
