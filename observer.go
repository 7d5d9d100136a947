package pftrace

import "time"

// SpanObserver is the narrow contract a host instrumentation framework
// invokes as spans and events occur. The host is responsible for
// calling it; pftrace contains no registration or plugin machinery.
//
// The host guarantees that OnSpanEnd is called at most once per span
// id, and only after the matching OnSpanStart.
type SpanObserver interface {
	OnSpanStart(start SpanStart)
	OnSpanEnd(end SpanEnd)
	OnEvent(event PointEvent)
}

// Field is one (key, value) pair attached to a span or event at
// creation time. Values are flattened to their printed form when
// recorded; the capture is lossy by design.
type Field struct {
	Key   string
	Value interface{}
}

// SpanStart describes a newly created span. A zero Time means "now". A
// zero Parent means the span has no parent.
type SpanStart struct {
	// ID is the host framework's identifier for the span. It only has
	// to be unique among live spans on one Recorder.
	ID     uint64
	Parent uint64
	Name   string
	// Level is the span's severity level and becomes the BEGIN
	// packet's category.
	Level  string
	File   string
	Line   uint32
	Time   time.Time
	Fields []Field
}

// SpanEnd describes a span closure. A zero Time means "now".
type SpanEnd struct {
	ID   uint64
	Time time.Time
}

// PointEvent describes a point-in-time log event. Span names the
// innermost live span enclosing the event; zero means none, in which
// case the event is dropped. A zero Time means "now".
type PointEvent struct {
	Span uint64
	Name string
	// Target is the event's log target (e.g. the emitting module or
	// instrumentation scope) and becomes the INSTANT packet's first
	// category; Level becomes the second.
	Target string
	Level  string
	File   string
	Line   uint32
	Time   time.Time
	Fields []Field
}
