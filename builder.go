package pftrace

import (
	"time"

	"github.com/pftrace/pftrace/perfetto"
)

// EventBuilder constructs one TrackEvent packet. Methods may be called
// in any order; the packet joins the Context's buffer only when Build
// is called, so an abandoned builder leaves the buffer untouched.
type EventBuilder struct {
	ctx       *Context
	timestamp uint64
	event     perfetto.TrackEvent
}

// Event starts constructing one packet on the Context.
func (c *Context) Event() *EventBuilder {
	return &EventBuilder{ctx: c}
}

// WithBegin marks the packet as opening a duration slice.
func (b *EventBuilder) WithBegin() *EventBuilder {
	b.event.Type = perfetto.EventTypeSliceBegin
	return b
}

// WithEnd marks the packet as closing a duration slice.
func (b *EventBuilder) WithEnd() *EventBuilder {
	b.event.Type = perfetto.EventTypeSliceEnd
	return b
}

// WithInstant marks the packet as a zero-duration marker.
func (b *EventBuilder) WithInstant() *EventBuilder {
	b.event.Type = perfetto.EventTypeInstant
	return b
}

// WithTrack places the packet on track.
func (b *EventBuilder) WithTrack(track TrackID) *EventBuilder {
	b.event.TrackUUID = uint64(track)
	return b
}

// WithName sets the packet's display name.
func (b *EventBuilder) WithName(name string) *EventBuilder {
	b.event.Name = name
	return b
}

// WithCategory appends one category. May be repeated.
func (b *EventBuilder) WithCategory(category string) *EventBuilder {
	if category != "" {
		b.event.Categories = append(b.event.Categories, category)
	}
	return b
}

// WithFlowID appends one causal flow id. May be repeated.
func (b *EventBuilder) WithFlowID(flow uint64) *EventBuilder {
	b.event.FlowIDs = append(b.event.FlowIDs, flow)
	return b
}

// WithSourceLocation records the file and line that produced the
// packet. An empty file and zero line leave the packet without a
// location.
func (b *EventBuilder) WithSourceLocation(file string, line uint32) *EventBuilder {
	if file == "" && line == 0 {
		return b
	}
	b.event.Location = &perfetto.SourceLocation{File: file, Line: line}
	return b
}

// WithTimestamp sets an explicit packet timestamp.
func (b *EventBuilder) WithTimestamp(t time.Time) *EventBuilder {
	b.timestamp = uint64(t.UnixNano())
	return b
}

// WithNow timestamps the packet with the Context clock's current time.
func (b *EventBuilder) WithNow() *EventBuilder {
	b.timestamp = uint64(b.ctx.now().UnixNano())
	return b
}

// WithAttribute appends one string debug annotation. May be repeated.
func (b *EventBuilder) WithAttribute(key, value string) *EventBuilder {
	b.event.Annotations = append(
		b.event.Annotations, perfetto.DebugAnnotation{Name: key, Value: value})
	return b
}

func (b *EventBuilder) finish() *perfetto.TracePacket {
	if b.timestamp == 0 {
		b.timestamp = uint64(b.ctx.now().UnixNano())
	}
	event := b.event
	return &perfetto.TracePacket{
		Timestamp:  b.timestamp,
		SequenceID: trustedSequenceID,
		Event:      &event,
	}
}

// Build finalizes the packet and appends it to the Context's buffer.
func (b *EventBuilder) Build() {
	packet := b.finish()
	b.ctx.mtx.Lock()
	b.ctx.appendLocked(packet)
	b.ctx.mtx.Unlock()
}

// buildLocked finalizes and appends with the Context lock already held.
// The Recorder uses this so one callback stays one critical section.
func (b *EventBuilder) buildLocked() {
	b.ctx.appendLocked(b.finish())
}
