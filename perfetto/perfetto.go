// Package perfetto contains the subset of the Perfetto trace-interchange
// format that pftrace emits, together with routines to read and write it
// on a byte buffer or stream.
//
// Perfetto Wire Format
//
// A trace is a bare concatenation of TracePacket messages, each framed as
// field 1 (length-delimited) of the top-level Trace message. Because the
// format is a plain protobuf stream, packets written by separate flushes
// can be concatenated into one valid trace.
//
// Every packet carries a timestamp, a trusted packet sequence id, and one
// payload: either a TrackEvent (a BEGIN/END/INSTANT slice on a track) or
// a TrackDescriptor (naming a process or thread track). The field numbers
// used here match the upstream Perfetto protos, so the output is directly
// loadable in the Perfetto UI.
//
// To avoid unbounded allocations when reading untrusted input, no packet
// larger than MaxPacketLength (currently 16MB) can be read or encoded.
package perfetto

// EventType distinguishes the three slice phases a TrackEvent can carry.
type EventType int32

const (
	// EventTypeUnspecified is the zero value and is never emitted.
	EventTypeUnspecified EventType = 0
	// EventTypeSliceBegin opens a duration slice on a track.
	EventTypeSliceBegin EventType = 1
	// EventTypeSliceEnd closes the innermost open slice on a track.
	EventTypeSliceEnd EventType = 2
	// EventTypeInstant is a zero-duration marker on a track.
	EventTypeInstant EventType = 3
)

// DebugAnnotation is one (name, value) attribute attached to a
// TrackEvent. Values are always strings; pftrace flattens every field to
// its printed form before it reaches the wire.
type DebugAnnotation struct {
	Name  string
	Value string
}

// SourceLocation names the file and line that produced an event.
type SourceLocation struct {
	File string
	Line uint32
}

// TrackEvent is one BEGIN, END or INSTANT slice on a track.
type TrackEvent struct {
	Type       EventType
	TrackUUID  uint64
	Name       string
	Categories []string
	// FlowIDs correlate causally related events across tracks. A BEGIN
	// event carries its own slice id and, when resolvable, its parent's.
	FlowIDs     []uint64
	Location    *SourceLocation
	Annotations []DebugAnnotation
}

// ProcessDescriptor names the process that owns a track.
type ProcessDescriptor struct {
	PID  int32
	Name string
}

// ThreadDescriptor names the thread of execution that owns a track.
type ThreadDescriptor struct {
	PID  int32
	TID  int32
	Name string
}

// TrackDescriptor declares a track before events reference it. Exactly
// one of Process or Thread is set.
type TrackDescriptor struct {
	UUID       uint64
	ParentUUID uint64
	Name       string
	Process    *ProcessDescriptor
	Thread     *ThreadDescriptor
}

// TracePacket is one record in the trace stream. Exactly one of Event or
// Track is set. Packets are immutable once built.
type TracePacket struct {
	// Timestamp is unix nanoseconds at emission.
	Timestamp uint64
	// SequenceID identifies the writer; pftrace uses one shared builder,
	// so every packet in a context carries the same value.
	SequenceID uint32
	Event      *TrackEvent
	Track      *TrackDescriptor
}
