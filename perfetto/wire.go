package perfetto

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxPacketLength is the maximum length of a single encoded TracePacket.
// This is currently 16MB.
const MaxPacketLength = 16 * 1024 * 1024

// Trace message field numbers.
const fieldTracePacket = 1

// TracePacket field numbers.
const (
	fieldPacketTimestamp  = 8
	fieldPacketSequenceID = 10
	fieldPacketTrackEvent = 11
	fieldPacketTrackDesc  = 60
)

// TrackEvent field numbers.
const (
	fieldEventAnnotation = 4
	fieldEventType       = 9
	fieldEventTrackUUID  = 11
	fieldEventCategory   = 22
	fieldEventName       = 23
	fieldEventLocation   = 33
	fieldEventFlowID     = 47
)

// DebugAnnotation field numbers.
const (
	fieldAnnotationValue = 6
	fieldAnnotationName  = 10
)

// SourceLocation field numbers.
const (
	fieldLocationFile = 2
	fieldLocationLine = 4
)

// TrackDescriptor field numbers.
const (
	fieldTrackUUID       = 1
	fieldTrackName       = 2
	fieldTrackProcess    = 3
	fieldTrackThread     = 4
	fieldTrackParentUUID = 5
)

// ProcessDescriptor field numbers.
const (
	fieldProcessPID  = 1
	fieldProcessName = 6
)

// ThreadDescriptor field numbers.
const (
	fieldThreadPID  = 1
	fieldThreadTID  = 2
	fieldThreadName = 5
)

// AppendTrace encodes packets as a Perfetto trace stream and appends the
// result to dst. The output of successive calls can be concatenated into
// one valid trace.
func AppendTrace(dst []byte, packets []*TracePacket) ([]byte, error) {
	for _, packet := range packets {
		body := appendPacket(nil, packet)
		if len(body) > MaxPacketLength {
			return nil, &errPacketLength{actual: uint64(len(body))}
		}
		dst = protowire.AppendTag(dst, fieldTracePacket, protowire.BytesType)
		dst = protowire.AppendBytes(dst, body)
	}
	return dst, nil
}

func appendPacket(dst []byte, packet *TracePacket) []byte {
	if packet.Timestamp != 0 {
		dst = protowire.AppendTag(dst, fieldPacketTimestamp, protowire.VarintType)
		dst = protowire.AppendVarint(dst, packet.Timestamp)
	}
	if packet.SequenceID != 0 {
		dst = protowire.AppendTag(dst, fieldPacketSequenceID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(packet.SequenceID))
	}
	if packet.Event != nil {
		dst = protowire.AppendTag(dst, fieldPacketTrackEvent, protowire.BytesType)
		dst = protowire.AppendBytes(dst, appendEvent(nil, packet.Event))
	}
	if packet.Track != nil {
		dst = protowire.AppendTag(dst, fieldPacketTrackDesc, protowire.BytesType)
		dst = protowire.AppendBytes(dst, appendTrack(nil, packet.Track))
	}
	return dst
}

func appendEvent(dst []byte, event *TrackEvent) []byte {
	for _, annotation := range event.Annotations {
		dst = protowire.AppendTag(dst, fieldEventAnnotation, protowire.BytesType)
		dst = protowire.AppendBytes(dst, appendAnnotation(nil, annotation))
	}
	if event.Type != EventTypeUnspecified {
		dst = protowire.AppendTag(dst, fieldEventType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(event.Type))
	}
	if event.TrackUUID != 0 {
		dst = protowire.AppendTag(dst, fieldEventTrackUUID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, event.TrackUUID)
	}
	for _, category := range event.Categories {
		dst = protowire.AppendTag(dst, fieldEventCategory, protowire.BytesType)
		dst = protowire.AppendString(dst, category)
	}
	if event.Name != "" {
		dst = protowire.AppendTag(dst, fieldEventName, protowire.BytesType)
		dst = protowire.AppendString(dst, event.Name)
	}
	if event.Location != nil {
		var loc []byte
		if event.Location.File != "" {
			loc = protowire.AppendTag(loc, fieldLocationFile, protowire.BytesType)
			loc = protowire.AppendString(loc, event.Location.File)
		}
		if event.Location.Line != 0 {
			loc = protowire.AppendTag(loc, fieldLocationLine, protowire.VarintType)
			loc = protowire.AppendVarint(loc, uint64(event.Location.Line))
		}
		dst = protowire.AppendTag(dst, fieldEventLocation, protowire.BytesType)
		dst = protowire.AppendBytes(dst, loc)
	}
	for _, flow := range event.FlowIDs {
		dst = protowire.AppendTag(dst, fieldEventFlowID, protowire.Fixed64Type)
		dst = protowire.AppendFixed64(dst, flow)
	}
	return dst
}

func appendAnnotation(dst []byte, annotation DebugAnnotation) []byte {
	dst = protowire.AppendTag(dst, fieldAnnotationValue, protowire.BytesType)
	dst = protowire.AppendString(dst, annotation.Value)
	dst = protowire.AppendTag(dst, fieldAnnotationName, protowire.BytesType)
	dst = protowire.AppendString(dst, annotation.Name)
	return dst
}

func appendTrack(dst []byte, track *TrackDescriptor) []byte {
	if track.UUID != 0 {
		dst = protowire.AppendTag(dst, fieldTrackUUID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, track.UUID)
	}
	if track.Name != "" {
		dst = protowire.AppendTag(dst, fieldTrackName, protowire.BytesType)
		dst = protowire.AppendString(dst, track.Name)
	}
	if track.Process != nil {
		var proc []byte
		proc = protowire.AppendTag(proc, fieldProcessPID, protowire.VarintType)
		proc = protowire.AppendVarint(proc, uint64(uint32(track.Process.PID)))
		if track.Process.Name != "" {
			proc = protowire.AppendTag(proc, fieldProcessName, protowire.BytesType)
			proc = protowire.AppendString(proc, track.Process.Name)
		}
		dst = protowire.AppendTag(dst, fieldTrackProcess, protowire.BytesType)
		dst = protowire.AppendBytes(dst, proc)
	}
	if track.Thread != nil {
		var thread []byte
		thread = protowire.AppendTag(thread, fieldThreadPID, protowire.VarintType)
		thread = protowire.AppendVarint(thread, uint64(uint32(track.Thread.PID)))
		thread = protowire.AppendTag(thread, fieldThreadTID, protowire.VarintType)
		thread = protowire.AppendVarint(thread, uint64(uint32(track.Thread.TID)))
		if track.Thread.Name != "" {
			thread = protowire.AppendTag(thread, fieldThreadName, protowire.BytesType)
			thread = protowire.AppendString(thread, track.Thread.Name)
		}
		dst = protowire.AppendTag(dst, fieldTrackThread, protowire.BytesType)
		dst = protowire.AppendBytes(dst, thread)
	}
	if track.ParentUUID != 0 {
		dst = protowire.AppendTag(dst, fieldTrackParentUUID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, track.ParentUUID)
	}
	return dst
}

// ParseTrace decodes a Perfetto trace stream produced by AppendTrace (or
// any other writer of the packet subset defined in this package) back
// into packets. Unknown fields are skipped.
//
// If this function returns an error, client code must check it with
// IsFramingError to decide if the error means the bytes are unreadable
// as a trace stream.
func ParseTrace(buf []byte) ([]*TracePacket, error) {
	var packets []*TracePacket
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, &errTruncated{what: "trace field tag"}
		}
		buf = buf[n:]
		if num != fieldTracePacket {
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, &errTruncated{what: "trace field value"}
			}
			buf = buf[n:]
			continue
		}
		if typ != protowire.BytesType {
			return nil, &errWireType{field: num, wire: typ}
		}
		body, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return nil, &errTruncated{what: "trace packet"}
		}
		if len(body) > MaxPacketLength {
			return nil, &errPacketLength{actual: uint64(len(body))}
		}
		buf = buf[n:]
		packet, err := parsePacket(body)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

// fieldValue holds one decoded protobuf field before it is assigned to a
// struct member.
type fieldValue struct {
	num     protowire.Number
	varint  uint64
	fixed64 uint64
	bytes   []byte
}

// walkFields iterates the fields of one message body, invoking visit for
// each. Exactly one of the value members is meaningful, according to the
// wire type the field carried.
func walkFields(buf []byte, visit func(fieldValue) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return &errTruncated{what: "field tag"}
		}
		buf = buf[n:]
		value := fieldValue{num: num}
		switch typ {
		case protowire.VarintType:
			value.varint, n = protowire.ConsumeVarint(buf)
		case protowire.Fixed64Type:
			value.fixed64, n = protowire.ConsumeFixed64(buf)
		case protowire.BytesType:
			value.bytes, n = protowire.ConsumeBytes(buf)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return &errTruncated{what: "field value"}
			}
			buf = buf[n:]
			continue
		}
		if n < 0 {
			return &errTruncated{what: "field value"}
		}
		buf = buf[n:]
		if err := visit(value); err != nil {
			return err
		}
	}
	return nil
}

func parsePacket(buf []byte) (*TracePacket, error) {
	packet := &TracePacket{}
	err := walkFields(buf, func(value fieldValue) error {
		switch value.num {
		case fieldPacketTimestamp:
			packet.Timestamp = value.varint
		case fieldPacketSequenceID:
			packet.SequenceID = uint32(value.varint)
		case fieldPacketTrackEvent:
			event, err := parseEvent(value.bytes)
			if err != nil {
				return err
			}
			packet.Event = event
		case fieldPacketTrackDesc:
			track, err := parseTrack(value.bytes)
			if err != nil {
				return err
			}
			packet.Track = track
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return packet, nil
}

func parseEvent(buf []byte) (*TrackEvent, error) {
	event := &TrackEvent{}
	err := walkFields(buf, func(value fieldValue) error {
		switch value.num {
		case fieldEventAnnotation:
			annotation, err := parseAnnotation(value.bytes)
			if err != nil {
				return err
			}
			event.Annotations = append(event.Annotations, annotation)
		case fieldEventType:
			event.Type = EventType(value.varint)
		case fieldEventTrackUUID:
			event.TrackUUID = value.varint
		case fieldEventCategory:
			event.Categories = append(event.Categories, string(value.bytes))
		case fieldEventName:
			event.Name = string(value.bytes)
		case fieldEventLocation:
			location, err := parseLocation(value.bytes)
			if err != nil {
				return err
			}
			event.Location = location
		case fieldEventFlowID:
			// Writers may emit flow ids packed or one by one.
			if value.bytes != nil {
				packed := value.bytes
				for len(packed) > 0 {
					flow, n := protowire.ConsumeFixed64(packed)
					if n < 0 {
						return &errTruncated{what: "packed flow id"}
					}
					packed = packed[n:]
					event.FlowIDs = append(event.FlowIDs, flow)
				}
			} else {
				event.FlowIDs = append(event.FlowIDs, value.fixed64)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func parseAnnotation(buf []byte) (DebugAnnotation, error) {
	annotation := DebugAnnotation{}
	err := walkFields(buf, func(value fieldValue) error {
		switch value.num {
		case fieldAnnotationValue:
			annotation.Value = string(value.bytes)
		case fieldAnnotationName:
			annotation.Name = string(value.bytes)
		}
		return nil
	})
	return annotation, err
}

func parseLocation(buf []byte) (*SourceLocation, error) {
	location := &SourceLocation{}
	err := walkFields(buf, func(value fieldValue) error {
		switch value.num {
		case fieldLocationFile:
			location.File = string(value.bytes)
		case fieldLocationLine:
			location.Line = uint32(value.varint)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return location, nil
}

func parseTrack(buf []byte) (*TrackDescriptor, error) {
	track := &TrackDescriptor{}
	err := walkFields(buf, func(value fieldValue) error {
		switch value.num {
		case fieldTrackUUID:
			track.UUID = value.varint
		case fieldTrackName:
			track.Name = string(value.bytes)
		case fieldTrackProcess:
			process := &ProcessDescriptor{}
			perr := walkFields(value.bytes, func(field fieldValue) error {
				switch field.num {
				case fieldProcessPID:
					process.PID = int32(field.varint)
				case fieldProcessName:
					process.Name = string(field.bytes)
				}
				return nil
			})
			if perr != nil {
				return perr
			}
			track.Process = process
		case fieldTrackThread:
			thread := &ThreadDescriptor{}
			terr := walkFields(value.bytes, func(field fieldValue) error {
				switch field.num {
				case fieldThreadPID:
					thread.PID = int32(field.varint)
				case fieldThreadTID:
					thread.TID = int32(field.varint)
				case fieldThreadName:
					thread.Name = string(field.bytes)
				}
				return nil
			})
			if terr != nil {
				return terr
			}
			track.Thread = thread
		case fieldTrackParentUUID:
			track.ParentUUID = value.varint
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return track, nil
}
