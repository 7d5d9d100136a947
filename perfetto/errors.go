package perfetto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type errTruncated struct {
	what string
}

func (err *errTruncated) Error() string {
	return fmt.Sprintf("perfetto framing error: truncated %s", err.what)
}

type errPacketLength struct {
	actual uint64
}

func (err *errPacketLength) Error() string {
	return fmt.Sprintf("perfetto framing error: packet length %d is too large", err.actual)
}

type errWireType struct {
	field protowire.Number
	wire  protowire.Type
}

func (err *errWireType) Error() string {
	return fmt.Sprintf("perfetto framing error: unexpected wire type %d for field %d", err.wire, err.field)
}

// IsFramingError returns true if an error indicates malformed trace
// bytes. A stream that produced a framing error can no longer be parsed
// and should be discarded.
func IsFramingError(err error) bool {
	switch err.(type) {
	case *errTruncated:
		return true
	case *errPacketLength:
		return true
	case *errWireType:
		return true
	}
	return false
}
