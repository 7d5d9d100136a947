// Package sinks defines the destinations a flushed trace can be written
// to. Sinks receive fully encoded trace bytes; they never inspect or
// re-frame packets.
package sinks

import (
	"context"

	"github.com/sirupsen/logrus"
)

// TraceSink is a receiver of encoded trace bytes. A trace context hands
// a sink the entire encoded buffer at flush time; the sink is
// responsible for delivering it to whatever backend it fronts. Note that
// successive writes to the same sink must remain concatenable into one
// valid trace stream, so sinks must not reorder or trim the bytes they
// are given.
type TraceSink interface {
	// Name returns the sink's name for logging and debugging purposes.
	Name() string
	// Start finishes setting up the sink. It's invoked once before the
	// first write, and is where a sink acquires any exclusive resources
	// it needs (output files, locks, connections).
	Start(logger *logrus.Entry) error
	// Write delivers one flushed trace buffer. The buffer must not be
	// retained after Write returns.
	Write(ctx context.Context, trace []byte) error
	// Close releases the sink's resources. No writes follow a Close.
	Close() error
}

// FlushCompleteMessage is logged by drivers after a successful flush.
const FlushCompleteMessage = "Flush complete"
