// Package channel provides a sink that delivers flushed traces to a Go
// channel, so that tests and in-process pipelines can inspect them.
package channel

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pftrace/pftrace/sinks"
)

// Sink writes any flushed trace buffer to its channel such that a test
// can inspect the bytes for correctness.
type Sink struct {
	Traces chan []byte
}

var _ sinks.TraceSink = Sink{}

// NewSink creates a new channel sink delivering to ch.
func NewSink(ch chan []byte) Sink {
	return Sink{Traces: ch}
}

func (c Sink) Name() string {
	return "channel"
}

func (c Sink) Start(*logrus.Entry) error {
	return nil
}

// Write puts the whole buffer on the channel since many tests want to
// decode the complete flush rather than reassemble fragments.
func (c Sink) Write(ctx context.Context, trace []byte) error {
	select {
	case c.Traces <- trace:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c Sink) Close() error {
	return nil
}
