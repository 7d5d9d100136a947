// Package blackhole provides a sink that discards every flushed trace.
// It is useful for benchmarks and tests that do not require any
// inspection of flushed bytes.
package blackhole

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pftrace/pftrace/sinks"
)

type blackholeSink struct{}

var _ sinks.TraceSink = blackholeSink{}

// NewSink creates a new blackhole sink. This sink does nothing at write
// time, effectively "black holing" any traces that are flushed.
func NewSink() sinks.TraceSink {
	return blackholeSink{}
}

func (blackholeSink) Name() string {
	return "blackhole"
}

func (blackholeSink) Start(*logrus.Entry) error {
	return nil
}

func (blackholeSink) Write(context.Context, []byte) error {
	return nil
}

func (blackholeSink) Close() error {
	return nil
}
