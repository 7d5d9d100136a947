// Package localfile provides a sink that appends flushed traces to a
// file on the local filesystem.
package localfile

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flock "github.com/theckman/go-flock"

	"github.com/pftrace/pftrace/sinks"
	"github.com/pftrace/pftrace/util"
)

// SinkConfig is the localfile section of the trace config.
type SinkConfig struct {
	// Path of the output trace file. Appended to, created if absent.
	Path string `yaml:"path"`
	// Gzip compresses each flushed buffer. The Perfetto UI accepts
	// gzipped traces directly.
	Gzip bool `yaml:"gzip"`
}

// FileSystem opens files. Tests substitute an in-memory implementation.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
}

// File is the subset of *os.File the sink writes through.
type File interface {
	Close() error
	Write(p []byte) (n int, err error)
}

type osFS struct{}

func (osFS) OpenFile(
	name string, flag int, perm os.FileMode,
) (File, error) {
	return os.OpenFile(name, flag, perm)
}

// Sink appends flushed trace buffers to a single local file. A flock
// advisory lock next to the output path ensures two processes do not
// interleave writes into the same trace file.
type Sink struct {
	Path       string
	Gzip       bool
	FileSystem FileSystem
	lock       *flock.Flock
	logger     *logrus.Entry
	name       string
}

var _ sinks.TraceSink = (*Sink)(nil)

// ParseConfig decodes the map config for a localfile sink into a
// SinkConfig struct.
func ParseConfig(name string, config interface{}) (SinkConfig, error) {
	fileConfig := SinkConfig{}
	err := util.DecodeConfig(name, config, &fileConfig)
	if err != nil {
		return SinkConfig{}, err
	}
	if fileConfig.Path == "" {
		return SinkConfig{}, errors.New("localfile sink requires a path")
	}
	return fileConfig, nil
}

// Create creates a new localfile sink for traces. This function matches
// the signature of a value in pftrace.TraceSinkTypes, and is intended to
// be passed into pftrace.CreateSinks to be called based on the provided
// configuration.
func Create(
	name string, logger *logrus.Entry, config interface{},
) (sinks.TraceSink, error) {
	fileConfig, err := ParseConfig(name, config)
	if err != nil {
		return nil, err
	}
	return NewSink(fileConfig, osFS{}, logger, name), nil
}

// NewSink constructs a localfile sink writing through filesystem.
func NewSink(
	config SinkConfig, filesystem FileSystem, logger *logrus.Entry,
	name string,
) *Sink {
	return &Sink{
		Path:       config.Path,
		Gzip:       config.Gzip,
		FileSystem: filesystem,
		logger:     logger,
		name:       name,
	}
}

// Name is the name of the sink as configured, e.g. "localfile".
func (sink *Sink) Name() string {
	return sink.name
}

// Start acquires the advisory lock for the output path. It fails if
// another process already writes to the same trace file.
func (sink *Sink) Start(logger *logrus.Entry) error {
	if logger != nil {
		sink.logger = logger
	}
	lockname := fmt.Sprintf("%s.lock", sink.Path)
	lock := flock.NewFlock(lockname)
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "could not acquire the lock %q", lockname)
	}
	if !locked {
		return errors.Errorf(
			"lock file %q is in use by another process already", lockname)
	}
	sink.lock = lock
	sink.logger.WithFields(logrus.Fields{
		"path": sink.Path,
		"gzip": sink.Gzip,
	}).Info("Writing traces to local file")
	return nil
}

// Write appends one flushed trace buffer to the output file. Each call
// opens and closes the file so that a crash between flushes never holds
// a dirty file handle.
func (sink *Sink) Write(ctx context.Context, trace []byte) error {
	file, err := sink.FileSystem.OpenFile(
		sink.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "couldn't open %s for appending", sink.Path)
	}
	if werr := sink.writeTo(file, trace); werr != nil {
		file.Close()
		return werr
	}
	return errors.Wrapf(file.Close(), "closing %s", sink.Path)
}

func (sink *Sink) writeTo(file File, trace []byte) error {
	if !sink.Gzip {
		_, err := file.Write(trace)
		return errors.Wrapf(err, "writing trace to %s", sink.Path)
	}
	gzipWriter := gzip.NewWriter(file)
	if _, err := gzipWriter.Write(trace); err != nil {
		return errors.Wrapf(err, "writing trace to %s", sink.Path)
	}
	return errors.Wrapf(gzipWriter.Close(), "finishing gzip stream for %s", sink.Path)
}

// Close releases the advisory lock.
func (sink *Sink) Close() error {
	if sink.lock == nil {
		return nil
	}
	return sink.lock.Unlock()
}
