// Package pftrace maps structured instrumentation callbacks — span
// creation, span closure and point-in-time log events — onto Perfetto
// trace packets: per-goroutine tracks, timestamped BEGIN/END/INSTANT
// slices, causal flow links and string debug annotations.
//
// The package is organized around two types. A Context is the shared,
// mutex-guarded aggregate of the track registry, the id allocator and
// the packet buffer; everything that emits a packet goes through one
// Context. A Recorder consumes the SpanObserver callback contract and
// drives the Context, keeping the per-span identity table needed to
// correlate BEGIN, END and INSTANT packets.
//
// Contexts are explicitly constructed and caller-owned, never process
// singletons, so multiple independent trace sessions can coexist and be
// tested in isolation.
package pftrace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pftrace/pftrace/internal/goid"
	"github.com/pftrace/pftrace/perfetto"
	"github.com/pftrace/pftrace/sinks"
)

// trustedSequenceID marks every packet as coming from the one shared
// builder. A single Context never has a second packet writer.
const trustedSequenceID = 1

// Context is the shared state behind one trace session: the track
// registry, the id allocator and the buffer of packets accumulated
// since the last flush. Every operation takes the Context's exclusive
// lock, so packet ordering within the buffer is globally consistent
// across all goroutines that emit through it.
type Context struct {
	mtx     sync.Mutex
	ids     idAllocator
	tracks  map[uint64]TrackID
	packets []*perfetto.TracePacket

	processTrack uint64
	processName  string
	pid          int32
	now          func() time.Time
	logger       *logrus.Entry
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithProcessName sets the name of the process track. The default is
// the basename of the running executable.
func WithProcessName(name string) Option {
	return func(c *Context) {
		c.processName = name
	}
}

// WithClock overrides the wall clock used for "now" timestamps. Tests
// use this to make packet timestamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// WithLogger sets the logger used by the Context and by Recorders
// created on it. The default is the logrus standard logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// New constructs a Context and buffers the descriptor packet for its
// process track. The Context is ready for concurrent use immediately.
func New(opts ...Option) *Context {
	c := &Context{
		tracks:      map[uint64]TrackID{},
		processName: processName(),
		pid:         int32(os.Getpid()),
		now:         time.Now,
		logger:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.processTrack = c.ids.nextID()
	c.packets = append(c.packets, &perfetto.TracePacket{
		Timestamp:  uint64(c.now().UnixNano()),
		SequenceID: trustedSequenceID,
		Track: &perfetto.TrackDescriptor{
			UUID: c.processTrack,
			Name: c.processName,
			Process: &perfetto.ProcessDescriptor{
				PID:  c.pid,
				Name: c.processName,
			},
		},
	})
	return c
}

func processName() string {
	exe, err := os.Executable()
	if err != nil {
		return "pftrace"
	}
	return filepath.Base(exe)
}

// NextID returns a fresh globally unique id. Ids minted here and track
// ids come from the same counter, so no id is ever issued twice by one
// Context.
func (c *Context) NextID() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.ids.nextID()
}

// CurrentThreadTrack resolves the calling goroutine's track id,
// allocating one on first use. Subsequent calls from the same goroutine
// return the same id for the life of the Context.
func (c *Context) CurrentThreadTrack() TrackID {
	gid := goid.ID()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.trackForLocked(gid)
}

// trackForLocked resolves the track for one execution-context id,
// allocating a track and buffering its descriptor packet on first use.
func (c *Context) trackForLocked(gid uint64) TrackID {
	if track, ok := c.tracks[gid]; ok {
		return track
	}
	track := TrackID(c.ids.nextID())
	c.tracks[gid] = track
	name := fmt.Sprintf("goroutine %d", gid)
	c.packets = append(c.packets, &perfetto.TracePacket{
		Timestamp:  uint64(c.now().UnixNano()),
		SequenceID: trustedSequenceID,
		Track: &perfetto.TrackDescriptor{
			UUID:       uint64(track),
			ParentUUID: c.processTrack,
			Name:       name,
			Thread: &perfetto.ThreadDescriptor{
				PID:  c.pid,
				TID:  int32(gid),
				Name: name,
			},
		},
	})
	return track
}

// appendLocked adds one finished packet to the buffer.
func (c *Context) appendLocked(packet *perfetto.TracePacket) {
	c.packets = append(c.packets, packet)
}

// Len returns the number of packets buffered since the last successful
// flush.
func (c *Context) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.packets)
}

// WriteTo serializes all packets buffered so far to w and, on full
// success, drains them: each packet is exported exactly once across
// repeated calls, and the outputs of successive calls concatenate into
// one valid trace stream. A failed write leaves the buffer intact and
// retryable. WriteTo holds the Context lock for the duration of the
// write, so it is the one operation that may block packet emission.
func (c *Context) WriteTo(w io.Writer) (int64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.packets) == 0 {
		return 0, nil
	}
	buf, err := perfetto.AppendTrace(nil, c.packets)
	if err != nil {
		return 0, errors.Wrap(err, "encoding trace packets")
	}
	n, err := w.Write(buf)
	if err != nil {
		return int64(n), errors.Wrap(err, "writing trace")
	}
	c.packets = nil
	return int64(n), nil
}

// Flush serializes all packets buffered so far into a byte buffer,
// draining them on success. See WriteTo for the drain semantics.
func (c *Context) Flush() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FlushToSink serializes all packets buffered so far through sink. The
// buffer is drained only after the sink write succeeds, so a failed
// write leaves every packet in place for a retry. Flushing an empty
// Context writes nothing.
func (c *Context) FlushToSink(ctx context.Context, sink sinks.TraceSink) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.packets) == 0 {
		return nil
	}
	buf, err := perfetto.AppendTrace(nil, c.packets)
	if err != nil {
		return errors.Wrap(err, "encoding trace packets")
	}
	if err := sink.Write(ctx, buf); err != nil {
		return errors.Wrapf(err, "flushing trace to sink %q", sink.Name())
	}
	c.packets = nil
	return nil
}
