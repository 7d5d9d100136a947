package pftrace

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pftrace/pftrace/internal/goid"
)

// spanIdentity is the per-span record correlating a live span with its
// place in the output trace. It exists from OnSpanStart to OnSpanEnd.
type spanIdentity struct {
	track TrackID
	slice SliceID
	name  string
}

// Recorder maps the SpanObserver callback contract onto trace packets.
// It owns the side table from framework span ids to span identities,
// so it needs no associated-storage support from the host framework.
//
// All methods funnel through the Context's lock: one callback is one
// critical section, and packet order in the buffer matches callback
// order process-wide.
type Recorder struct {
	ctx    *Context
	spans  map[uint64]spanIdentity
	logger *logrus.Entry

	droppedEvents         atomic.Uint64
	consistencyViolations atomic.Uint64
}

var _ SpanObserver = (*Recorder)(nil)

// NewRecorder creates a Recorder emitting through ctx.
func NewRecorder(ctx *Context) *Recorder {
	return &Recorder{
		ctx:    ctx,
		spans:  map[uint64]spanIdentity{},
		logger: ctx.logger,
	}
}

// Context returns the Context the Recorder emits through.
func (r *Recorder) Context() *Context {
	return r.ctx
}

// OnSpanStart allocates the creating goroutine's track and a fresh
// slice id, records both in the side table, and emits a BEGIN packet.
// The packet carries the span's own slice id as a flow id and, if the
// parent span's identity is resolvable, the parent's slice id as a
// second flow id, producing a causal arrow from parent to child even
// when they live on different tracks.
func (r *Recorder) OnSpanStart(start SpanStart) {
	c := r.ctx
	c.mtx.Lock()
	defer c.mtx.Unlock()

	track := c.trackForLocked(goid.ID())
	slice := SliceID(c.ids.nextID())
	r.spans[start.ID] = spanIdentity{track: track, slice: slice, name: start.Name}

	builder := c.Event().
		WithBegin().
		WithTrack(track).
		WithFlowID(uint64(slice)).
		WithSourceLocation(start.File, start.Line).
		WithTimestamp(timeOrNow(start.Time, c)).
		WithCategory(start.Level).
		WithName(start.Name)
	if start.Parent != 0 {
		if parent, ok := r.spans[start.Parent]; ok {
			builder.WithFlowID(uint64(parent.slice))
		}
	}
	recordFields(builder, start.Fields)
	builder.buildLocked()
}

// OnSpanEnd retrieves and removes the span's identity and emits an END
// packet on the span's track. An unknown span id means the host broke
// the start-before-end contract: the violation is logged and counted,
// and no packet is emitted.
func (r *Recorder) OnSpanEnd(end SpanEnd) {
	c := r.ctx
	c.mtx.Lock()
	defer c.mtx.Unlock()

	identity, ok := r.spans[end.ID]
	if !ok {
		r.consistencyViolations.Add(1)
		r.logger.WithFields(logrus.Fields{
			"span_id": end.ID,
		}).Error("Span closed without a recorded identity; dropping END packet")
		return
	}
	delete(r.spans, end.ID)

	c.Event().
		WithEnd().
		WithTrack(identity.track).
		WithTimestamp(timeOrNow(end.Time, c)).
		WithName(identity.name).
		buildLocked()
}

// OnEvent emits an INSTANT packet on the enclosing span's track. Events
// with no resolvable enclosing span are dropped and counted; this is a
// deliberate simplification, not an error.
func (r *Recorder) OnEvent(event PointEvent) {
	c := r.ctx
	c.mtx.Lock()
	defer c.mtx.Unlock()

	identity, ok := r.spans[event.Span]
	if event.Span == 0 || !ok {
		r.droppedEvents.Add(1)
		r.logger.WithFields(logrus.Fields{
			"event": event.Name,
			"span":  event.Span,
		}).Debug("Dropping point event with no enclosing span")
		return
	}

	builder := c.Event().
		WithInstant().
		WithTrack(identity.track).
		WithTimestamp(timeOrNow(event.Time, c)).
		WithCategory(event.Target).
		WithSourceLocation(event.File, event.Line).
		WithCategory(event.Level).
		WithName(event.Name)
	recordFields(builder, event.Fields)
	builder.buildLocked()
}

// DroppedEvents returns the number of point events dropped because no
// enclosing span was resolvable.
func (r *Recorder) DroppedEvents() uint64 {
	return r.droppedEvents.Load()
}

// ConsistencyViolations returns the number of closures observed for
// spans with no recorded identity. Any nonzero value indicates a bug in
// the host framework's callback ordering.
func (r *Recorder) ConsistencyViolations() uint64 {
	return r.consistencyViolations.Load()
}

// recordFields flattens every supplied field to its printed form and
// attaches it as a string annotation. Numeric, boolean and structured
// values are not round-trippable to their original type.
func recordFields(builder *EventBuilder, fields []Field) {
	for _, field := range fields {
		builder.WithAttribute(field.Key, fmt.Sprint(field.Value))
	}
}

func timeOrNow(t time.Time, c *Context) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}
