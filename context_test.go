package pftrace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftrace/pftrace/perfetto"
	"github.com/pftrace/pftrace/sinks"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(
		WithProcessName("pftrace-test"),
		WithLogger(logrus.NewEntry(logger)),
	)
}

func decodeTrace(t *testing.T, buf []byte) []*perfetto.TracePacket {
	t.Helper()
	packets, err := perfetto.ParseTrace(buf)
	require.NoError(t, err)
	return packets
}

// slices filters out descriptor packets, leaving BEGIN/END/INSTANT
// events in buffer order.
func slices(packets []*perfetto.TracePacket) []*perfetto.TrackEvent {
	events := []*perfetto.TrackEvent{}
	for _, packet := range packets {
		if packet.Event != nil {
			events = append(events, packet.Event)
		}
	}
	return events
}

func TestNextIDStrictlyIncreasing(t *testing.T) {
	ctx := testContext(t)
	previous := uint64(0)
	for i := 0; i < 1000; i++ {
		id := ctx.NextID()
		assert.Greater(t, id, previous)
		previous = id
	}
}

func TestNextIDConcurrentlyDistinct(t *testing.T) {
	ctx := testContext(t)
	const goroutines = 16
	const perGoroutine = 200

	ids := make(chan uint64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- ctx.NextID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		require.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestCurrentThreadTrackStable(t *testing.T) {
	ctx := testContext(t)
	first := ctx.CurrentThreadTrack()
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ctx.CurrentThreadTrack())
	}
}

func TestCurrentThreadTrackDistinctAcrossGoroutines(t *testing.T) {
	ctx := testContext(t)
	own := ctx.CurrentThreadTrack()

	other := make(chan TrackID)
	go func() {
		other <- ctx.CurrentThreadTrack()
	}()
	assert.NotEqual(t, own, <-other)
}

func TestNewEmitsProcessDescriptor(t *testing.T) {
	ctx := testContext(t)
	buf, err := ctx.Flush()
	require.NoError(t, err)

	packets := decodeTrace(t, buf)
	require.Len(t, packets, 1)
	track := packets[0].Track
	require.NotNil(t, track)
	assert.Equal(t, "pftrace-test", track.Name)
	require.NotNil(t, track.Process)
	assert.Equal(t, "pftrace-test", track.Process.Name)
	assert.NotZero(t, track.Process.PID)
}

func TestTrackDescriptorEmittedOnce(t *testing.T) {
	ctx := testContext(t)
	track := ctx.CurrentThreadTrack()
	ctx.CurrentThreadTrack()
	ctx.CurrentThreadTrack()

	buf, err := ctx.Flush()
	require.NoError(t, err)

	descriptors := 0
	for _, packet := range decodeTrace(t, buf) {
		if packet.Track != nil && packet.Track.Thread != nil {
			descriptors++
			assert.Equal(t, uint64(track), packet.Track.UUID)
		}
	}
	assert.Equal(t, 1, descriptors)
}

func TestThreadTrackParentedToProcessTrack(t *testing.T) {
	ctx := testContext(t)
	ctx.CurrentThreadTrack()

	buf, err := ctx.Flush()
	require.NoError(t, err)
	packets := decodeTrace(t, buf)
	require.Len(t, packets, 2)
	process := packets[0].Track
	thread := packets[1].Track
	require.NotNil(t, process)
	require.NotNil(t, thread)
	assert.Equal(t, process.UUID, thread.ParentUUID)
}

func TestWriteToDrains(t *testing.T) {
	ctx := testContext(t)
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithName("first").Build()

	first, err := ctx.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Zero(t, ctx.Len())

	// Nothing recorded since: the next flush is empty.
	second, err := ctx.Flush()
	require.NoError(t, err)
	assert.Empty(t, second)

	// Packets recorded after a flush appear exactly once, in the next
	// flush, and the concatenation of both flushes is one valid trace.
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithName("second").Build()
	third, err := ctx.Flush()
	require.NoError(t, err)

	events := slices(decodeTrace(t, append(first, third...)))
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Name)
	assert.Equal(t, "second", events[1].Name)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink exploded")
}

func TestWriteToFailureKeepsBuffer(t *testing.T) {
	ctx := testContext(t)
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithName("kept").Build()
	buffered := ctx.Len()

	_, err := ctx.WriteTo(failingWriter{})
	require.Error(t, err)
	assert.Equal(t, buffered, ctx.Len())

	// The failed flush corrupted nothing; a retry exports everything.
	buf, err := ctx.Flush()
	require.NoError(t, err)
	events := slices(decodeTrace(t, buf))
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].Name)
}

type failingSink struct{}

func (failingSink) Name() string              { return "failing" }
func (failingSink) Start(*logrus.Entry) error { return nil }
func (failingSink) Write(context.Context, []byte) error {
	return errors.New("no room")
}
func (failingSink) Close() error { return nil }

var _ sinks.TraceSink = failingSink{}

func TestFlushToSinkFailureKeepsBuffer(t *testing.T) {
	ctx := testContext(t)
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithName("kept").Build()
	buffered := ctx.Len()

	err := ctx.FlushToSink(context.Background(), failingSink{})
	require.Error(t, err)
	assert.Equal(t, buffered, ctx.Len())
}

func TestFlushToSinkDrains(t *testing.T) {
	ctx := testContext(t)
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithName("sent").Build()

	var delivered []byte
	sink := captureSink{trace: &delivered}
	require.NoError(t, ctx.FlushToSink(context.Background(), sink))
	assert.Zero(t, ctx.Len())

	events := slices(decodeTrace(t, delivered))
	require.Len(t, events, 1)
	assert.Equal(t, "sent", events[0].Name)

	// An empty context writes nothing.
	delivered = nil
	require.NoError(t, ctx.FlushToSink(context.Background(), sink))
	assert.Nil(t, delivered)
}

type captureSink struct {
	trace *[]byte
}

func (captureSink) Name() string              { return "capture" }
func (captureSink) Start(*logrus.Entry) error { return nil }
func (s captureSink) Write(_ context.Context, trace []byte) error {
	*s.trace = trace
	return nil
}
func (captureSink) Close() error { return nil }

func TestMultipleContextsAreIndependent(t *testing.T) {
	first := New(WithProcessName("first"))
	second := New(WithProcessName("second"))

	firstTrack := first.CurrentThreadTrack()
	secondTrack := second.CurrentThreadTrack()

	// Separate sessions keep separate registries and buffers; flushing
	// one must not disturb the other.
	assert.Equal(t, firstTrack, first.CurrentThreadTrack())
	assert.Equal(t, secondTrack, second.CurrentThreadTrack())

	_, err := first.Flush()
	require.NoError(t, err)
	assert.NotZero(t, second.Len())
}

func TestWithClock(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	ctx := New(
		WithProcessName("clock-test"),
		WithClock(func() time.Time { return at }),
	)
	ctx.Event().WithInstant().WithTrack(ctx.CurrentThreadTrack()).WithNow().WithName("tick").Build()

	buf, err := ctx.Flush()
	require.NoError(t, err)
	events := decodeTrace(t, buf)
	last := events[len(events)-1]
	assert.Equal(t, uint64(at.UnixNano()), last.Timestamp)
}
