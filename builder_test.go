package pftrace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftrace/pftrace/perfetto"
)

func lastEvent(t *testing.T, ctx *Context) *perfetto.TrackEvent {
	t.Helper()
	buf, err := ctx.Flush()
	require.NoError(t, err)
	packets := decodeTrace(t, buf)
	require.NotEmpty(t, packets)
	last := packets[len(packets)-1]
	require.NotNil(t, last.Event)
	return last.Event
}

func TestBuilderMethodsComposeInAnyOrder(t *testing.T) {
	ctx := testContext(t)
	track := ctx.CurrentThreadTrack()

	ctx.Event().
		WithName("ordered").
		WithFlowID(9).
		WithCategory("info").
		WithTrack(track).
		WithAttribute("key", "value").
		WithSourceLocation("main.go", 10).
		WithBegin().
		Build()

	event := lastEvent(t, ctx)
	assert.Equal(t, perfetto.EventTypeSliceBegin, event.Type)
	assert.Equal(t, uint64(track), event.TrackUUID)
	assert.Equal(t, "ordered", event.Name)
	assert.Equal(t, []string{"info"}, event.Categories)
	assert.Equal(t, []uint64{9}, event.FlowIDs)
	require.NotNil(t, event.Location)
	assert.Equal(t, "main.go", event.Location.File)
	assert.Equal(t, uint32(10), event.Location.Line)
	assert.Equal(
		t, []perfetto.DebugAnnotation{{Name: "key", Value: "value"}},
		event.Annotations)
}

func TestBuilderDefaultsTimestampToNow(t *testing.T) {
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	ctx := New(WithClock(func() time.Time { return at }))

	ctx.Event().WithInstant().WithTrack(1).WithName("tick").Build()

	buf, err := ctx.Flush()
	require.NoError(t, err)
	packets := decodeTrace(t, buf)
	last := packets[len(packets)-1]
	assert.Equal(t, uint64(at.UnixNano()), last.Timestamp)
}

func TestBuilderExplicitTimestampWins(t *testing.T) {
	ctx := testContext(t)
	at := time.Date(2023, 1, 2, 3, 4, 5, 6, time.UTC)

	ctx.Event().WithInstant().WithTrack(1).WithTimestamp(at).WithName("tick").Build()

	buf, err := ctx.Flush()
	require.NoError(t, err)
	packets := decodeTrace(t, buf)
	last := packets[len(packets)-1]
	assert.Equal(t, uint64(at.UnixNano()), last.Timestamp)
}

func TestBuilderSkipsEmptyCategoryAndLocation(t *testing.T) {
	ctx := testContext(t)

	ctx.Event().
		WithInstant().
		WithTrack(1).
		WithCategory("").
		WithSourceLocation("", 0).
		WithName("bare").
		Build()

	event := lastEvent(t, ctx)
	assert.Empty(t, event.Categories)
	assert.Nil(t, event.Location)
}

func TestAbandonedBuilderLeavesBufferUntouched(t *testing.T) {
	ctx := testContext(t)
	buffered := ctx.Len()

	// Started but never built.
	ctx.Event().WithBegin().WithName("abandoned")

	assert.Equal(t, buffered, ctx.Len())
}
