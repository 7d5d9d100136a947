package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDelivers(t *testing.T) {
	ch := make(chan []byte, 1)
	sink := NewSink(ch)

	require.NoError(t, sink.Write(context.Background(), []byte("trace")))
	assert.Equal(t, []byte("trace"), <-ch)
}

func TestWriteHonorsCancellation(t *testing.T) {
	ch := make(chan []byte) // unbuffered, nobody reading
	sink := NewSink(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sink.Write(ctx, []byte("trace"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
