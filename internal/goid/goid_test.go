package goid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIsStable(t *testing.T) {
	first := ID()
	require.NotZero(t, first)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ID())
	}
}

func TestIDDiffersAcrossGoroutines(t *testing.T) {
	own := ID()
	ids := make(chan uint64)
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ids <- ID()
		}()
	}
	go func() {
		wg.Wait()
		close(ids)
	}()

	seen := map[uint64]bool{own: true}
	for id := range ids {
		require.NotZero(t, id)
		assert.False(t, seen[id], "goroutine id %d seen twice", id)
		seen[id] = true
	}
}
