// Package goid resolves the numeric id of the calling goroutine.
// pftrace uses the id only as a stable per-goroutine track key.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// ID returns the id of the calling goroutine, parsed from the first
// line of its stack header ("goroutine N [running]:"). It returns 0 if
// the header cannot be parsed, which does not happen with any known
// runtime.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], prefix)
	end := bytes.IndexByte(header, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(header[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
