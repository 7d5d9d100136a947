package pftrace

// TrackID identifies one visualization lane in the output trace,
// typically one per goroutine. A given goroutine always maps to the
// same track id for the life of its Context.
type TrackID uint64

// SliceID identifies one span's slice in the output trace. It doubles
// as the flow id that links a child span's BEGIN packet back to its
// parent's slice across tracks.
type SliceID uint64

// idAllocator issues globally unique, strictly increasing 64-bit
// identifiers. Track ids and slice ids share one counter, so values
// from the two families are comparable but not separately zero-based.
//
// Callers must hold the owning Context's lock.
type idAllocator struct {
	next uint64
}

// nextID returns a fresh value greater than every value previously
// returned by this allocator. The first issued value is 1; 0 is
// reserved to mean "absent" in callback payloads.
func (a *idAllocator) nextID() uint64 {
	a.next++
	return a.next
}
