package atlas

import "sync/atomic"

// Holder publishes successive Index generations for concurrent readers,
// mirroring tracker.Tracker's table swap on the C4 side: the slow loop is
// the sole writer, Set installs a new generation atomically, and any
// number of readers call Get concurrently.
type Holder struct {
	ptr atomic.Pointer[Index]
}

// Get returns the current generation, or nil before the first Set.
func (h *Holder) Get() *Index {
	return h.ptr.Load()
}

// Set installs a new generation. Per spec.md §7, callers must not call Set
// with a generation that failed its invariant checks — Set itself performs
// no validation, matching C4's documented atomicity contract of installing
// only generations the builder already accepted.
func (h *Holder) Set(idx *Index) {
	h.ptr.Store(idx)
}
