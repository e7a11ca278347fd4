package vm

import (
	"sync"

	"cx/internal/types"
)

// Allocation is a single heap-map entry: spec.md §3's
// {shared buffer, element byte size, type form, type code, total bytes}.
type Allocation struct {
	Buffer     []Value
	ElemSize   int
	Form       types.Form
	TypeCode   int
	TotalBytes int
	refs       int
}

// Heap maps a synthetic pointer key to an Allocation. An entry stays live
// until its holder count drops to zero: Alloc counts one holder, Retain adds
// one, Release removes one. The VM releases an activation's allocations when
// it returns; copies of a pointer held in other stack slots or array
// elements are not counted as holders.
type Heap struct {
	mu      sync.Mutex
	entries map[int]*Allocation
	next    int
}

// NewHeap returns an empty heap map. Pointer 0 is reserved as the null
// pointer and is never allocated.
func NewHeap() *Heap {
	return &Heap{entries: make(map[int]*Allocation), next: 1}
}

// Alloc reserves count*elemSize bytes and returns its synthetic address
// with a single holder already counted.
func (h *Heap) Alloc(count, elemSize int, form types.Form, typeCode int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ptr := h.next
	h.next++
	h.entries[ptr] = &Allocation{
		Buffer:     make([]Value, count),
		ElemSize:   elemSize,
		Form:       form,
		TypeCode:   typeCode,
		TotalBytes: count * elemSize,
		refs:       1,
	}
	return ptr
}

// Get returns the allocation at ptr, or (nil, false) if it has been freed
// or never existed.
func (h *Heap) Get(ptr int) (*Allocation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.entries[ptr]
	return a, ok
}

// Retain adds a holder to ptr's allocation (e.g. a second stack slot now
// aliases the same buffer).
func (h *Heap) Retain(ptr int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.entries[ptr]; ok {
		a.refs++
	}
}

// Release removes one holder from ptr's allocation, erasing the entry once
// no holder remains.
func (h *Heap) Release(ptr int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.entries[ptr]
	if !ok {
		return
	}
	a.refs--
	if a.refs <= 0 {
		delete(h.entries, ptr)
	}
}

// Len reports the number of live allocations, for tests and diagnostics.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Snapshot returns a copy of the live allocation map (unordered; callers
// sort the keys themselves), for the heap-dump formatter (internal/cli) to
// walk without holding the heap's lock.
func (h *Heap) Snapshot() map[int]*Allocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int]*Allocation, len(h.entries))
	for k, v := range h.entries {
		out[k] = v
	}
	return out
}
