package cli

import (
	"fmt"
	"io"
	"sort"

	"cx/internal/diagnostics"
	"cx/internal/vm"
)

// DumpHeap writes one line per live allocation in ascending pointer order,
// formatting each allocation's size with diagnostics.HumanBytes — the
// listing-dump counterpart to PrintTypeSpec for heap-resident values
// (spec.md §3's heap_map, §6's listing output).
func DumpHeap(w io.Writer, h *vm.Heap) {
	snap := h.Snapshot()
	ptrs := make([]int, 0, len(snap))
	for p := range snap {
		ptrs = append(ptrs, p)
	}
	sort.Ints(ptrs)

	for _, p := range ptrs {
		a := snap[p]
		fmt.Fprintf(w, "0x%04x  %-8s  %d elems x %d bytes = %s\n",
			p, a.Form, len(a.Buffer), a.ElemSize, diagnostics.HumanBytes(uint64(a.TotalBytes)))
	}
}
