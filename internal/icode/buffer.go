// Package icode is the append-only intermediate code buffer the parser
// emits into and the VM later executes directly: spec.md §3/§4.4's
// Instruction vector plus forward-reference location markers.
package icode

import "cx/internal/bytecode"

// Buffer wraps a bytecode.Program with the location-marker discipline of
// spec.md §4.4: PutMarker emits a branch instruction with a not-yet-known
// target and returns a marker id (here, simply the instruction's index);
// Fixup writes the current tail position into that instruction's arg0.
type Buffer struct {
	Prog    *bytecode.Program
	pending map[int]bool // markers emitted but not yet fixed up
	line    int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{Prog: &bytecode.Program{}, pending: make(map[int]bool)}
}

// SetLine records the current source line; subsequent Emit/PutMarker calls
// tag their instruction with it (spec.md §4.4's "line markers").
func (b *Buffer) SetLine(line int) { b.line = line }

// Emit appends a non-branching instruction.
func (b *Buffer) Emit(op bytecode.Opcode, args ...bytecode.Value) int {
	idx := b.Prog.Emit(op, args...)
	b.Prog.Instrs[idx].Line = b.line
	return idx
}

// PutMarker emits a branch instruction whose arg0 (the jump target) is a
// placeholder, and returns a marker id for later Fixup. Per spec.md §8
// universal property 3, every marker returned here must be Fixup'd exactly
// once before the program reaches the VM.
func (b *Buffer) PutMarker(op bytecode.Opcode, args ...bytecode.Value) int {
	idx := b.Emit(op, args...)
	b.pending[idx] = true
	return idx
}

// Fixup writes the current tail position into marker's arg0 slot.
func (b *Buffer) Fixup(marker int) {
	b.Prog.PatchArg0(marker, bytecode.Int(int32(b.Prog.Len())))
	delete(b.pending, marker)
}

// FixupTo patches marker's arg0 to an already-known absolute position
// (used for backward branches where the target is the current tail at
// loop-entry time, recorded earlier via Mark).
func (b *Buffer) FixupTo(marker, pos int) {
	b.Prog.PatchArg0(marker, bytecode.Int(int32(pos)))
	delete(b.pending, marker)
}

// Mark returns the current tail position, for backward (loop) branches
// that already know their target and need no later Fixup.
func (b *Buffer) Mark() int { return b.Prog.Len() }

// PendingMarkers reports markers that were PutMarker'd but never Fixup'd —
// used by tests asserting fixup totality (spec.md §8 universal property 3).
func (b *Buffer) PendingMarkers() []int {
	ids := make([]int, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	return ids
}

// Reset truncates the buffer back to mark, discarding everything emitted
// since, along with any pending markers in the discarded range. The
// #include directive does not call it: library mode rejects bare top-level
// statements, so an included file emits only function bodies, which stay.
func (b *Buffer) Reset(mark int) {
	for idx := range b.pending {
		if idx >= mark {
			delete(b.pending, idx)
		}
	}
	b.Prog.Instrs = b.Prog.Instrs[:mark]
}
