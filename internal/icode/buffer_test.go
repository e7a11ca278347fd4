package icode

import (
	"testing"

	"cx/internal/bytecode"
)

// TestFixupTotality is spec.md §8 universal property 3: every marker
// PutMarker returns must be Fixup'd (or FixupTo'd) exactly once before the
// program reaches the VM.
func TestFixupTotality(t *testing.T) {
	b := NewBuffer()
	b.Emit(bytecode.NOP)
	m := b.PutMarker(bytecode.IFEQ, bytecode.Int(0))
	b.Emit(bytecode.NOP)
	b.Fixup(m)

	if pending := b.PendingMarkers(); len(pending) != 0 {
		t.Fatalf("pending markers after Fixup: %v", pending)
	}
	if b.Prog.Instrs[m].Arg0.I != int32(b.Mark()) {
		t.Fatalf("fixup target = %d, want %d", b.Prog.Instrs[m].Arg0.I, b.Mark())
	}
}

func TestFixupToBackwardBranch(t *testing.T) {
	b := NewBuffer()
	loopStart := b.Mark()
	b.Emit(bytecode.NOP)
	m := b.PutMarker(bytecode.GOTO, bytecode.Int(0))
	b.FixupTo(m, loopStart)

	if len(b.PendingMarkers()) != 0 {
		t.Fatalf("FixupTo left a pending marker")
	}
	if b.Prog.Instrs[m].Arg0.I != int32(loopStart) {
		t.Fatalf("backward branch target = %d, want %d", b.Prog.Instrs[m].Arg0.I, loopStart)
	}
}

func TestUnfixedMarkerDetected(t *testing.T) {
	b := NewBuffer()
	b.PutMarker(bytecode.IFEQ, bytecode.Int(0))
	if pending := b.PendingMarkers(); len(pending) != 1 {
		t.Fatalf("pending markers = %d, want 1", len(pending))
	}
}

func TestResetDiscardsTrailingCode(t *testing.T) {
	b := NewBuffer()
	b.Emit(bytecode.NOP)
	mark := b.Mark()
	b.Emit(bytecode.NOP)
	b.PutMarker(bytecode.GOTO, bytecode.Int(0))
	b.Reset(mark)

	if b.Mark() != mark {
		t.Fatalf("Mark() after Reset = %d, want %d", b.Mark(), mark)
	}
	if len(b.PendingMarkers()) != 0 {
		t.Fatalf("Reset should have discarded the truncated marker")
	}
}
