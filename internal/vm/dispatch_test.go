package vm

import (
	"errors"
	"testing"

	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/symtab"

	"github.com/kr/pretty"
)

func entryNode(locals int, instrs ...bytecode.Instruction) (*symtab.Node, *bytecode.Program) {
	prog := &bytecode.Program{Instrs: instrs}
	node := &symtab.Node{Kind: symtab.Function, Func: &symtab.FuncInfo{TotalLocals: locals, EntryPos: 0}}
	return node, prog
}

// TestArithmeticPrecedence exercises 2+3*4 == 14 (spec.md §8 scenario).
func TestArithmeticPrecedence(t *testing.T) {
	node, prog := entryNode(0,
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(2)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(3)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(4)},
		bytecode.Instruction{Op: bytecode.IMUL},
		bytecode.Instruction{Op: bytecode.IADD},
		bytecode.Instruction{Op: bytecode.IRETURN},
	)
	m := New(prog, diagnostics.NewLog())
	result, err := m.Run(node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.I != 14 {
		t.Fatalf("2+3*4 = %d, want 14\ndiff: %s", result.I, pretty.Sprint(result))
	}
}

// TestStackBalanceAcrossCall is spec.md §8 universal property 4: the
// operand stack pointer at RETURN equals its value at enter_function plus
// one (this callee has a non-void return type).
func TestStackBalanceAcrossCall(t *testing.T) {
	// callee: ILOAD 0; ILOAD 1; IADD; IRETURN  (2 params, 2 locals)
	calleeInstrs := []bytecode.Instruction{
		{Op: bytecode.ILOAD, Arg0: bytecode.Int(0)},
		{Op: bytecode.ILOAD, Arg0: bytecode.Int(1)},
		{Op: bytecode.IADD},
		{Op: bytecode.IRETURN},
	}
	p0 := &symtab.Node{Kind: symtab.ValueParam, Offset: 0}
	p1 := &symtab.Node{Kind: symtab.ValueParam, Offset: 1}
	p0.Next = p1
	callee := &symtab.Node{Kind: symtab.Function, Func: &symtab.FuncInfo{Params: p0, TotalLocals: 2, EntryPos: 0}}

	// main: ICONST 10; ICONST 32; CALL callee; IRETURN -- but callee's
	// code must live at a distinct region of the same flat program, and
	// main's own locals must not overlap it, so lay main's code after.
	prog := &bytecode.Program{}
	prog.Instrs = append(prog.Instrs, calleeInstrs...)
	mainStart := len(prog.Instrs)
	prog.Instrs = append(prog.Instrs,
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(10)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(32)},
		bytecode.Instruction{Op: bytecode.CALL, Arg0: bytecode.Symbol(callee)},
		bytecode.Instruction{Op: bytecode.IRETURN},
	)
	// main has 0 locals of its own; its two pushed args occupy the callee's
	// param slots once EnterFunction rebases the stack onto them.
	main := &symtab.Node{Kind: symtab.Function, Func: &symtab.FuncInfo{TotalLocals: 0, EntryPos: mainStart}}

	m := New(prog, diagnostics.NewLog())
	result, err := m.Run(main)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.I != 42 {
		t.Fatalf("10+32 via CALL = %d, want 42", result.I)
	}
	if m.SP != 0 {
		t.Fatalf("stack pointer after outermost RETURN = %d, want 0 (unbalanced)", m.SP)
	}
}

// TestDivisionByZero is spec.md §8's listed scenario.
func TestDivisionByZero(t *testing.T) {
	node, prog := entryNode(0,
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(1)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(0)},
		bytecode.Instruction{Op: bytecode.IDIV},
		bytecode.Instruction{Op: bytecode.IRETURN},
	)
	m := New(prog, diagnostics.NewLog())
	_, err := m.Run(node)
	var rtErr *diagnostics.RuntimeError
	if err == nil {
		t.Fatal("expected a division-by-zero runtime error")
	}
	if !errors.As(err, &rtErr) || rtErr.Code != diagnostics.RuntimeDivisionByZero {
		t.Fatalf("got %v, want RuntimeDivisionByZero", err)
	}
}

// TestArrayBoundsViolation is spec.md §8 universal property 5: storing at
// an out-of-range index halts with value_out_of_range without mutating
// the allocation.
func TestArrayBoundsViolation(t *testing.T) {
	node, prog := entryNode(1,
		// a = new int[3]
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(3)},
		bytecode.Instruction{Op: bytecode.NEWARRAY, Arg0: bytecode.Int(4), Arg1: bytecode.Int(0)},
		bytecode.Instruction{Op: bytecode.ASTORE, Arg0: bytecode.Int(0)},
		// a[3] = 1  (valid indices are 0..2)
		bytecode.Instruction{Op: bytecode.ALOAD, Arg0: bytecode.Int(0)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(3)},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(1)},
		bytecode.Instruction{Op: bytecode.IASTORE},
		bytecode.Instruction{Op: bytecode.ICONST, Arg0: bytecode.Int(0)},
		bytecode.Instruction{Op: bytecode.IRETURN},
	)
	m := New(prog, diagnostics.NewLog())
	_, err := m.Run(node)
	var rtErr *diagnostics.RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Code != diagnostics.RuntimeValueOutOfRange {
		t.Fatalf("got %v, want RuntimeValueOutOfRange", err)
	}
	if m.Heap.Len() != 1 {
		t.Fatalf("heap allocation should survive the rejected store, got Len()=%d", m.Heap.Len())
	}
}
