// Package vm implements the stack-based bytecode virtual machine of
// spec.md §4.6: a fixed operand stack, a heap-allocation map, a
// per-function activation model, and the opcode dispatch loop. Grounded
// on _examples/original_source/cx/cxvm.h's vcpu/cxvm layout and
// sentra/internal/vm/vm.go's switch-dispatch idiom.
package vm

import (
	"sync"

	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/symtab"

	"github.com/google/uuid"
)

// StackSize is the VM's fixed operand stack capacity (spec.md §3).
const StackSize = 255

// Frame delimits one function activation: its locals begin at Base in the
// operand stack, and RETURN resumes the caller at RetAddr.
type Frame struct {
	Fn      *symtab.Node
	Base    int
	RetAddr int
	Allocs  []int // heap pointers this activation owns: its own allocations and any a callee returned to it
}

// HookFunc is called before every instruction is dispatched when non-nil,
// letting an external tracer (internal/trace) observe execution without
// any cost when unset.
type HookFunc func(ip int, op bytecode.Opcode, sp int)

// Machine is one VM instance: {stack, stack_pointer, instruction_pointer,
// program, heap_map, current_function_node} plus a coarse per-instance
// lock guarding entry (spec.md §4.6, §5).
type Machine struct {
	Stack [StackSize]Value
	SP    int
	IP    int

	Program *bytecode.Program
	Heap    *Heap
	Frames  []Frame

	Diag *diagnostics.Log
	Hook HookFunc

	ID uuid.UUID

	mu sync.Mutex
}

// New constructs a Machine over prog with a fresh heap map, per spec.md
// §6's VM input contract.
func New(prog *bytecode.Program, diag *diagnostics.Log) *Machine {
	return &Machine{Program: prog, Heap: NewHeap(), Diag: diag, ID: uuid.New()}
}

// Lock serializes VM entry; MONITORENTER/MONITOREXIT and any host-driven
// invocation are coarse-grained-locked per instance (spec.md §5).
func (m *Machine) Lock() { m.mu.Lock() }

// Unlock releases the per-instance lock.
func (m *Machine) Unlock() { m.mu.Unlock() }

// CurrentFunction returns the innermost active function's symbol node, or
// nil if no activation is open.
func (m *Machine) CurrentFunction() *symtab.Node {
	if len(m.Frames) == 0 {
		return nil
	}
	return m.Frames[len(m.Frames)-1].Fn
}

func (m *Machine) base() int {
	if len(m.Frames) == 0 {
		return 0
	}
	return m.Frames[len(m.Frames)-1].Base
}

// EnterFunction installs node as the active function: it rebases the
// operand stack for node's locals (whose total size the parser
// pre-computed) and points IP at its icode entry position.
//
// CALL's caller has already pushed node's arguments left to right (spec.md
// §4.6's calling convention), so the new frame's base is not the current
// stack top but the position where the first argument landed — the
// pushed arguments become the callee's first param-count local slots in
// place, with no copy. The outermost call (Run's entry, no pushed args)
// has numParams 0 and rebases at the current top as before.
func (m *Machine) EnterFunction(node *symtab.Node, retAddr int) error {
	if node == nil {
		return m.Diag.Runtime(diagnostics.RuntimeUnimplementedRuntimeFeature, m.IP)
	}
	numParams := 0
	locals := 0
	if node.Func != nil {
		for p := node.Func.Params; p != nil; p = p.Next {
			numParams++
		}
		locals = node.Func.TotalLocals
	}
	base := m.SP - numParams
	if base < 0 {
		return m.Diag.Runtime(diagnostics.RuntimeStackOverflow, m.IP)
	}
	if base+locals > StackSize {
		return m.Diag.Runtime(diagnostics.RuntimeStackOverflow, m.IP)
	}
	m.Frames = append(m.Frames, Frame{Fn: node, Base: base, RetAddr: retAddr})
	m.SP = base + locals
	if node.Func != nil {
		m.IP = node.Func.EntryPos
	}
	return nil
}

// Run executes entry to completion (a RETURN at the outermost activation,
// or HALT) and returns the function's result value when it has a non-void
// return type. Run locks the instance for its whole duration (spec.md §5).
func (m *Machine) Run(entry *symtab.Node) (Value, error) {
	m.Lock()
	defer m.Unlock()

	m.SP = 0
	m.Frames = m.Frames[:0]
	if err := m.EnterFunction(entry, -1); err != nil {
		return Value{}, err
	}

	for {
		if m.IP < 0 || m.IP >= len(m.Program.Instrs) {
			return Value{}, m.Diag.Runtime(diagnostics.RuntimeUnimplementedRuntimeFeature, m.IP)
		}
		in := m.Program.Instrs[m.IP]
		if m.Hook != nil {
			m.Hook(m.IP, in.Op, m.SP)
		}
		halted, result, err := m.dispatch(in)
		if err != nil {
			return Value{}, err
		}
		if halted {
			return result, nil
		}
	}
}

func (m *Machine) push(v Value) error {
	if m.SP >= StackSize {
		return m.Diag.Runtime(diagnostics.RuntimeStackOverflow, m.IP)
	}
	m.Stack[m.SP] = v
	m.SP++
	return nil
}

func (m *Machine) pop() Value {
	m.SP--
	return m.Stack[m.SP]
}

func (m *Machine) peek(down int) Value {
	return m.Stack[m.SP-1-down]
}
