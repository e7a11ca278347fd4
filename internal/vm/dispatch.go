package vm

import (
	"math"

	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/symtab"
)

// dispatch executes one instruction, advancing m.IP (except on branches,
// which set it directly). It returns (true, result, nil) once the
// outermost activation returns or HALT executes.
func (m *Machine) dispatch(in bytecode.Instruction) (bool, Value, error) {
	next := m.IP + 1

	switch in.Op {
	case bytecode.NOP:
		// no-op

	case bytecode.HALT:
		var result Value
		if m.SP > m.base() {
			result = m.pop()
		}
		return true, result, nil

	// --- constants ---
	case bytecode.ICONST:
		if err := m.push(in.Arg0); err != nil {
			return false, Value{}, err
		}
	case bytecode.LCONST, bytecode.FCONST, bytecode.DCONST:
		if err := m.push(in.Arg0); err != nil {
			return false, Value{}, err
		}

	// --- local loads/stores, offset relative to the current frame base ---
	case bytecode.ILOAD, bytecode.LLOAD, bytecode.FLOAD, bytecode.DLOAD,
		bytecode.ALOAD, bytecode.PLOAD:
		idx := m.base() + int(in.Arg0.I)
		if err := m.push(m.Stack[idx]); err != nil {
			return false, Value{}, err
		}
	case bytecode.ISTORE, bytecode.LSTORE, bytecode.FSTORE, bytecode.DSTORE,
		bytecode.ASTORE, bytecode.PSTORE:
		idx := m.base() + int(in.Arg0.I)
		m.Stack[idx] = m.pop()

	// --- integer arithmetic ---
	case bytecode.IADD:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I + b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.ISUB:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I - b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.IMUL:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I * b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.IDIV:
		b, a := m.pop(), m.pop()
		if b.I == 0 {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeDivisionByZero, m.IP)
		}
		if err := m.push(bytecode.Int(a.I / b.I)); err != nil { // Go / truncates toward zero
			return false, Value{}, err
		}
	case bytecode.IREM:
		b, a := m.pop(), m.pop()
		if b.I == 0 {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeDivisionByZero, m.IP)
		}
		if err := m.push(bytecode.Int(a.I % b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.INEG:
		a := m.pop()
		if err := m.push(bytecode.Int(-a.I)); err != nil {
			return false, Value{}, err
		}

	// --- long arithmetic ---
	case bytecode.LADD:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Long(a.L + b.L)); err != nil {
			return false, Value{}, err
		}
	case bytecode.LSUB:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Long(a.L - b.L)); err != nil {
			return false, Value{}, err
		}
	case bytecode.LMUL:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Long(a.L * b.L)); err != nil {
			return false, Value{}, err
		}
	case bytecode.LDIV:
		b, a := m.pop(), m.pop()
		if b.L == 0 {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeDivisionByZero, m.IP)
		}
		if err := m.push(bytecode.Long(a.L / b.L)); err != nil {
			return false, Value{}, err
		}
	case bytecode.LREM:
		b, a := m.pop(), m.pop()
		if b.L == 0 {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeDivisionByZero, m.IP)
		}
		if err := m.push(bytecode.Long(a.L % b.L)); err != nil {
			return false, Value{}, err
		}
	case bytecode.LNEG:
		a := m.pop()
		if err := m.push(bytecode.Long(-a.L)); err != nil {
			return false, Value{}, err
		}

	// --- float arithmetic (IEEE-754, division by zero yields Inf/NaN) ---
	case bytecode.FADD:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Float(a.F + b.F)); err != nil {
			return false, Value{}, err
		}
	case bytecode.FSUB:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Float(a.F - b.F)); err != nil {
			return false, Value{}, err
		}
	case bytecode.FMUL:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Float(a.F * b.F)); err != nil {
			return false, Value{}, err
		}
	case bytecode.FDIV:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Float(a.F / b.F)); err != nil {
			return false, Value{}, err
		}
	case bytecode.FREM:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Float(float32(math.Mod(float64(a.F), float64(b.F))))); err != nil {
			return false, Value{}, err
		}
	case bytecode.FNEG:
		a := m.pop()
		if err := m.push(bytecode.Float(-a.F)); err != nil {
			return false, Value{}, err
		}

	// --- double arithmetic ---
	case bytecode.DADD:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Double(a.D + b.D)); err != nil {
			return false, Value{}, err
		}
	case bytecode.DSUB:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Double(a.D - b.D)); err != nil {
			return false, Value{}, err
		}
	case bytecode.DMUL:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Double(a.D * b.D)); err != nil {
			return false, Value{}, err
		}
	case bytecode.DDIV:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Double(a.D / b.D)); err != nil {
			return false, Value{}, err
		}
	case bytecode.DREM:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Double(math.Mod(a.D, b.D))); err != nil {
			return false, Value{}, err
		}
	case bytecode.DNEG:
		a := m.pop()
		if err := m.push(bytecode.Double(-a.D)); err != nil {
			return false, Value{}, err
		}

	// --- bitwise ---
	case bytecode.IAND:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I & b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.IOR:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I | b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.IXOR:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I ^ b.I)); err != nil {
			return false, Value{}, err
		}
	case bytecode.ISHL:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I << uint(b.I&31))); err != nil {
			return false, Value{}, err
		}
	case bytecode.ISHR:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(a.I >> uint(b.I&31))); err != nil { // arithmetic shift
			return false, Value{}, err
		}
	case bytecode.IUSHR:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(int32(uint32(a.I) >> uint(b.I&31)))); err != nil { // logical shift
			return false, Value{}, err
		}
	case bytecode.INOT:
		a := m.pop()
		if err := m.push(bytecode.Int(^a.I)); err != nil {
			return false, Value{}, err
		}

	// --- conversions ---
	case bytecode.I2L:
		a := m.pop()
		if err := m.push(bytecode.Long(int64(a.I))); err != nil {
			return false, Value{}, err
		}
	case bytecode.I2F:
		a := m.pop()
		if err := m.push(bytecode.Float(float32(a.I))); err != nil {
			return false, Value{}, err
		}
	case bytecode.I2D:
		a := m.pop()
		if err := m.push(bytecode.Double(float64(a.I))); err != nil {
			return false, Value{}, err
		}
	case bytecode.L2I:
		a := m.pop()
		if err := m.push(bytecode.Int(int32(a.L))); err != nil {
			return false, Value{}, err
		}
	case bytecode.L2F:
		a := m.pop()
		if err := m.push(bytecode.Float(float32(a.L))); err != nil {
			return false, Value{}, err
		}
	case bytecode.L2D:
		a := m.pop()
		if err := m.push(bytecode.Double(float64(a.L))); err != nil {
			return false, Value{}, err
		}
	case bytecode.F2I:
		a := m.pop()
		if err := m.push(bytecode.Int(int32(a.F))); err != nil {
			return false, Value{}, err
		}
	case bytecode.F2L:
		a := m.pop()
		if err := m.push(bytecode.Long(int64(a.F))); err != nil {
			return false, Value{}, err
		}
	case bytecode.F2D:
		a := m.pop()
		if err := m.push(bytecode.Double(float64(a.F))); err != nil {
			return false, Value{}, err
		}
	case bytecode.D2I:
		a := m.pop()
		if err := m.push(bytecode.Int(int32(a.D))); err != nil {
			return false, Value{}, err
		}
	case bytecode.D2L:
		a := m.pop()
		if err := m.push(bytecode.Long(int64(a.D))); err != nil {
			return false, Value{}, err
		}
	case bytecode.D2F:
		a := m.pop()
		if err := m.push(bytecode.Float(float32(a.D))); err != nil {
			return false, Value{}, err
		}
	case bytecode.I2B:
		// Booleans are represented as 0/1 ints throughout the VM so they
		// compose with IAND/IOR/IXOR the same way the parser's &&/||/!
		// lowering expects; I2B only normalizes a nonzero value to 1.
		a := m.pop()
		v := int32(0)
		if a.I != 0 {
			v = 1
		}
		if err := m.push(bytecode.Int(v)); err != nil {
			return false, Value{}, err
		}
	case bytecode.I2C:
		a := m.pop()
		if err := m.push(bytecode.Char(byte(a.I))); err != nil {
			return false, Value{}, err
		}
	case bytecode.I2S:
		a := m.pop()
		if err := m.push(bytecode.Int(int32(int16(a.I)))); err != nil {
			return false, Value{}, err
		}

	// --- comparisons: push -1/0/1 ---
	case bytecode.ICMP:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(cmpInt(a.I, b.I))); err != nil {
			return false, Value{}, err
		}
	case bytecode.LCMP:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(cmpLong(a.L, b.L))); err != nil {
			return false, Value{}, err
		}
	case bytecode.FCMP:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(cmpFloat(a.F, b.F))); err != nil {
			return false, Value{}, err
		}
	case bytecode.DCMP:
		b, a := m.pop(), m.pop()
		if err := m.push(bytecode.Int(cmpDouble(a.D, b.D))); err != nil {
			return false, Value{}, err
		}

	// --- conditional branches on a comparison result / zero test ---
	case bytecode.IFEQ:
		a := m.pop()
		if a.I == 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IFNE:
		a := m.pop()
		if a.I != 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IFLT:
		a := m.pop()
		if a.I < 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IFGE:
		a := m.pop()
		if a.I >= 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IFGT:
		a := m.pop()
		if a.I > 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IFLE:
		a := m.pop()
		if a.I <= 0 {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}
	case bytecode.IF_ICMPEQ, bytecode.IF_ICMPNE, bytecode.IF_ICMPLT,
		bytecode.IF_ICMPGE, bytecode.IF_ICMPGT, bytecode.IF_ICMPLE:
		b, a := m.pop(), m.pop()
		c := cmpInt(a.I, b.I)
		take := false
		switch in.Op {
		case bytecode.IF_ICMPEQ:
			take = c == 0
		case bytecode.IF_ICMPNE:
			take = c != 0
		case bytecode.IF_ICMPLT:
			take = c < 0
		case bytecode.IF_ICMPGE:
			take = c >= 0
		case bytecode.IF_ICMPGT:
			take = c > 0
		case bytecode.IF_ICMPLE:
			take = c <= 0
		}
		if take {
			m.IP = int(in.Arg0.I)
			return false, Value{}, nil
		}

	// --- unconditional control ---
	case bytecode.GOTO, bytecode.GOTO_W:
		m.IP = int(in.Arg0.I)
		return false, Value{}, nil

	case bytecode.CALL:
		target, _ := in.Arg0.Sym.(*symtab.Node)
		if err := m.EnterFunction(target, next); err != nil {
			return false, Value{}, err
		}
		return false, Value{}, nil

	case bytecode.RETURN, bytecode.IRETURN, bytecode.LRETURN,
		bytecode.FRETURN, bytecode.DRETURN:
		var result Value
		hasResult := in.Op != bytecode.RETURN
		if hasResult {
			result = m.pop()
		}
		frame := m.Frames[len(m.Frames)-1]
		m.Frames = m.Frames[:len(m.Frames)-1]
		m.SP = frame.Base
		// The dying activation's own allocations are released now, unless
		// the allocation being released is the very value being returned —
		// that one's ownership passes to the caller instead.
		for _, ptr := range frame.Allocs {
			if hasResult && result.Kind == bytecode.VPointer && result.Ptr == ptr {
				if len(m.Frames) > 0 {
					top := len(m.Frames) - 1
					m.Frames[top].Allocs = append(m.Frames[top].Allocs, ptr)
				}
				continue
			}
			m.Heap.Release(ptr)
		}
		if len(m.Frames) == 0 || frame.RetAddr < 0 {
			return true, result, nil
		}
		m.IP = frame.RetAddr
		if hasResult {
			if err := m.push(result); err != nil {
				return false, Value{}, err
			}
		}
		return false, Value{}, nil

	// --- arrays, bounds-checked against the heap map ---
	case bytecode.NEWARRAY, bytecode.ANEWARRAY:
		count := m.pop()
		elemSize := int(in.Arg0.I)
		ptr := m.Heap.Alloc(int(count.I), elemSize, 0, int(in.Arg1.I))
		if len(m.Frames) > 0 {
			top := len(m.Frames) - 1
			m.Frames[top].Allocs = append(m.Frames[top].Allocs, ptr)
		}
		if err := m.push(bytecode.Pointer(ptr)); err != nil {
			return false, Value{}, err
		}
	case bytecode.IALOAD, bytecode.LALOAD, bytecode.FALOAD, bytecode.DALOAD,
		bytecode.AALOAD, bytecode.CALOAD:
		idx, ref := m.pop(), m.pop()
		alloc, ok := m.Heap.Get(ref.Ptr)
		if !ok || idx.I < 0 || int(idx.I) >= len(alloc.Buffer) {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeValueOutOfRange, m.IP)
		}
		if err := m.push(alloc.Buffer[idx.I]); err != nil {
			return false, Value{}, err
		}
	case bytecode.IASTORE, bytecode.LASTORE, bytecode.FASTORE, bytecode.DASTORE,
		bytecode.AASTORE, bytecode.CASTORE:
		val, idx, ref := m.pop(), m.pop(), m.pop()
		alloc, ok := m.Heap.Get(ref.Ptr)
		if !ok || idx.I < 0 || int(idx.I) >= len(alloc.Buffer) {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeValueOutOfRange, m.IP)
		}
		alloc.Buffer[idx.I] = val
	case bytecode.ARRAYLENGTH:
		ref := m.pop()
		alloc, ok := m.Heap.Get(ref.Ptr)
		if !ok {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeValueOutOfRange, m.IP)
		}
		if err := m.push(bytecode.Int(int32(len(alloc.Buffer)))); err != nil {
			return false, Value{}, err
		}

	// --- fields, keyed by a pre-resolved offset into the record buffer ---
	case bytecode.GETFIELD:
		ref := m.pop()
		alloc, ok := m.Heap.Get(ref.Ptr)
		if !ok || int(in.Arg0.I) >= len(alloc.Buffer) {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeValueOutOfRange, m.IP)
		}
		if err := m.push(alloc.Buffer[in.Arg0.I]); err != nil {
			return false, Value{}, err
		}
	case bytecode.PUTFIELD:
		val, ref := m.pop(), m.pop()
		alloc, ok := m.Heap.Get(ref.Ptr)
		if !ok || int(in.Arg0.I) >= len(alloc.Buffer) {
			return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeValueOutOfRange, m.IP)
		}
		alloc.Buffer[in.Arg0.I] = val

	// --- stack shaping ---
	case bytecode.DUP:
		if err := m.push(m.peek(0)); err != nil {
			return false, Value{}, err
		}
	case bytecode.POP:
		m.pop()
	case bytecode.SWAP:
		b, a := m.pop(), m.pop()
		_ = m.push(b)
		_ = m.push(a)

	// --- misc ---
	case bytecode.ATHROW:
		return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeInvalidUserInput, m.IP)
	case bytecode.MONITORENTER, bytecode.MONITOREXIT, bytecode.INSTANCEOF, bytecode.CHECKCAST:
		// reserved for a future object model; no-op in this VM

	default:
		return false, Value{}, m.Diag.Runtime(diagnostics.RuntimeUnimplementedRuntimeFeature, m.IP)
	}

	m.IP = next
	return false, Value{}, nil
}

func cmpInt(a, b int32) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpLong(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float32) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpDouble(a, b float64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
