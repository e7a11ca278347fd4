package bytecode

import "fmt"

// ValueKind tags which field of a Value is live.
type ValueKind int

const (
	VNone ValueKind = iota
	VInt
	VLong
	VFloat
	VDouble
	VChar
	VBool
	VPointer
	VSymbol
)

// Value is the tagged union over spec.md §3's value forms: int (i32),
// long (i64), float (f32), double (f64), char (u8), bool, pointer (a raw
// heap address), or a reference to a symbol node (kept as an opaque
// interface{} to avoid a bytecode→symtab import cycle; the vm package
// type-asserts it back to *symtab.Node).
type Value struct {
	Kind ValueKind
	I    int32
	L    int64
	F    float32
	D    float64
	C    byte
	B    bool
	Ptr  int
	Sym  interface{}
}

// String renders whichever field Kind selects, for icode/trace dumps.
func (v Value) String() string {
	switch v.Kind {
	case VInt:
		return fmt.Sprintf("%d", v.I)
	case VLong:
		return fmt.Sprintf("%d", v.L)
	case VFloat:
		return fmt.Sprintf("%g", v.F)
	case VDouble:
		return fmt.Sprintf("%g", v.D)
	case VChar:
		return fmt.Sprintf("%q", v.C)
	case VBool:
		return fmt.Sprintf("%t", v.B)
	case VPointer:
		return fmt.Sprintf("0x%04x", v.Ptr)
	case VSymbol:
		if n, ok := v.Sym.(interface{ Name() string }); ok {
			return n.Name()
		}
		return "<symbol>"
	default:
		return "-"
	}
}

func Int(v int32) Value    { return Value{Kind: VInt, I: v} }
func Long(v int64) Value   { return Value{Kind: VLong, L: v} }
func Float(v float32) Value  { return Value{Kind: VFloat, F: v} }
func Double(v float64) Value { return Value{Kind: VDouble, D: v} }
func Char(v byte) Value    { return Value{Kind: VChar, C: v} }
func Bool(v bool) Value    { return Value{Kind: VBool, B: v} }
func Pointer(v int) Value  { return Value{Kind: VPointer, Ptr: v} }
func Symbol(v interface{}) Value { return Value{Kind: VSymbol, Sym: v} }

// Instruction is one {opcode, arg0, arg1} entry in the flat program vector.
// Branches encode absolute target indices as arg0 (spec.md §3).
type Instruction struct {
	Op   Opcode
	Arg0 Value
	Arg1 Value
	Line int
}

// Program is the append-only, flat instruction vector the VM indexes by
// instruction pointer.
type Program struct {
	Instrs []Instruction
}

// Len is the current tail position — the address a forward branch target
// resolves to once more instructions are appended.
func (p *Program) Len() int { return len(p.Instrs) }

// Emit appends an instruction and returns its index.
func (p *Program) Emit(op Opcode, args ...Value) int {
	in := Instruction{Op: op}
	if len(args) > 0 {
		in.Arg0 = args[0]
	}
	if len(args) > 1 {
		in.Arg1 = args[1]
	}
	p.Instrs = append(p.Instrs, in)
	return len(p.Instrs) - 1
}

// PatchArg0 rewrites the arg0 of an already-emitted instruction — used to
// fix up a branch target once it is known.
func (p *Program) PatchArg0(at int, v Value) {
	p.Instrs[at].Arg0 = v
}
