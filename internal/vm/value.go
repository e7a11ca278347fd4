package vm

import "cx/internal/bytecode"

// Value is the VM's operand-stack cell; it is exactly bytecode.Value, the
// tagged union spec.md §3 describes as shared between icode and the VM.
type Value = bytecode.Value
