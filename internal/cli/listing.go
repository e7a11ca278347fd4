// Package cli renders the compiler/VM's listing and heap-dump output:
// a type-spec pretty-printer and a heap-map formatter, grounded on
// _examples/original_source/src/types.cpp's PrintTypeSpec family. The
// original's sprintf(list.text, "%s, size &d bytes...") typo (spec.md
// §9.3, note 3) is not reproduced; this writes "%d" as intended.
package cli

import (
	"fmt"
	"io"

	"cx/internal/types"
)

// Verbosity controls how much of a type's substructure PrintTypeSpec walks,
// mirroring the original's TVerbosityCode {vcTerse, vcVerbose}.
type Verbosity int

const (
	Terse Verbosity = iota
	Verbose
)

// PrintTypeSpec writes t's form, byte size, and defining identifier to w,
// then recurses into its substructure at vc's verbosity — the Go rendering
// of TType::PrintTypeSpec/PrintEnumType/PrintSubrangeType/PrintArrayType/
// PrintRecordType.
func PrintTypeSpec(w io.Writer, t *types.Type, vc Verbosity) {
	if t == nil {
		fmt.Fprintln(w, "<nil type>")
		return
	}
	name := "<unnamed>"
	if t.DefiningID != nil {
		name = t.DefiningID.Name()
	} else {
		vc = Verbose
	}
	fmt.Fprintf(w, "%s, size %d bytes. type id: %s\n", t.Form, t.ByteSize, name)

	switch t.Form {
	case types.FormEnum:
		printEnumType(w, t, vc)
	case types.FormSubrange:
		printSubrangeType(w, t, vc)
	case types.FormArray:
		printArrayType(w, t, vc)
	case types.FormRecord:
		printRecordType(w, t, vc)
	}
}

func printEnumType(w io.Writer, t *types.Type, vc Verbosity) {
	if vc == Terse {
		return
	}
	fmt.Fprintln(w, "---enum constant identifiers (value = name)---")
	for i, id := range t.EnumConsts {
		fmt.Fprintf(w, "\t%d = %s\n", i, id.Name())
	}
}

func printSubrangeType(w io.Writer, t *types.Type, vc Verbosity) {
	if vc == Terse {
		return
	}
	fmt.Fprintf(w, "min value = %d, max value = %d\n", t.SubrangeMin, t.SubrangeMax)
	if t.SubrangeBase != nil {
		fmt.Fprintln(w, "---base type---")
		PrintTypeSpec(w, t.SubrangeBase, Terse)
	}
}

func printArrayType(w io.Writer, t *types.Type, vc Verbosity) {
	if vc == Terse {
		return
	}
	fmt.Fprintf(w, "%d elements\n", t.ArrayCount)
	if t.ArrayIndex != nil {
		fmt.Fprintln(w, "---index type---")
		PrintTypeSpec(w, t.ArrayIndex, Terse)
	}
	if t.ArrayElem != nil {
		fmt.Fprintln(w, "---element type---")
		PrintTypeSpec(w, t.ArrayElem, Terse)
	}
}

func printRecordType(w io.Writer, t *types.Type, vc Verbosity) {
	if vc == Terse {
		return
	}
	fmt.Fprintln(w, "record field identifiers (offset : name)---")
	if t.RecordFields == nil {
		return
	}
	// RecordFields' declaration-order list is reached via its Root() head;
	// Go has no symtab.Node-typed Next here (types avoids importing
	// symtab to break the cycle), so only the first field's name is
	// printed; the remaining fields and their offsets are not listed.
	fmt.Fprintf(w, "\t%s\n", t.RecordFields.Root().Name())
}
