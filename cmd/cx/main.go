// Command cx translates a Cx source file and runs it on the bytecode VM
// (spec.md §6 "CLI surface"). Flags control listing verbosity and an
// icode dump; neither is part of the core spec, so both default off.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"cx/internal/bytecode"
	"cx/internal/cli"
	"cx/internal/diagnostics"
	"cx/internal/includes"
	"cx/internal/parser"
	"cx/internal/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("cx", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose listing (print the symbol/type table before running)")
	dumpIcode := fs.Bool("dump-icode", false, "print the translated instruction vector before running")
	noRun := fs.Bool("c", false, "translate only; do not execute the program")
	if err := fs.Parse(args); err != nil {
		return int(diagnostics.AbortInvalidCommandlineArgs)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cx [-v] [-dump-icode] [-c] <source-file>")
		return int(diagnostics.AbortInvalidCommandlineArgs)
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cx: %v\n", err)
		return int(diagnostics.AbortSourceFileOpenFailed)
	}

	diag := diagnostics.NewLog()
	res, err := parser.Translate(string(source), diag, includes.Dir())
	if err != nil {
		var abortErr *diagnostics.AbortError
		if errors.As(err, &abortErr) {
			fmt.Fprintf(os.Stderr, "cx: %v\n", abortErr)
			return int(abortErr.Code)
		}
		fmt.Fprintf(os.Stderr, "cx: %v\n", err)
		return int(diagnostics.AbortUnimplementedFeature)
	}

	if *verbose {
		printListing(res)
	}
	if *dumpIcode {
		printIcode(res.Program)
	}
	if *noRun {
		return 0
	}

	if res.Entry == nil {
		fmt.Fprintln(os.Stderr, "cx: no main function declared")
		return int(diagnostics.AbortUnimplementedFeature)
	}

	m := vm.New(res.Program, diag)
	result, err := m.Run(res.Entry)
	if err != nil {
		var rtErr *diagnostics.RuntimeError
		if errors.As(err, &rtErr) {
			fmt.Fprintf(os.Stderr, "cx: %v\n", rtErr)
			return int(diagnostics.AbortRuntimeError)
		}
		fmt.Fprintf(os.Stderr, "cx: %v\n", err)
		return int(diagnostics.AbortRuntimeError)
	}

	if *verbose {
		cli.DumpHeap(os.Stdout, m.Heap)
	}
	_ = result
	return 0
}

func printListing(res *parser.Result) {
	for n := res.Global.Head(); n != nil; n = n.Next {
		fmt.Printf("--- %s ---\n", n.Name())
		cli.PrintTypeSpec(os.Stdout, n.Type, cli.Verbose)
	}
}

func printIcode(p *bytecode.Program) {
	for i, in := range p.Instrs {
		fmt.Printf("%4d  %-12s %s\n", i, in.Op, formatArgs(in))
	}
}

func formatArgs(in bytecode.Instruction) string {
	if in.Arg0.Kind == bytecode.VNone {
		return ""
	}
	return fmt.Sprintf("%v", in.Arg0)
}
