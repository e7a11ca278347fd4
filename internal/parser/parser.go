// Package parser is the single-pass recursive-descent front end of
// spec.md §4.5: while consuming tokens it simultaneously builds the
// symbol table, resolves and checks types, and emits icode with
// forward-reference location markers. Grounded in control flow on
// _examples/original_source/include/parser.h and
// src/parse_statement.cpp/src/parse_directive.cpp, in Go idiom on
// sentra-language-sentra/internal/parser's token-consumption style.
package parser

import (
	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/icode"
	"cx/internal/lexer"
	"cx/internal/symtab"
	"cx/internal/token"
	"cx/internal/types"
)

// maxDepth bounds recursive-descent recursion (spec.md §9 "Deeply
// recursive parser"); exceeding it aborts with nesting_too_deep.
const maxDepth = 512

// Predefined carries the parser's wired-up base types alongside the
// distinguished enum constant nodes true/false (spec.md §4.3).
type Predefined struct {
	types.Predefined
	False *symtab.Node
	True  *symtab.Node
}

// Result is everything the VM needs to execute the translated program
// (spec.md §6 "VM input").
type Result struct {
	Program *bytecode.Program
	Entry   *symtab.Node
	Global  *symtab.Table
	Pre     *Predefined
}

// Parser holds all translation state: the scanner, current lookahead, the
// scope stack, the icode buffer, the predefined types, and the recursion
// depth counter. Per spec.md §9's "translation context" note, one Parser
// value is the whole of the compiler's mutable global state — there are
// no package-level singletons.
type Parser struct {
	scan *lexer.Scanner
	tok  token.Token

	diag   *diagnostics.Log
	scopes *symtab.ScopeStack
	buf    *icode.Buffer
	pre    *Predefined

	depth       int
	libraryMode bool
	fn          *symtab.Node // function currently being parsed, if any
	localOff    int
	loops       []*breakTarget // enclosing loop/switch break targets, innermost last

	seenInclude map[string]bool
	includeDir  string
}

// New constructs a Parser over source, ready to translate a top-level
// program. diag collects lex/parse diagnostics; includeDir is CX_STDLIB's
// resolved value (possibly empty).
func New(source string, diag *diagnostics.Log, includeDir string) *Parser {
	p := &Parser{
		diag:        diag,
		scopes:      symtab.NewScopeStack(),
		buf:         icode.NewBuffer(),
		seenInclude: make(map[string]bool),
		includeDir:  includeDir,
	}
	p.scan = lexer.New(source, diag)
	p.pre = newPredefined(p.scopes.Global())
	p.advance()
	return p
}

// newLibraryParser constructs a nested Parser sharing an outer Parser's
// global scope, icode buffer, and predefined types, for #include's
// "library mode" (spec.md §4.5): declarations merge into the same global
// table and no entry function is recorded.
func newLibraryParser(outer *Parser, source string) *Parser {
	p := &Parser{
		diag:        outer.diag,
		scopes:      outer.scopes,
		buf:         outer.buf,
		pre:         outer.pre,
		libraryMode: true,
		seenInclude: outer.seenInclude,
		includeDir:  outer.includeDir,
	}
	p.scan = lexer.New(source, outer.diag)
	p.advance()
	return p
}

func newPredefined(global *symtab.Table) *Predefined {
	p := &Predefined{}
	intNode, _ := global.EnterNew("int", symtab.TypeName)
	realNode, _ := global.EnterNew("float", symtab.TypeName)
	boolNode, _ := global.EnterNew("bool", symtab.TypeName)
	charNode, _ := global.EnterNew("char", symtab.TypeName)

	p.Integer = types.NewScalar(types.ScalarInteger, 4, intNode)
	p.Real = types.NewScalar(types.ScalarReal, 8, realNode)
	p.Boolean = types.NewScalar(types.ScalarBoolean, 1, boolNode)
	p.Char = types.NewScalar(types.ScalarChar, 1, charNode)
	p.Dummy = types.NewScalar(types.ScalarInteger, 0, nil)

	types.SetType(&intNode.Type, p.Integer)
	types.SetType(&realNode.Type, p.Real)
	types.SetType(&boolNode.Type, p.Boolean)
	types.SetType(&charNode.Type, p.Char)

	falseNode, _ := global.EnterNew("false", symtab.Constant)
	trueNode, _ := global.EnterNew("true", symtab.Constant)
	falseNode.ConstInt, trueNode.ConstInt = 0, 1
	falseNode.Next = trueNode
	types.SetType(&falseNode.Type, p.Boolean)
	types.SetType(&trueNode.Type, p.Boolean)
	p.Boolean.EnumConsts = []types.DefiningNode{falseNode, trueNode}
	p.Boolean.EnumMax = 1
	p.False, p.True = falseNode, trueNode

	return p
}

func (p *Parser) advance() {
	p.tok = p.scan.Get()
}

// advanceAppend consumes the current token and records its source line as
// the line tag for the instructions emitted next; the token itself is not
// stored, since icode holds only the instructions the parser emits. Parser
// methods call this for any token that is semantically part of the
// translated program, and plain advance for structural tokens.
func (p *Parser) advanceAppend() token.Token {
	t := p.tok
	p.buf.SetLine(t.Line)
	p.advance()
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.tok.Kind == k }

func (p *Parser) accept(k token.Kind) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	return false
}

// expect consumes k, reporting code if the lookahead doesn't match. On a
// mismatch it does not advance; compound's no-progress guard and the
// callers' resync calls keep the parser moving forward.
func (p *Parser) expect(k token.Kind, code diagnostics.ErrorCode) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	p.error(code)
	return false
}

func (p *Parser) error(code diagnostics.ErrorCode) {
	if p.diag.Parse(code, p.tok.Line) {
		panic(abortSignal{diagnostics.AbortTooManySyntaxErrors})
	}
}

// abortSignal unwinds the recursive-descent call stack to Translate once
// the error threshold is exceeded or recursion goes too deep — the Go
// idiom for the original's longjmp-style abort (spec.md §7).
type abortSignal struct {
	code diagnostics.AbortCode
}

func (p *Parser) enter() {
	p.depth++
	if p.depth > maxDepth {
		p.error(diagnostics.ErrNestingTooDeep)
		panic(abortSignal{diagnostics.AbortNestingTooDeep})
	}
}

func (p *Parser) leave() { p.depth-- }

// resync advances past the current token until it sees a member of sets,
// or EOF, per spec.md §4.5's error recovery discipline.
func (p *Parser) resync(sets ...map[token.Kind]bool) {
	for !p.at(token.EOF) {
		for _, set := range sets {
			if set[p.tok.Kind] {
				return
			}
		}
		p.advance()
	}
}

var declStart = map[token.Kind]bool{
	token.KwInt: true, token.KwFloat: true, token.KwBool: true, token.KwChar: true,
	token.KwConst: true, token.KwEnum: true,
}

var stmtStart = map[token.Kind]bool{
	token.LBrace: true, token.KwIf: true, token.KwWhile: true, token.KwDo: true,
	token.KwFor: true, token.KwSwitch: true, token.KwReturn: true, token.KwBreak: true,
	token.Semicolon: true, token.Pound: true, token.Ident: true,
}

var stmtFollow = map[token.Kind]bool{
	token.Semicolon: true, token.RBrace: true,
}

// Translate runs the whole program grammar over source and returns the
// assembled VM input, or a translation error (always wrapping a
// *diagnostics.AbortError, reachable with errors.As).
func Translate(source string, diag *diagnostics.Log, includeDir string) (res *Result, err error) {
	p := New(source, diag, includeDir)
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(abortSignal); ok {
				err = diag.Abort(sig.code)
				return
			}
			panic(r)
		}
	}()
	entry := p.program()
	if len(p.buf.PendingMarkers()) > 0 {
		err = diag.Abort(diagnostics.AbortCodeSegmentOverflow)
		return nil, err
	}
	return &Result{Program: p.buf.Prog, Entry: entry, Global: p.scopes.Global(), Pre: p.pre}, nil
}

// program implements `program := { declaration | statement }`, returning
// the symbol node of the function named "main" if one was declared.
func (p *Parser) program() *symtab.Node {
	for !p.at(token.EOF) {
		p.topLevel()
	}
	return p.scopes.Global().Search("main")
}

func (p *Parser) topLevel() {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortSignal); ok {
				panic(r)
			}
		}
	}()
	switch {
	case p.at(token.Pound):
		p.directive()
	case declStart[p.tok.Kind]:
		p.declaration()
	case p.libraryMode:
		// Library files only declare (spec.md §4.5): a bare statement at
		// a library's top level has nowhere to run, since library mode
		// records no entry function.
		p.error(diagnostics.ErrUnimplementedFeature)
		p.resync(declStart, map[token.Kind]bool{token.Pound: true})
	default:
		p.statement()
	}
}
