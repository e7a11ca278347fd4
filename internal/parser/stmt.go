package parser

import (
	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/icode"
	"cx/internal/token"
	"cx/internal/types"
)

// breakTarget is a pending `break` fixup list for the innermost enclosing
// loop or switch, per spec.md §4.5's "loop entry emits a marker so break
// can be fixed up".
type breakTarget struct {
	markers []int
}

// statement implements:
//
//	statement := compound | if | while | do-while | for | switch
//	           | return | break | ';' | expr-stmt | '#' directive
func (p *Parser) statement() {
	p.enter()
	defer p.leave()

	switch {
	case p.at(token.LBrace):
		p.scopes.Push()
		p.compound()
		p.scopes.Pop()
	case p.at(token.KwIf):
		p.ifStmt()
	case p.at(token.KwWhile):
		p.whileStmt()
	case p.at(token.KwDo):
		p.doWhileStmt()
	case p.at(token.KwFor):
		p.forStmt()
	case p.at(token.KwSwitch):
		p.switchStmt()
	case p.at(token.KwReturn):
		p.returnStmt()
	case p.at(token.KwBreak):
		p.breakStmt()
	case p.at(token.Semicolon):
		p.advanceAppend()
	case p.at(token.Pound):
		p.directive()
	default:
		p.exprStmt()
	}
}

// compound implements `'{' { declaration | statement } '}'`. Cx allows
// local declarations anywhere a statement may appear inside a compound,
// matching the grammar's `program` production reused at block scope.
func (p *Parser) compound() {
	p.expect(token.LBrace, diagnostics.ErrInvalidStatement)
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		start := p.tok
		if declStart[p.tok.Kind] {
			p.declaration()
		} else {
			p.statement()
		}
		if p.tok == start {
			// No progress was made (e.g. a malformed token the statement
			// dispatch didn't consume); force advancement so translation
			// cannot loop forever.
			p.advance()
		}
	}
	p.expect(token.RBrace, diagnostics.ErrInvalidStatement)
}

// ifStmt implements `'if' '(' expression ')' statement [ 'else' statement ]`.
// The condition must be boolean (spec.md §4.5).
func (p *Parser) ifStmt() {
	p.advanceAppend() // 'if'
	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	condType := p.expression()
	if !p.pre.BooleanOperands(condType, nil) {
		p.error(diagnostics.ErrIncompatibleTypes)
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)

	elseMarker := p.buf.PutMarker(bytecode.IFEQ, bytecode.Int(0))
	p.statement()
	if p.accept(token.KwElse) {
		doneMarker := p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0))
		p.buf.Fixup(elseMarker)
		p.statement()
		p.buf.Fixup(doneMarker)
	} else {
		p.buf.Fixup(elseMarker)
	}
}

// whileStmt implements `'while' '(' expression ')' statement`.
func (p *Parser) whileStmt() {
	p.advanceAppend() // 'while'
	loopStart := p.buf.Mark()
	bt := &breakTarget{}
	p.loops = append(p.loops, bt)

	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	condType := p.expression()
	if !p.pre.BooleanOperands(condType, nil) {
		p.error(diagnostics.ErrIncompatibleTypes)
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)

	exitMarker := p.buf.PutMarker(bytecode.IFEQ, bytecode.Int(0))
	p.statement()
	p.buf.FixupTo(p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0)), loopStart)
	p.buf.Fixup(exitMarker)

	p.loops = p.loops[:len(p.loops)-1]
	p.fixupBreaks(bt)
}

// doWhileStmt implements `'do' statement 'while' '(' expression ')' ';'`.
func (p *Parser) doWhileStmt() {
	p.advanceAppend() // 'do'
	loopStart := p.buf.Mark()
	bt := &breakTarget{}
	p.loops = append(p.loops, bt)

	p.statement()
	p.expect(token.KwWhile, diagnostics.ErrMissingWhile)
	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	condType := p.expression()
	if !p.pre.BooleanOperands(condType, nil) {
		p.error(diagnostics.ErrIncompatibleTypes)
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)

	p.buf.FixupTo(p.buf.PutMarker(bytecode.IFNE, bytecode.Int(0)), loopStart)

	p.loops = p.loops[:len(p.loops)-1]
	p.fixupBreaks(bt)
}

// forStmt implements `'for' '(' init ';' cond ';' step ')' statement`,
// desugaring to `init; L: if !cond goto end; body; step; goto L; end:`.
// The step clause's tokens appear before the body's in source order, but
// its icode must land after the body's; rather than re-scanning the
// source, step's code is parsed into a scratch icode.Buffer
// and copied into place once the body has been emitted (spliceBuffer),
// with any branch targets it contains shifted by the insertion offset.
func (p *Parser) forStmt() {
	p.advanceAppend() // 'for'
	p.scopes.Push()
	defer p.scopes.Pop()

	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	if declStart[p.tok.Kind] {
		p.declaration()
	} else {
		if !p.at(token.Semicolon) {
			p.expression()
			p.buf.Emit(bytecode.POP)
		}
		p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)
	}

	loopStart := p.buf.Mark()
	bt := &breakTarget{}
	p.loops = append(p.loops, bt)

	var exitMarker int
	hasCond := !p.at(token.Semicolon)
	if hasCond {
		condType := p.expression()
		if !p.pre.BooleanOperands(condType, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		exitMarker = p.buf.PutMarker(bytecode.IFEQ, bytecode.Int(0))
	}
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)

	var stepBuf *icode.Buffer
	if !p.at(token.RParen) {
		stepBuf = icode.NewBuffer()
		mainBuf := p.buf
		p.buf = stepBuf
		p.expression()
		p.buf.Emit(bytecode.POP)
		p.buf = mainBuf
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)

	p.statement() // body

	if stepBuf != nil {
		p.spliceBuffer(stepBuf)
	}
	p.buf.FixupTo(p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0)), loopStart)
	if hasCond {
		p.buf.Fixup(exitMarker)
	}

	p.loops = p.loops[:len(p.loops)-1]
	p.fixupBreaks(bt)
}

// spliceBuffer appends src's instructions to the end of p.buf, rewriting
// any branch opcode's absolute target by the insertion offset.
func (p *Parser) spliceBuffer(src *icode.Buffer) {
	base := int32(p.buf.Mark())
	for _, in := range src.Prog.Instrs {
		if isBranchOp(in.Op) {
			in.Arg0 = bytecode.Int(in.Arg0.I + base)
		}
		p.buf.Prog.Instrs = append(p.buf.Prog.Instrs, in)
	}
}

func isBranchOp(op bytecode.Opcode) bool {
	switch op {
	case bytecode.GOTO, bytecode.GOTO_W, bytecode.JSR,
		bytecode.IFEQ, bytecode.IFNE, bytecode.IFLT, bytecode.IFGE, bytecode.IFGT, bytecode.IFLE,
		bytecode.IF_ICMPEQ, bytecode.IF_ICMPNE, bytecode.IF_ICMPLT, bytecode.IF_ICMPGE,
		bytecode.IF_ICMPGT, bytecode.IF_ICMPLE:
		return true
	}
	return false
}

// switchStmt implements `'switch' '(' expression ')' '{' ('case' const-expr
// ':' { statement } )* ('default' ':' { statement })? '}'`. The control
// expression must be integer, char, or enum (spec.md §4.5).
func (p *Parser) switchStmt() {
	p.advanceAppend() // 'switch'
	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	ctrlType := p.expression()
	if !p.pre.IntegerOperands(ctrlType, ctrlType) && ctrlType.Base() != p.pre.Char &&
		ctrlType.Base().Form != types.FormEnum {
		p.error(diagnostics.ErrInvalidIndexType)
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)
	p.expect(token.LBrace, diagnostics.ErrInvalidStatement)

	bt := &breakTarget{}
	p.loops = append(p.loops, bt)

	// Control value lives in a scratch local; each case compares against
	// it and falls through to the next comparison on mismatch.
	ctrl := p.tempSlot()
	p.buf.Emit(bytecode.ISTORE, bytecode.Int(int32(ctrl)))

	var nextCase int
	haveNext := false
	for p.at(token.KwCase) {
		if haveNext {
			p.buf.Fixup(nextCase)
		}
		p.advanceAppend()
		caseVal := p.constIntExpr()
		p.expect(token.Colon, diagnostics.ErrMissingColon)

		p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(ctrl)))
		p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(caseVal)))
		nextCase = p.buf.PutMarker(bytecode.IF_ICMPNE, bytecode.Int(0))
		haveNext = true

		for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) && !p.at(token.EOF) {
			p.statement()
		}
		p.buf.PendingMarkers() // no-op touch; break fixups collected separately
	}
	if haveNext {
		p.buf.Fixup(nextCase)
	}
	if p.accept(token.KwDefault) {
		p.expect(token.Colon, diagnostics.ErrMissingColon)
		for !p.at(token.RBrace) && !p.at(token.EOF) {
			p.statement()
		}
	}
	p.expect(token.RBrace, diagnostics.ErrInvalidStatement)

	p.loops = p.loops[:len(p.loops)-1]
	p.fixupBreaks(bt)
}

// returnStmt implements `'return' [expression] ';'`, checking the result
// against the enclosing function's declared return type.
func (p *Parser) returnStmt() {
	p.advanceAppend() // 'return'
	var retType *bytecode.Opcode
	if p.fn == nil {
		p.error(diagnostics.ErrInvalidStatement)
	}
	if !p.at(token.Semicolon) {
		valType := p.expression()
		if p.fn != nil && p.fn.Func != nil {
			want := p.fn.Func.ReturnType
			if want == nil {
				p.error(diagnostics.ErrIncompatibleTypes)
			} else if !p.pre.AssignmentCompatible(want, valType) {
				p.error(diagnostics.ErrIncompatibleAssignment)
			} else if want.Base() == p.pre.Real && valType.Base() == p.pre.Integer {
				p.convertToReal(valType)
			}
			op := returnOpFor(want)
			retType = &op
		}
	} else if p.fn != nil && p.fn.Func != nil && p.fn.Func.ReturnType != nil {
		p.error(diagnostics.ErrMissingReturn)
	}
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)

	if retType != nil {
		p.buf.Emit(*retType)
	} else {
		p.buf.Emit(bytecode.RETURN)
	}
}

// breakStmt implements `'break' ';'`, recording a GOTO to be fixed up once
// the enclosing loop/switch's exit point is known.
func (p *Parser) breakStmt() {
	p.advanceAppend() // 'break'
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)
	if len(p.loops) == 0 {
		p.error(diagnostics.ErrInvalidStatement)
		return
	}
	bt := p.loops[len(p.loops)-1]
	marker := p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0))
	bt.markers = append(bt.markers, marker)
}

func (p *Parser) fixupBreaks(bt *breakTarget) {
	for _, m := range bt.markers {
		p.buf.Fixup(m)
	}
}

// exprStmt implements `expr-stmt := expression ';'`, discarding the
// resulting value.
func (p *Parser) exprStmt() {
	if p.at(token.Semicolon) {
		p.advanceAppend()
		return
	}
	p.expression()
	p.buf.Emit(bytecode.POP)
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)
}
