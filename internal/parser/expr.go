package parser

import (
	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/symtab"
	"cx/internal/token"
	"cx/internal/types"
)

// storeOpFor/loadOpFor select the width-appropriate opcode for a local
// variable access, per spec.md §4.6: scalars dispatch on their kind;
// arrays and records are heap references, stored/loaded as pointers.
func (p *Parser) storeOpFor(t *types.Type) bytecode.Opcode {
	switch t.Base() {
	case p.pre.Real:
		return bytecode.DSTORE
	case p.pre.Boolean, p.pre.Char:
		return bytecode.ISTORE
	}
	if t.Form == types.FormArray || t.Form == types.FormRecord {
		return bytecode.ASTORE
	}
	return bytecode.ISTORE
}

func (p *Parser) loadOpFor(t *types.Type) bytecode.Opcode {
	switch t.Base() {
	case p.pre.Real:
		return bytecode.DLOAD
	}
	if t.Form == types.FormArray || t.Form == types.FormRecord {
		return bytecode.ALOAD
	}
	return bytecode.ILOAD
}

func (p *Parser) emitLoad(node *symtab.Node) {
	p.buf.Emit(p.loadOpFor(node.Type), bytecode.Int(int32(node.Offset)))
}

func (p *Parser) emitStore(node *symtab.Node) {
	p.buf.Emit(p.storeOpFor(node.Type), bytecode.Int(int32(node.Offset)))
}

// convertToReal emits the conversion opcode to coerce a value of type from to
// the real scalar, when from is integer — the parser-inserted widening
// spec.md §4.6 requires so VM arithmetic is always homogeneous.
func (p *Parser) convertToReal(from *types.Type) {
	if from.Base() == p.pre.Integer {
		p.buf.Emit(bytecode.I2D)
	}
}

// expression is the entry point for `expression := ternary over
// C-precedence table` (spec.md §4.5). It returns the type of the value
// left on the operand stack.
func (p *Parser) expression() *types.Type {
	p.enter()
	defer p.leave()
	return p.assignment()
}

// assignment handles `lvalue assign-op expression`, checking
// assignment-compatibility and desugaring compound-assignment operators
// into a load, arithmetic op, then store (spec.md §4.3/§4.5).
func (p *Parser) assignment() *types.Type {
	if p.at(token.Ident) {
		node := p.scopes.SearchAll(p.tok.Lexeme)
		if node != nil && node.Kind == symtab.Variable && p.peekIsAssignOp() {
			p.advanceAppend()
			op := p.tok.Kind
			p.advanceAppend()
			if op != token.Assign {
				// The operator needs LHS OP RHS on the stack, and the VM's
				// binary ops always pop second-popped-is-left; load the
				// target before the RHS is parsed/pushed so it lands
				// beneath the RHS rather than on top of it.
				p.emitLoad(node)
			}
			valType := p.assignment()

			if op != token.Assign {
				p.emitCompoundOp(op, node.Type, valType)
				valType = node.Type
			} else if !p.pre.AssignmentCompatible(node.Type, valType) {
				p.error(diagnostics.ErrIncompatibleAssignment)
			} else if node.Type.Base() == p.pre.Real && valType.Base() == p.pre.Integer {
				p.convertToReal(valType)
			}
			p.emitStore(node)
			p.emitLoad(node)
			return node.Type
		}
	}
	return p.ternary()
}

// peekIsAssignOp reports whether the lookahead after the current
// identifier is an assignment operator ('=' or a compound form), without consuming either
// token — a one-token scan over the already-produced token, since the
// scanner is forward-only and the current token IS the identifier.
func (p *Parser) peekIsAssignOp() bool {
	save := *p.scan
	saveTok := p.tok
	p.advance() // consume identifier speculatively
	isAssign := p.tok.Kind.IsAssignOp()
	*p.scan = save
	p.tok = saveTok
	return isAssign
}

func (p *Parser) emitCompoundOp(op token.Kind, target, val *types.Type) {
	isReal := target.Base() == p.pre.Real
	if isReal && val.Base() == p.pre.Integer {
		p.convertToReal(val)
	}
	switch op {
	case token.PlusEq:
		p.buf.Emit(pick(isReal, bytecode.DADD, bytecode.IADD))
	case token.MinusEq:
		p.buf.Emit(pick(isReal, bytecode.DSUB, bytecode.ISUB))
	case token.StarEq:
		p.buf.Emit(pick(isReal, bytecode.DMUL, bytecode.IMUL))
	case token.SlashEq:
		p.buf.Emit(pick(isReal, bytecode.DDIV, bytecode.IDIV))
	case token.PercentEq:
		p.buf.Emit(bytecode.IREM)
	case token.ShlEq:
		p.buf.Emit(bytecode.ISHL)
	case token.ShrEq:
		p.buf.Emit(bytecode.ISHR)
	case token.AmpEq:
		p.buf.Emit(bytecode.IAND)
	case token.CaretEq:
		p.buf.Emit(bytecode.IXOR)
	case token.PipeEq:
		p.buf.Emit(bytecode.IOR)
	}
}

func pick(cond bool, a, b bytecode.Opcode) bytecode.Opcode {
	if cond {
		return a
	}
	return b
}

// ternary sits at the top of the precedence table in spec.md §4.5's
// grammar sketch; this token set has no '?'/':' conditional-expression
// operator, so it is logicOr's synonym here (a C-style ternary would
// slot in above logicOr without otherwise touching the chain below it).
func (p *Parser) ternary() *types.Type {
	return p.logicOr()
}

func (p *Parser) logicOr() *types.Type {
	left := p.logicAnd()
	for p.at(token.OrOr) {
		p.advanceAppend()
		if !p.pre.BooleanOperands(left, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		right := p.logicAnd()
		if !p.pre.BooleanOperands(right, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.buf.Emit(bytecode.IOR)
		left = p.pre.Boolean
	}
	return left
}

func (p *Parser) logicAnd() *types.Type {
	left := p.equality()
	for p.at(token.AndAnd) {
		p.advanceAppend()
		right := p.equality()
		if !p.pre.BooleanOperands(left, nil) || !p.pre.BooleanOperands(right, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.buf.Emit(bytecode.IAND)
		left = p.pre.Boolean
	}
	return left
}

func (p *Parser) equality() *types.Type {
	left := p.relational()
	for p.at(token.Eq) || p.at(token.NotEq) {
		op := p.tok.Kind
		p.advanceAppend()
		right := p.relational()
		if !p.pre.RelOpOperandsCompatible(left, right) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.emitArrayOrScalarCmp(left, right)
		p.emitRelopBool(op)
		left = p.pre.Boolean
	}
	return left
}

// emitArrayOrScalarCmp pushes a -1/0/1-shaped comparison result for
// left/right, widening integer-vs-real mixes first (spec.md §4.6's
// homogeneity rule) and lowering equal-length char-array comparison to an
// element-wise loop (spec.md §4.3's char-array relational compatibility).
// Both operands are already on the stack in left-to-right order, so
// widening the left one reaches beneath the top the same way arithResult
// does: SWAP it up, convert, SWAP back.
func (p *Parser) emitArrayOrScalarCmp(left, right *types.Type) {
	if left.Form == types.FormArray && right.Form == types.FormArray {
		p.emitCharArrayCompare(left.ArrayCount)
		return
	}
	if left.Base() == p.pre.Real || right.Base() == p.pre.Real {
		if left.Base() == p.pre.Integer {
			p.buf.Emit(bytecode.SWAP)
			p.convertToReal(left)
			p.buf.Emit(bytecode.SWAP)
		}
		if right.Base() == p.pre.Integer {
			p.convertToReal(right)
		}
		p.buf.Emit(bytecode.DCMP)
		return
	}
	p.buf.Emit(bytecode.ICMP)
}

// tempSlot reserves one scratch local cell in the enclosing function's
// frame, counted the same as a declared local (spec.md §4.6's pre-
// computed total-local-size contract).
func (p *Parser) tempSlot() int {
	off := p.localOff
	p.localOff++
	return off
}

// emitCharArrayCompare consumes two array-pointer values already on the
// stack (pushed left-then-right) and leaves a -1/0/1 result (0 when all
// count elements match, otherwise the ICMP of the first differing pair),
// by comparing elements pairwise via CALOAD — this VM has
// no bulk array-compare opcode, so equality lowers to an explicit loop
// built from the same location-marker discipline the parser uses for
// source-level control flow.
func (p *Parser) emitCharArrayCompare(count int) {
	if p.fn == nil {
		p.error(diagnostics.ErrUnimplementedFeature)
		p.buf.Emit(bytecode.POP)
		p.buf.Emit(bytecode.POP)
		p.buf.Emit(bytecode.ICONST, bytecode.Int(1))
		return
	}
	rightTemp := p.tempSlot()
	leftTemp := p.tempSlot()
	idx := p.tempSlot()

	p.buf.Emit(bytecode.ASTORE, bytecode.Int(int32(rightTemp)))
	p.buf.Emit(bytecode.ASTORE, bytecode.Int(int32(leftTemp)))
	p.buf.Emit(bytecode.ICONST, bytecode.Int(0))
	p.buf.Emit(bytecode.ISTORE, bytecode.Int(int32(idx)))

	loopStart := p.buf.Mark()
	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(count)))
	loopEnd := p.buf.PutMarker(bytecode.IF_ICMPGE, bytecode.Int(0))

	p.buf.Emit(bytecode.ALOAD, bytecode.Int(int32(leftTemp)))
	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.CALOAD)
	p.buf.Emit(bytecode.ALOAD, bytecode.Int(int32(rightTemp)))
	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.CALOAD)
	p.buf.Emit(bytecode.ISUB)
	notEqual := p.buf.PutMarker(bytecode.IFNE, bytecode.Int(0))

	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.ICONST, bytecode.Int(1))
	p.buf.Emit(bytecode.IADD)
	p.buf.Emit(bytecode.ISTORE, bytecode.Int(int32(idx)))
	p.buf.FixupTo(p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0)), loopStart)

	p.buf.Fixup(notEqual)
	p.buf.Emit(bytecode.ALOAD, bytecode.Int(int32(leftTemp)))
	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.CALOAD)
	p.buf.Emit(bytecode.ALOAD, bytecode.Int(int32(rightTemp)))
	p.buf.Emit(bytecode.ILOAD, bytecode.Int(int32(idx)))
	p.buf.Emit(bytecode.CALOAD)
	p.buf.Emit(bytecode.ICMP)
	done := p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0))

	p.buf.Fixup(loopEnd)
	p.buf.Emit(bytecode.ICONST, bytecode.Int(0))

	p.buf.Fixup(done)
}

// emitRelopBool converts a -1/0/1 comparison result already on the stack
// into a 0/1 boolean for the given relational operator, using a
// branch/ICONST pairing through the icode marker mechanism (spec.md
// §4.4): `IFxx true; ICONST 0; GOTO done; true: ICONST 1; done:`.
func (p *Parser) emitRelopBool(op token.Kind) {
	var branchOp bytecode.Opcode
	switch op {
	case token.Eq:
		branchOp = bytecode.IFEQ
	case token.NotEq:
		branchOp = bytecode.IFNE
	case token.Lt:
		branchOp = bytecode.IFLT
	case token.Gt:
		branchOp = bytecode.IFGT
	case token.Le:
		branchOp = bytecode.IFLE
	case token.Ge:
		branchOp = bytecode.IFGE
	}
	trueMarker := p.buf.PutMarker(branchOp, bytecode.Int(0))
	p.buf.Emit(bytecode.ICONST, bytecode.Int(0))
	doneMarker := p.buf.PutMarker(bytecode.GOTO, bytecode.Int(0))
	p.buf.Fixup(trueMarker)
	p.buf.Emit(bytecode.ICONST, bytecode.Int(1))
	p.buf.Fixup(doneMarker)
}

func (p *Parser) relational() *types.Type {
	left := p.additive()
	for p.at(token.Lt) || p.at(token.Gt) || p.at(token.Le) || p.at(token.Ge) {
		op := p.tok.Kind
		p.advanceAppend()
		right := p.additive()
		if !p.pre.RelOpOperandsCompatible(left, right) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.emitArrayOrScalarCmp(left, right)
		p.emitRelopBool(op)
		left = p.pre.Boolean
	}
	return left
}

func (p *Parser) additive() *types.Type {
	left := p.multiplicative()
	for p.at(token.Plus) || p.at(token.Minus) {
		op := p.tok.Kind
		p.advanceAppend()
		right := p.multiplicative()
		result := p.arithResult(left, right)
		switch op {
		case token.Plus:
			p.buf.Emit(pick(result == p.pre.Real, bytecode.DADD, bytecode.IADD))
		case token.Minus:
			p.buf.Emit(pick(result == p.pre.Real, bytecode.DSUB, bytecode.ISUB))
		}
		left = result
	}
	return left
}

func (p *Parser) multiplicative() *types.Type {
	left := p.unary()
	for p.at(token.Star) || p.at(token.Slash) || p.at(token.Percent) ||
		p.at(token.Amp) || p.at(token.Pipe) || p.at(token.Caret) ||
		p.at(token.Shl) || p.at(token.Shr) {
		op := p.tok.Kind
		p.advanceAppend()
		right := p.unary()
		result := p.arithResult(left, right)
		switch op {
		case token.Star:
			p.buf.Emit(pick(result == p.pre.Real, bytecode.DMUL, bytecode.IMUL))
		case token.Slash:
			p.buf.Emit(pick(result == p.pre.Real, bytecode.DDIV, bytecode.IDIV))
		case token.Percent:
			p.buf.Emit(bytecode.IREM)
		case token.Amp:
			p.buf.Emit(bytecode.IAND)
		case token.Pipe:
			p.buf.Emit(bytecode.IOR)
		case token.Caret:
			p.buf.Emit(bytecode.IXOR)
		case token.Shl:
			p.buf.Emit(bytecode.ISHL)
		case token.Shr:
			p.buf.Emit(bytecode.ISHR)
		}
		left = result
	}
	return left
}

// arithResult implements spec.md §4.6's mixed-mode rule: if either operand
// is real, the other (if integer) is widened with I2D and the result is
// real; otherwise the result is integer. An operand that is not
// integer-or-real reports incompatible_types and yields the dummy type.
// Both operands are already on the stack in
// left-to-right order at this point, so widening the left one means
// reaching beneath the top: SWAP it up, convert, SWAP back.
func (p *Parser) arithResult(left, right *types.Type) *types.Type {
	if !p.pre.IntegerOrReal(left, right) {
		p.error(diagnostics.ErrIncompatibleTypes)
		return p.pre.Dummy
	}
	if left.Base() == p.pre.Real || right.Base() == p.pre.Real {
		if left.Base() == p.pre.Integer {
			p.buf.Emit(bytecode.SWAP)
			p.convertToReal(left)
			p.buf.Emit(bytecode.SWAP)
		}
		if right.Base() == p.pre.Integer {
			p.convertToReal(right)
		}
		return p.pre.Real
	}
	return p.pre.Integer
}

func (p *Parser) unary() *types.Type {
	switch p.tok.Kind {
	case token.Minus:
		p.advanceAppend()
		t := p.unary()
		if !p.pre.IntegerOrReal(t, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.buf.Emit(pick(t.Base() == p.pre.Real, bytecode.DNEG, bytecode.INEG))
		return t
	case token.Not:
		p.advanceAppend()
		t := p.unary()
		if !p.pre.BooleanOperands(t, nil) {
			p.error(diagnostics.ErrIncompatibleTypes)
		}
		p.buf.Emit(bytecode.ICONST, bytecode.Int(1))
		p.buf.Emit(bytecode.IXOR)
		return t
	case token.Caret:
		p.advanceAppend()
		t := p.unary()
		p.buf.Emit(bytecode.INOT)
		return t
	default:
		return p.postfix()
	}
}

// postfix implements call/index/field suffixes and the primary grammar.
func (p *Parser) postfix() *types.Type {
	t := p.primary()
	for {
		switch p.tok.Kind {
		case token.LBracket:
			p.advanceAppend()
			if t.Form != types.FormArray {
				p.error(diagnostics.ErrInvalidIndexType)
			}
			idx := p.expression()
			if !p.pre.IntegerOperands(idx, idx) {
				p.error(diagnostics.ErrInvalidIndexType)
			}
			p.expect(token.RBracket, diagnostics.ErrMissingRightSubscript)
			elem := p.pre.Dummy
			if t.Form == types.FormArray {
				elem = t.ArrayElem
				p.buf.Emit(p.arrayLoadOpFor(elem))
			}
			t = elem
		default:
			return t
		}
	}
}

func (p *Parser) arrayLoadOpFor(elem *types.Type) bytecode.Opcode {
	if elem.Base() == p.pre.Real {
		return bytecode.DALOAD
	}
	return bytecode.IALOAD
}

// primary implements literals, parenthesized expressions, and identifier
// references (variables, constants, and calls), entering an undefined
// reference in the current scope to keep analysis total (spec.md §4.5's
// find_or_enter recovery path).
func (p *Parser) primary() *types.Type {
	switch p.tok.Kind {
	case token.IntLit:
		v := p.tok.IVal
		p.advanceAppend()
		p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(v)))
		return p.pre.Integer
	case token.RealLit:
		v := p.tok.FVal
		p.advanceAppend()
		p.buf.Emit(bytecode.DCONST, bytecode.Double(v))
		return p.pre.Real
	case token.CharLit:
		v := byte(p.tok.IVal)
		p.advanceAppend()
		p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(v)))
		return p.pre.Char
	case token.StringLit:
		lit := p.tok.Lexeme
		p.advanceAppend()
		return p.emitCharArrayLiteral(lit, len(lit))
	case token.LParen:
		p.advanceAppend()
		t := p.expression()
		p.expect(token.RParen, diagnostics.ErrMissingRightParen)
		return t
	case token.Ident:
		name := p.tok.Lexeme
		node := p.scopes.SearchAll(name)
		p.advanceAppend()
		if p.at(token.LParen) {
			return p.call(name, node)
		}
		if node == nil {
			p.error(diagnostics.ErrUndefinedIdentifier)
			node, _ = p.scopes.Current().EnterNew(name, symtab.Variable)
			if node != nil {
				types.SetType(&node.Type, p.pre.Dummy)
			}
		}
		if node == nil {
			return p.pre.Dummy
		}
		switch node.Kind {
		case symtab.Constant:
			if node.Type.Base() == p.pre.Real {
				p.buf.Emit(bytecode.DCONST, bytecode.Double(node.ConstFloat))
			} else {
				p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(node.ConstInt)))
			}
		case symtab.Variable, symtab.ValueParam, symtab.RefParam:
			p.emitLoad(node)
		default:
			p.error(diagnostics.ErrInvalidIdentifierUsage)
		}
		return node.Type
	default:
		p.error(diagnostics.ErrInvalidExpression)
		p.advance()
		return p.pre.Dummy
	}
}

// emitCharArrayLiteral allocates a count-element char array on the heap
// and stores lit's bytes into its leading elements (spec.md §4.6
// NEWARRAY/CASTORE), leaving the remainder zero — the string-literal
// array type of spec.md §4.3's predefined-type wiring. count may exceed
// len(lit) (a declarator's own bracketed size); lit is truncated if it
// exceeds count.
func (p *Parser) emitCharArrayLiteral(lit string, count int) *types.Type {
	if len(lit) > count {
		lit = lit[:count]
	}
	p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(count)))
	p.buf.Emit(bytecode.NEWARRAY, bytecode.Int(int32(p.pre.Char.ByteSize)), bytecode.Int(0))
	for i := 0; i < len(lit); i++ {
		p.buf.Emit(bytecode.DUP)
		p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(i)))
		p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(lit[i])))
		p.buf.Emit(bytecode.CASTORE)
	}
	return types.NewCharArray(count, p.pre.Char, p.pre.Integer)
}

// call implements `ident '(' arg-list? ')'`, per spec.md §4.6's calling
// convention: arguments are pushed left to right, then CALL.
func (p *Parser) call(name string, node *symtab.Node) *types.Type {
	p.advanceAppend() // '('
	if node == nil || node.Kind != symtab.Function {
		p.error(diagnostics.ErrUndefinedIdentifier)
	}
	param := (*symtab.Node)(nil)
	if node != nil && node.Func != nil {
		param = node.Func.Params
	}
	if !p.at(token.RParen) {
		for {
			argType := p.expression()
			if param != nil {
				if !p.pre.AssignmentCompatible(param.Type, argType) {
					p.error(diagnostics.ErrWrongNumberOfParms)
				}
				param = param.Next
			}
			if !p.accept(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)
	if node != nil {
		p.buf.Emit(bytecode.CALL, bytecode.Symbol(node))
		if node.Func != nil && node.Func.ReturnType != nil {
			return node.Func.ReturnType
		}
	}
	return p.pre.Dummy
}
