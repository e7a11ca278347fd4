package parser

import (
	"cx/internal/bytecode"
	"cx/internal/diagnostics"
	"cx/internal/symtab"
	"cx/internal/token"
	"cx/internal/types"
)

// declaration implements:
//
//	declaration := type-spec var-decl-list ';'
//	             | 'const' const-decl-list ';'
//	             | func-header compound
//
// A func-header is distinguished from a var-decl-list by lookahead past
// the first declarator's identifier: '(' starts a parameter list.
func (p *Parser) declaration() {
	if p.at(token.KwConst) {
		p.constDecl()
		return
	}
	if p.at(token.KwEnum) {
		p.enumDecl()
		return
	}

	base := p.typeSpec()
	if base == nil {
		p.error(diagnostics.ErrInvalidType)
		p.resync(stmtFollow, declStart, stmtStart)
		p.accept(token.Semicolon)
		return
	}

	if !p.at(token.Ident) {
		p.error(diagnostics.ErrMissingIdentifier)
		p.resync(stmtFollow, declStart, stmtStart)
		p.accept(token.Semicolon)
		return
	}
	name := p.tok.Lexeme
	// Lookahead: identifier followed by '(' is a function header.
	save := *p.scan
	saveTok := p.tok
	p.advance()
	if p.at(token.LParen) {
		p.funcDecl(name, base)
		return
	}
	*p.scan = save
	p.tok = saveTok
	p.varDeclList(base)
}

// typeSpec implements `type-spec := type-identifier | enum-body |
// array-suffix`'s base-type half; the array suffix is parsed per
// declarator in varDeclList/paramList, matching `T name[N]` C syntax.
func (p *Parser) typeSpec() *types.Type {
	switch p.tok.Kind {
	case token.KwInt:
		p.advanceAppend()
		return p.pre.Integer
	case token.KwFloat:
		p.advanceAppend()
		return p.pre.Real
	case token.KwBool:
		p.advanceAppend()
		return p.pre.Boolean
	case token.KwChar:
		p.advanceAppend()
		return p.pre.Char
	case token.KwVoid:
		p.advanceAppend()
		return nil
	case token.Ident:
		node := p.scopes.SearchAll(p.tok.Lexeme)
		if node == nil || node.Kind != symtab.TypeName {
			p.error(diagnostics.ErrNotATypeIdentifier)
			p.advanceAppend()
			return p.pre.Dummy
		}
		p.advanceAppend()
		return node.Type
	default:
		return nil
	}
}

// varDeclList implements `var-decl-list := declarator (',' declarator)*`
// where `declarator := ident ['[' const-expr ']'] ['=' expr]`.
func (p *Parser) varDeclList(base *types.Type) {
	for {
		p.varDeclarator(base)
		if !p.accept(token.Comma) {
			break
		}
	}
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)
}

func (p *Parser) varDeclarator(base *types.Type) {
	if !p.at(token.Ident) {
		p.error(diagnostics.ErrMissingIdentifier)
		return
	}
	name := p.advanceAppend().Lexeme

	declType := base
	arrayCount := 0
	if p.accept(token.LBracket) {
		arrayCount = p.constIntExpr()
		p.expect(token.RBracket, diagnostics.ErrMissingRightBracket)
		arr := types.NewArray(arrayCount, base.ByteSize, nil)
		types.SetType(&arr.ArrayElem, base)
		idx := types.NewSubrange(p.pre.Integer.ByteSize, nil)
		types.SetType(&idx.SubrangeBase, p.pre.Integer)
		idx.SubrangeMin, idx.SubrangeMax = 0, arrayCount-1
		types.SetType(&arr.ArrayIndex, idx)
		declType = arr
	}

	if p.fn == nil {
		// No global data segment in this VM; spec.md §9 note 5 treats
		// under-specified declaration forms as minimum-viable.
		p.error(diagnostics.ErrUnimplementedFeature)
	}

	node, ok := p.scopes.Current().EnterNew(name, symtab.Variable)
	if !ok {
		p.error(diagnostics.ErrRedefinedIdentifier)
		node = p.scopes.Current().Search(name)
	} else {
		types.SetType(&node.Type, declType)
		node.Kind = symtab.Variable
		if p.fn != nil {
			node.Offset = p.localOff
			p.localOff += slots(declType)
		}
	}

	if p.accept(token.Assign) {
		var valType *types.Type
		if declType.Form == types.FormArray && declType.ArrayElem == p.pre.Char && p.at(token.StringLit) {
			lit := p.advanceAppend().Lexeme
			p.emitCharArrayLiteral(lit, arrayCount)
			valType = declType
		} else {
			valType = p.expression()
		}
		if node != nil && !p.pre.AssignmentCompatible(node.Type, valType) {
			p.error(diagnostics.ErrIncompatibleAssignment)
		}
		if node != nil && p.fn != nil {
			p.emitStore(node)
		}
	} else if declType.Form == types.FormArray && node != nil && p.fn != nil {
		// No initializer: the declarator still owns a heap allocation (the
		// local slot is a pointer cell), so NEWARRAY it here rather than
		// leaving the slot holding a null pointer that every later
		// *ALOAD/*ASTORE would fault on.
		p.emitArrayAlloc(declType)
		p.emitStore(node)
	}
}

// emitArrayAlloc allocates a zero-valued backing array for an array-typed
// declarator with no initializer, sized from its ArrayIndex subrange.
func (p *Parser) emitArrayAlloc(declType *types.Type) {
	count := 0
	if declType.ArrayIndex != nil {
		count = declType.ArrayIndex.SubrangeMax - declType.ArrayIndex.SubrangeMin + 1
	}
	elemSize := 4
	if declType.ArrayElem != nil {
		elemSize = declType.ArrayElem.ByteSize
	}
	p.buf.Emit(bytecode.ICONST, bytecode.Int(int32(count)))
	p.buf.Emit(bytecode.NEWARRAY, bytecode.Int(int32(elemSize)), bytecode.Int(0))
}

// slots reports how many stack cells a declared variable's type occupies.
// Scalars take one; arrays and records are allocated on the heap and
// occupy a single pointer cell on the stack.
func slots(t *types.Type) int {
	if t == nil {
		return 0
	}
	switch t.Form {
	case types.FormArray, types.FormRecord:
		return 1
	default:
		return 1
	}
}

// constDecl implements `'const' const-decl-list ';'` where each entry is
// `ident '=' const-expr`.
func (p *Parser) constDecl() {
	p.advanceAppend() // 'const'
	for {
		if !p.at(token.Ident) {
			p.error(diagnostics.ErrMissingIdentifier)
			break
		}
		name := p.advanceAppend().Lexeme
		p.expect(token.Assign, diagnostics.ErrMissingEqual)
		isReal, ival, fval := p.constLiteral()
		node, ok := p.scopes.Current().EnterNew(name, symtab.Constant)
		if !ok {
			p.error(diagnostics.ErrRedefinedIdentifier)
		} else {
			if isReal {
				types.SetType(&node.Type, p.pre.Real)
				node.ConstFloat = fval
			} else {
				types.SetType(&node.Type, p.pre.Integer)
				node.ConstInt = ival
			}
		}
		if !p.accept(token.Comma) {
			break
		}
	}
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)
}

func (p *Parser) constLiteral() (isReal bool, ival int64, fval float64) {
	neg := false
	if p.at(token.Minus) {
		neg = true
		p.advance()
	}
	switch p.tok.Kind {
	case token.IntLit:
		ival = p.tok.IVal
		if neg {
			ival = -ival
		}
		p.advanceAppend()
	case token.RealLit:
		isReal = true
		fval = p.tok.FVal
		if neg {
			fval = -fval
		}
		p.advanceAppend()
	default:
		p.error(diagnostics.ErrMissingConstant)
	}
	return
}

func (p *Parser) constIntExpr() int {
	isReal, ival, fval := p.constLiteral()
	if isReal {
		return int(fval)
	}
	return int(ival)
}

// enumDecl implements `enum-body := 'enum' [ident] '{' ident (',' ident)*
// '}' ';'`: ordered constant-identifier nodes with ascending ordinals,
// spec.md §3's enum Type form.
func (p *Parser) enumDecl() {
	p.advanceAppend() // 'enum'
	var typeName string
	named := false
	if p.at(token.Ident) {
		typeName = p.advanceAppend().Lexeme
		named = true
	}
	p.expect(token.LBrace, diagnostics.ErrInvalidStatement)

	enumType := types.NewEnum(p.pre.Integer.ByteSize, nil)
	ordinal := 0
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if !p.at(token.Ident) {
			p.error(diagnostics.ErrMissingIdentifier)
			break
		}
		name := p.advanceAppend().Lexeme
		node, ok := p.scopes.Current().EnterNew(name, symtab.Constant)
		if !ok {
			p.error(diagnostics.ErrRedefinedIdentifier)
		} else {
			node.ConstInt = int64(ordinal)
			types.SetType(&node.Type, enumType)
			enumType.EnumConsts = append(enumType.EnumConsts, node)
		}
		ordinal++
		if !p.accept(token.Comma) {
			break
		}
	}
	enumType.EnumMax = ordinal - 1
	p.expect(token.RBrace, diagnostics.ErrMissingRightBracket)
	p.expect(token.Semicolon, diagnostics.ErrMissingSemicolon)

	if named {
		if tn, ok := p.scopes.Current().EnterNew(typeName, symtab.TypeName); ok {
			types.SetType(&tn.Type, enumType)
		} else {
			p.error(diagnostics.ErrRedefinedIdentifier)
		}
	}
}

// funcDecl implements `func-header compound` where func-header is
// `type-spec ident '(' param-list? ')'` and the identifier was already
// consumed by declaration's lookahead.
func (p *Parser) funcDecl(name string, retType *types.Type) {
	node, ok := p.scopes.Global().EnterNew(name, symtab.Function)
	if !ok {
		p.error(diagnostics.ErrRedefinedIdentifier)
		node = p.scopes.Global().Search(name)
	}
	fn := &symtab.FuncInfo{ReturnType: retType}
	if node != nil {
		node.Func = fn
		node.Kind = symtab.Function
	}

	p.expect(token.LParen, diagnostics.ErrMissingLeftParen)
	p.scopes.Push()
	prevFn, prevOff := p.fn, p.localOff
	p.fn, p.localOff = node, 0

	p.paramList(fn)
	p.expect(token.RParen, diagnostics.ErrMissingRightParen)

	if node != nil {
		fn.EntryPos = p.buf.Mark()
	}
	fn.Locals = p.scopes.Current().Head()

	p.compound()

	// Fall-through return for a function whose body omits an explicit
	// return on every path; void is always safe, non-void emits a
	// zero-valued result so stack balance holds (spec.md §8 property 4).
	if retType == nil {
		p.buf.Emit(bytecode.RETURN)
	} else {
		p.emitZero(retType)
		p.buf.Emit(returnOpFor(retType))
	}

	fn.TotalLocals = p.localOff
	p.fn, p.localOff = prevFn, prevOff
	p.scopes.Pop()
}

// paramList implements `param-list := param (',' param)*`, `param :=
// type-spec ident`. Array-typed parameters are passed by reference
// (symtab.RefParam); everything else is by value (symtab.ValueParam).
func (p *Parser) paramList(fn *symtab.FuncInfo) {
	if p.at(token.RParen) {
		return
	}
	var tail *symtab.Node
	for {
		base := p.typeSpec()
		if base == nil {
			p.error(diagnostics.ErrInvalidType)
			return
		}
		if !p.at(token.Ident) {
			p.error(diagnostics.ErrMissingIdentifier)
			return
		}
		name := p.advanceAppend().Lexeme
		kind := symtab.ValueParam
		if p.accept(token.LBracket) {
			p.expect(token.RBracket, diagnostics.ErrMissingRightSubscript)
			kind = symtab.RefParam
		}
		param, ok := p.scopes.Current().EnterNew(name, kind)
		if !ok {
			p.error(diagnostics.ErrRedefinedIdentifier)
		} else {
			types.SetType(&param.Type, base)
			param.Offset = p.localOff
			p.localOff++
			if fn.Params == nil {
				fn.Params = param
			} else {
				tail.Next = param
			}
			tail = param
		}
		if !p.accept(token.Comma) {
			break
		}
	}
}

func returnOpFor(t *types.Type) bytecode.Opcode {
	switch t.Base() {
	case nil:
		return bytecode.RETURN
	}
	switch t.Scalar {
	case types.ScalarReal:
		return bytecode.DRETURN
	default:
		return bytecode.IRETURN
	}
}

func (p *Parser) emitZero(t *types.Type) {
	if t.Base().Scalar == types.ScalarReal {
		p.buf.Emit(bytecode.DCONST, bytecode.Double(0))
	} else {
		p.buf.Emit(bytecode.ICONST, bytecode.Int(0))
	}
}
