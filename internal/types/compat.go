package types

// Predefined is the set of predefined types the parser wires up at
// construction (internal/parser's newPredefined), per spec.md §3/§4.3 and src/types.cpp's
// InitializePredefinedTypes.
type Predefined struct {
	Integer *Type
	Real    *Type
	Boolean *Type
	Char    *Type
	Dummy   *Type
}

// charArrayCompatible reports whether a and b are both char arrays of
// equal element count, the shared tail of the relational- and
// assignment-compatibility rules.
func charArrayCompatible(a, b *Type, char *Type) bool {
	return a.Form == FormArray && b.Form == FormArray &&
		a.ArrayElem == char && b.ArrayElem == char &&
		a.ArrayCount == b.ArrayCount
}

// AssignmentCompatible implements spec.md §4.3's assignment-compatible
// predicate: identical bases; target=real and value=integer (widening);
// or both char arrays of equal length.
func (p *Predefined) AssignmentCompatible(target, value *Type) bool {
	target, value = target.Base(), value.Base()
	if target == value {
		return true
	}
	if target == p.Real && value == p.Integer {
		return true
	}
	return charArrayCompatible(target, value, p.Char)
}

// RelOpOperandsCompatible implements spec.md §4.3's
// relational-operand-compatible predicate. The original's
// CheckRelOpOperands compared pType2 to pType2 (a self-comparison typo);
// per spec.md §9 note 1 this is implemented as the intended symmetric
// integer/real mixing rule.
func (p *Predefined) RelOpOperandsCompatible(a, b *Type) bool {
	a, b = a.Base(), b.Base()
	if a == b && (a.Form == FormScalar || a.Form == FormEnum) {
		return true
	}
	if (a == p.Integer && b == p.Real) || (a == p.Real && b == p.Integer) {
		return true
	}
	return charArrayCompatible(a, b, p.Char)
}

// IntegerOrReal reports whether each provided operand's base is integer or
// real. b may be nil to check a single operand.
func (p *Predefined) IntegerOrReal(a, b *Type) bool {
	ab := a.Base()
	if ab != p.Integer && ab != p.Real {
		return false
	}
	if b == nil {
		return true
	}
	bb := b.Base()
	return bb == p.Integer || bb == p.Real
}

// BooleanOperands reports whether each provided operand's base is the predefined
// boolean type. b may be nil to check a single operand.
func (p *Predefined) BooleanOperands(a, b *Type) bool {
	if a.Base() != p.Boolean {
		return false
	}
	if b == nil {
		return true
	}
	return b.Base() == p.Boolean
}

// IntegerOperands reports whether both operands' bases are integer.
func (p *Predefined) IntegerOperands(a, b *Type) bool {
	return a.Base() == p.Integer && b.Base() == p.Integer
}

// RealOperands reports whether the operand pair is real, or a real/integer
// mix, in either order (src/types.cpp's RealOperands).
func (p *Predefined) RealOperands(a, b *Type) bool {
	a, b = a.Base(), b.Base()
	if a == p.Real && b == p.Real {
		return true
	}
	if a == p.Real && b == p.Integer {
		return true
	}
	if b == p.Real && a == p.Integer {
		return true
	}
	return false
}
