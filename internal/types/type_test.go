package types

import "testing"

// fakeID is a minimal DefiningNode for tests that don't need a real
// symtab.Node.
type fakeID string

func (f fakeID) Name() string { return string(f) }

func newPre() *Predefined {
	return &Predefined{
		Integer: NewScalar(ScalarInteger, 4, fakeID("int")),
		Real:    NewScalar(ScalarReal, 8, fakeID("float")),
		Boolean: NewScalar(ScalarBoolean, 1, fakeID("bool")),
		Char:    NewScalar(ScalarChar, 1, fakeID("char")),
		Dummy:   NewScalar(ScalarInteger, 0, nil),
	}
}

// TestRefcountConservation is spec.md §8 universal property 2: after a
// full teardown every type's refcount returns to 0.
func TestRefcountConservation(t *testing.T) {
	pre := newPre()

	arr := NewArray(3, pre.Integer.ByteSize, fakeID("a"))
	SetType(&arr.ArrayElem, pre.Integer)
	idx := NewSubrange(pre.Integer.ByteSize, nil)
	SetType(&idx.SubrangeBase, pre.Integer)
	SetType(&arr.ArrayIndex, idx)

	if pre.Integer.RefCount() != 2 {
		t.Fatalf("integer refcount = %d, want 2 (array elem + subrange base)", pre.Integer.RefCount())
	}

	RemoveType(&arr.ArrayElem)
	RemoveType(&arr.ArrayIndex)

	if pre.Integer.RefCount() != 0 {
		t.Fatalf("integer refcount after teardown = %d, want 0", pre.Integer.RefCount())
	}
}

// TestSetTypeSelfAssignmentSafe exercises the corrected SetType ordering
// (spec.md §9 note 4): reassigning a field to its own current value must
// not free the value out from under it.
func TestSetTypeSelfAssignmentSafe(t *testing.T) {
	pre := newPre()
	var field *Type
	SetType(&field, pre.Integer)
	if pre.Integer.RefCount() != 1 {
		t.Fatalf("refcount = %d, want 1", pre.Integer.RefCount())
	}
	SetType(&field, field) // self-assignment
	if field != pre.Integer {
		t.Fatalf("self-assignment corrupted field")
	}
	if pre.Integer.RefCount() != 1 {
		t.Fatalf("refcount after self-assignment = %d, want 1", pre.Integer.RefCount())
	}
}

// TestAssignmentCompatibilityIdempotence is spec.md §8 universal property
// 6.
func TestAssignmentCompatibilityIdempotence(t *testing.T) {
	pre := newPre()
	cases := []struct {
		target, value *Type
		want          bool
	}{
		{pre.Integer, pre.Integer, true},
		{pre.Real, pre.Real, true},
		{pre.Real, pre.Integer, true},
		{pre.Integer, pre.Real, false},
		{pre.Boolean, pre.Boolean, true},
		{pre.Char, pre.Integer, false},
	}
	for _, c := range cases {
		if got := pre.AssignmentCompatible(c.target, c.value); got != c.want {
			t.Errorf("AssignmentCompatible(%s, %s) = %v, want %v",
				c.target.DefiningID.Name(), c.value.DefiningID.Name(), got, c.want)
		}
	}
}

// TestTypeGraphAcyclicity is spec.md §8 universal property 1: walking the
// subrange/array reference chain never revisits a node.
func TestTypeGraphAcyclicity(t *testing.T) {
	pre := newPre()
	arr := NewArray(5, pre.Char.ByteSize, fakeID("s"))
	SetType(&arr.ArrayElem, pre.Char)
	idx := NewSubrange(pre.Integer.ByteSize, nil)
	SetType(&idx.SubrangeBase, pre.Integer)
	SetType(&arr.ArrayIndex, idx)

	seen := map[*Type]bool{}
	var walk func(*Type)
	walk = func(t *Type) {
		if t == nil {
			return
		}
		if seen[t] {
			panic("cycle detected")
		}
		seen[t] = true
		walk(t.SubrangeBase)
		walk(t.ArrayElem)
		walk(t.ArrayIndex)
	}
	walk(arr)
	// arr -> {ArrayElem: char, ArrayIndex: idx -> SubrangeBase: integer}
	want := map[*Type]bool{arr: true, idx: true, pre.Char: true, pre.Integer: true}
	if len(seen) != len(want) {
		t.Fatalf("walked %d distinct type nodes, want %d", len(seen), len(want))
	}
}
