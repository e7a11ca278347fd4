// Package symtab implements the scoped name→node mapping of spec.md §3/§4.2:
// a binary search tree keyed by name for Search, plus a separately
// maintained declaration-order list for iteration and emission.
package symtab

import "cx/internal/types"

// Kind is a symbol's definition kind. A node's Kind may only transition
// from Undefined to a concrete kind (spec.md §4.2 invariant).
type Kind int

const (
	Undefined Kind = iota
	Constant
	TypeName
	Variable
	Field
	ValueParam
	RefParam
	Function
)

// FuncInfo is the function-kind payload: parameter/local chains, return
// type, icode entry position, and total local frame size.
type FuncInfo struct {
	Params       *Node
	Locals       *Node
	ReturnType   *types.Type
	EntryPos     int
	TotalLocals  int
}

// Node is a symbol table entry. Name is interned and unique within its
// owning scope. Next links nodes in declaration order; Left/Right form the
// ordered BST used by Search.
type Node struct {
	name string
	Kind Kind
	Type *types.Type

	// kind-specific payload
	ConstInt   int64
	ConstFloat float64
	Offset     int // variable/parameter slot index in its activation (one stack cell each), not a byte offset
	Func       *FuncInfo

	Next        *Node // declaration-order list
	Left, Right *Node // BST child links
}

// Name implements types.DefiningNode.
func (n *Node) Name() string { return n.name }

// Table owns a BST of nodes keyed by name plus the head of the
// declaration-order list.
type Table struct {
	root  *Node // BST root
	head  *Node // first-declared node
	tail  *Node // last-declared node, for O(1) append
}

// New returns an empty Table.
func New() *Table { return &Table{} }

// Root returns the head of the declaration-order list, for iteration and
// serialization (spec.md §3).
func (t *Table) Root() types.DefiningNode {
	if t.head == nil {
		return nil
	}
	return t.head
}

// Head returns the raw declaration-order list head, for callers that need
// to walk concrete *Node (record field offset assignment, icode emission).
func (t *Table) Head() *Node { return t.head }

// Search returns the existing node named name, or nil.
func (t *Table) Search(name string) *Node {
	n := t.root
	for n != nil {
		switch {
		case name < n.name:
			n = n.Left
		case name > n.name:
			n = n.Right
		default:
			return n
		}
	}
	return nil
}

// Enter returns the existing node named name, creating one with kind if
// absent (idempotent).
func (t *Table) Enter(name string, kind Kind) *Node {
	if n := t.Search(name); n != nil {
		return n
	}
	return t.insert(name, kind)
}

// EnterNew creates a new node named name, or returns (nil, false) if one
// already exists — the redefined-identifier path (spec.md §4.2).
func (t *Table) EnterNew(name string, kind Kind) (*Node, bool) {
	if t.Search(name) != nil {
		return nil, false
	}
	return t.insert(name, kind), true
}

func (t *Table) insert(name string, kind Kind) *Node {
	node := &Node{name: name, Kind: kind}

	if t.root == nil {
		t.root = node
	} else {
		cur := t.root
		for {
			if name < cur.name {
				if cur.Left == nil {
					cur.Left = node
					break
				}
				cur = cur.Left
			} else {
				if cur.Right == nil {
					cur.Right = node
					break
				}
				cur = cur.Right
			}
		}
	}

	if t.head == nil {
		t.head = node
	} else {
		t.tail.Next = node
	}
	t.tail = node

	return node
}
