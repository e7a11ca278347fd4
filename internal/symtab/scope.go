package symtab

// ScopeStack is a stack of Tables. SearchAll consults innermost to
// outermost; EnterLocal operates on the innermost scope. Scopes are
// pushed at function/compound entry and popped on exit (spec.md §3).
type ScopeStack struct {
	scopes []*Table
}

// NewScopeStack returns a ScopeStack with a single global scope pushed.
func NewScopeStack() *ScopeStack {
	s := &ScopeStack{}
	s.Push()
	return s
}

// Push opens a new innermost scope.
func (s *ScopeStack) Push() *Table {
	t := New()
	s.scopes = append(s.scopes, t)
	return t
}

// Pop closes the innermost scope and returns it.
func (s *ScopeStack) Pop() *Table {
	n := len(s.scopes)
	t := s.scopes[n-1]
	s.scopes = s.scopes[:n-1]
	return t
}

// Current returns the innermost scope.
func (s *ScopeStack) Current() *Table {
	return s.scopes[len(s.scopes)-1]
}

// Global returns the outermost scope.
func (s *ScopeStack) Global() *Table {
	return s.scopes[0]
}

// EnterLocal enters name in the innermost scope (idempotent).
func (s *ScopeStack) EnterLocal(name string, kind Kind) *Node {
	return s.Current().Enter(name, kind)
}

// SearchAll consults scopes innermost to outermost and returns the first
// match, or nil.
func (s *ScopeStack) SearchAll(name string) *Node {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if n := s.scopes[i].Search(name); n != nil {
			return n
		}
	}
	return nil
}

// Depth reports the current scope nesting depth.
func (s *ScopeStack) Depth() int {
	return len(s.scopes)
}
