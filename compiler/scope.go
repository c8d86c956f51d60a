package compiler

import (
	"sort"

	"github.com/taskvm/taskvm/op"
	"github.com/taskvm/taskvm/token"
)

// variable is a declared name bound to a range of stack slots.
type variable struct {
	kind    kind
	address int
	size    int // 1 for scalars, length+1 for arrays
	ident   *token.Ident
	scope   int // nesting level of the declaring block
}

// symbolTable maps identifiers to variables. Each identifier has a stack of
// bindings; the innermost declaration is last.
type symbolTable struct {
	vars     []*variable
	bindings map[*token.Ident][]*variable
	markers  []int // len(vars) at each block entry
}

func newSymbolTable() *symbolTable {
	return &symbolTable{bindings: map[*token.Ident][]*variable{}}
}

func (s *symbolTable) depth() int {
	return len(s.markers)
}

// lookup returns the innermost binding of ident.
func (s *symbolTable) lookup(ident *token.Ident) (*variable, bool) {
	stack := s.bindings[ident]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// declaredInCurrentScope reports whether ident is bound by the innermost
// block.
func (s *symbolTable) declaredInCurrentScope(ident *token.Ident) bool {
	v, ok := s.lookup(ident)
	return ok && v.scope == s.depth()
}

func (s *symbolTable) define(v *variable) {
	v.scope = s.depth()
	s.vars = append(s.vars, v)
	s.bindings[v.ident] = append(s.bindings[v.ident], v)
}

func (s *symbolTable) pushScope() {
	s.markers = append(s.markers, len(s.vars))
}

// popScope removes the innermost block's variables, restores the bindings
// they shadowed and returns the number of slots they occupied.
func (s *symbolTable) popScope() int {
	marker := s.markers[len(s.markers)-1]
	s.markers = s.markers[:len(s.markers)-1]
	size := 0
	for i := len(s.vars) - 1; i >= marker; i-- {
		v := s.vars[i]
		stack := s.bindings[v.ident]
		if len(stack) == 1 {
			delete(s.bindings, v.ident)
		} else {
			s.bindings[v.ident] = stack[:len(stack)-1]
		}
		size += v.size
	}
	s.vars = s.vars[:marker]
	return size
}

// names returns the sorted names of all visible variables.
func (s *symbolTable) names() []string {
	names := make([]string, 0, len(s.bindings))
	for ident := range s.bindings {
		names = append(names, ident.Name)
	}
	sort.Strings(names)
	return names
}

func (c *Compiler) enterScope() {
	c.symbols.pushScope()
}

// exitScope releases the innermost block's slots with a single addsp.
func (c *Compiler) exitScope() {
	if size := c.symbols.popScope(); size > 0 {
		c.pop(size)
		c.out.EmitInt(op.AddSP, int32(size))
	}
}
