// Package constraints holds the path condition of an execution state: an
// ordered conjunction of boolean expressions without duplicates.
package constraints

import (
	"strings"

	"github.com/speakeasy-api/diffvm/expr"
)

// Set is an ordered set of boolean expressions, deduplicated by node
// identity. The zero value is an empty set.
type Set struct {
	exprs []*expr.Expr
	index map[*expr.Expr]struct{}
}

// NewSet returns a set holding exprs in order, without duplicates.
func NewSet(exprs ...*expr.Expr) *Set {
	s := &Set{}
	for _, e := range exprs {
		s.Add(e)
	}
	return s
}

// Add appends e unless it is already present and reports whether it was
// added. It does not simplify or split e; use a Manager for that.
func (s *Set) Add(e *expr.Expr) bool {
	if e.Width() != expr.Bool {
		panic("constraints: non-boolean constraint " + e.String())
	}
	if s.index == nil {
		s.index = map[*expr.Expr]struct{}{}
	}
	if _, ok := s.index[e]; ok {
		return false
	}
	s.index[e] = struct{}{}
	s.exprs = append(s.exprs, e)
	return true
}

func (s *Set) Len() int { return len(s.exprs) }

// All returns the constraints in insertion order. The slice must not be
// modified.
func (s *Set) All() []*expr.Expr {
	return s.exprs[:len(s.exprs):len(s.exprs)]
}

func (s *Set) Contains(e *expr.Expr) bool {
	_, ok := s.index[e]
	return ok
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	c := &Set{
		exprs: make([]*expr.Expr, len(s.exprs)),
		index: make(map[*expr.Expr]struct{}, len(s.exprs)),
	}
	copy(c.exprs, s.exprs)
	for _, e := range s.exprs {
		c.index[e] = struct{}{}
	}
	return c
}

// Equal reports whether s and o hold the same constraints in the same order.
func (s *Set) Equal(o *Set) bool {
	if len(s.exprs) != len(o.exprs) {
		return false
	}
	for i, e := range s.exprs {
		if o.exprs[i] != e {
			return false
		}
	}
	return true
}

func (s *Set) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range s.exprs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Manager adds constraints to a set, dropping trivially true ones and
// splitting conjunctions into their conjuncts.
type Manager struct {
	set *Set
}

func NewManager(s *Set) *Manager {
	return &Manager{set: s}
}

// AddConstraint adds e to the managed set.
func (m *Manager) AddConstraint(e *expr.Expr) {
	if e.Width() != expr.Bool {
		panic("constraints: non-boolean constraint " + e.String())
	}
	if e.IsTrue() {
		return
	}
	if e.Kind() == expr.KindAnd {
		m.AddConstraint(e.Left())
		m.AddConstraint(e.Right())
		return
	}
	m.set.Add(e)
}

// Conjunction folds exprs into an AND chain starting from true.
func Conjunction(exprs []*expr.Expr) *expr.Expr {
	res := expr.True()
	for _, e := range exprs {
		res = expr.And(res, e)
	}
	return res
}
