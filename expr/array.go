package expr

import (
	"fmt"
	"sync/atomic"
)

var nextArrayID atomic.Uint64

// Array is a named byte array indexed by Int32 values. A symbolic array is a
// solver variable; a constant array has fixed contents.
type Array struct {
	name      string
	size      uint64
	domain    Width
	rng       Width
	constants []*Expr
	id        uint64
}

// NewArray returns a symbolic array of size bytes.
func NewArray(name string, size uint64) *Array {
	return &Array{
		name:   name,
		size:   size,
		domain: Int32,
		rng:    Int8,
		id:     nextArrayID.Add(1),
	}
}

// NewConstantArray returns an array whose bytes are fixed to values.
func NewConstantArray(name string, values []byte) *Array {
	a := &Array{
		name:      name,
		size:      uint64(len(values)),
		domain:    Int32,
		rng:       Int8,
		constants: make([]*Expr, len(values)),
		id:        nextArrayID.Add(1),
	}
	for i, v := range values {
		a.constants[i] = Constant(uint64(v), Int8)
	}
	return a
}

func (a *Array) Name() string  { return a.name }
func (a *Array) Size() uint64  { return a.size }
func (a *Array) Domain() Width { return a.domain }
func (a *Array) Range() Width  { return a.rng }
func (a *Array) ID() uint64    { return a.id }

func (a *Array) IsSymbolicArray() bool { return a.constants == nil }

func (a *Array) IsConstantArray() bool { return a.constants != nil }

// ConstantValue returns byte i of a constant array.
func (a *Array) ConstantValue(i uint64) *Expr {
	if a.constants == nil {
		panic("expr: ConstantValue on symbolic array " + a.name)
	}
	return a.constants[i]
}

func (a *Array) String() string {
	return fmt.Sprintf("%s[%d]", a.name, a.size)
}

// UpdateNode is one write in an update list. Nodes are immutable, interned
// like expressions, and shared between the lists that extend them.
type UpdateNode struct {
	index *Expr
	value *Expr
	next  *UpdateNode
	size  int
	id    uint64
	meta  bool
}

func (un *UpdateNode) Index() *Expr       { return un.index }
func (un *UpdateNode) Value() *Expr       { return un.value }
func (un *UpdateNode) Next() *UpdateNode  { return un.next }
func (un *UpdateNode) ID() uint64         { return un.id }
func (un *UpdateNode) HasPatchInfo() bool { return un.meta }

// UpdateList is a root array plus a chain of writes, newest first.
type UpdateList struct {
	Root *Array
	Head *UpdateNode
}

// NewUpdateList returns an update list with no writes.
func NewUpdateList(root *Array) UpdateList {
	return UpdateList{Root: root}
}

// Extend returns a new list with the write index=value in front of ul.
func (ul UpdateList) Extend(index, value *Expr) UpdateList {
	if index.Width() != ul.Root.domain {
		panic(fmt.Sprintf("expr: update index width %d, array domain %d", index.Width(), ul.Root.domain))
	}
	if value.Width() != ul.Root.rng {
		panic(fmt.Sprintf("expr: update value width %d, array range %d", value.Width(), ul.Root.rng))
	}
	return UpdateList{Root: ul.Root, Head: internUpdate(index, value, ul.Head)}
}

// Len is the number of writes in the list.
func (ul UpdateList) Len() int {
	if ul.Head == nil {
		return 0
	}
	return ul.Head.size
}
