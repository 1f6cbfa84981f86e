package state

import (
	"fmt"
	"sync/atomic"

	"github.com/speakeasy-api/diffvm/expr"
)

var nextObjectID atomic.Uint64

// MemoryObject is an allocation: an address range and its provenance. The
// bytes live in an ObjectState bound to it in an AddressSpace.
type MemoryObject struct {
	ID        uint64
	Address   uint64
	Size      uint64
	Name      string
	IsLocal   bool
	IsGlobal  bool
	IsFixed   bool
	AllocSite string
}

// NewMemoryObject returns an object with a fresh id.
func NewMemoryObject(address, size uint64, name string) *MemoryObject {
	return &MemoryObject{
		ID:      nextObjectID.Add(1),
		Address: address,
		Size:    size,
		Name:    name,
	}
}

// BaseExpr is the object address as a pointer-width constant.
func (mo *MemoryObject) BaseExpr() *expr.Expr {
	return expr.Constant(mo.Address, expr.Int64)
}

// Contains reports whether addr falls inside the object.
func (mo *MemoryObject) Contains(addr uint64) bool {
	return addr >= mo.Address && addr-mo.Address < mo.Size
}

func (mo *MemoryObject) String() string {
	return fmt.Sprintf("MO%d[%d]@%#x %s", mo.ID, mo.Size, mo.Address, mo.Name)
}

// ObjectState holds the contents of one MemoryObject as one byte expression
// per offset. Writes at symbolic offsets go through an update list so later
// reads see every possible target.
type ObjectState struct {
	object   *MemoryObject
	contents []*expr.Expr

	// root backs symbolic objects and is the base of the flushed list.
	root    *expr.Array
	flushed *expr.UpdateList

	ReadOnly bool

	// cowOwner is the key of the address space allowed to write in place.
	cowOwner uint32
}

// NewObjectState returns a zero-filled object state.
func NewObjectState(mo *MemoryObject) *ObjectState {
	os := &ObjectState{
		object:   mo,
		contents: make([]*expr.Expr, mo.Size),
	}
	zero := expr.Constant(0, expr.Int8)
	for i := range os.contents {
		os.contents[i] = zero
	}
	return os
}

// NewConcreteObjectState returns an object state holding data, zero-padded to
// the object size.
func NewConcreteObjectState(mo *MemoryObject, data []byte) *ObjectState {
	os := NewObjectState(mo)
	for i := 0; i < len(data) && uint64(i) < mo.Size; i++ {
		os.contents[i] = expr.Constant(uint64(data[i]), expr.Int8)
	}
	return os
}

// NewSymbolicObjectState returns an object state whose bytes are the bytes of
// array.
func NewSymbolicObjectState(mo *MemoryObject, array *expr.Array) *ObjectState {
	if array.Size() != mo.Size {
		panic(fmt.Sprintf("state: array %s has size %d, object %d", array.Name(), array.Size(), mo.Size))
	}
	os := &ObjectState{
		object:   mo,
		contents: make([]*expr.Expr, mo.Size),
		root:     array,
	}
	ul := expr.NewUpdateList(array)
	for i := range os.contents {
		os.contents[i] = expr.Read(ul, expr.Constant(uint64(i), expr.Int32))
	}
	return os
}

func (os *ObjectState) Object() *MemoryObject { return os.object }

func (os *ObjectState) Size() uint64 { return uint64(len(os.contents)) }

func (os *ObjectState) clone() *ObjectState {
	c := &ObjectState{
		object:   os.object,
		contents: make([]*expr.Expr, len(os.contents)),
		root:     os.root,
		flushed:  os.flushed,
		ReadOnly: os.ReadOnly,
	}
	copy(c.contents, os.contents)
	return c
}

// Read8 returns the byte at offset i.
func (os *ObjectState) Read8(i uint64) *expr.Expr {
	if i >= uint64(len(os.contents)) {
		panic(fmt.Sprintf("state: read of %s at %d out of bounds", os.object.Name, i))
	}
	return os.contents[i]
}

// Write8 stores the byte v at offset i.
func (os *ObjectState) Write8(i uint64, v *expr.Expr) {
	if os.ReadOnly {
		panic("state: write to read-only object " + os.object.Name)
	}
	if i >= uint64(len(os.contents)) {
		panic(fmt.Sprintf("state: write of %s at %d out of bounds", os.object.Name, i))
	}
	if v.Width() != expr.Int8 {
		panic(fmt.Sprintf("state: byte write of width %d", v.Width()))
	}
	os.contents[i] = v
	os.flushed = nil
}

// Read returns the little-endian value of width w at a constant offset.
// A Bool read takes the low bit of one byte.
func (os *ObjectState) Read(offset uint64, w expr.Width) *expr.Expr {
	if w == expr.Bool {
		return expr.Extract(os.Read8(offset), 0, expr.Bool)
	}
	if w%8 != 0 {
		panic(fmt.Sprintf("state: read of width %d", w))
	}
	n := uint64(w / 8)
	parts := make([]*expr.Expr, n)
	for i := uint64(0); i < n; i++ {
		parts[n-1-i] = os.Read8(offset + i)
	}
	return expr.ConcatAll(parts...)
}

// Write stores v little-endian at a constant offset.
func (os *ObjectState) Write(offset uint64, v *expr.Expr) {
	if v.Width() == expr.Bool {
		os.Write8(offset, expr.ZExt(v, expr.Int8))
		return
	}
	if v.Width()%8 != 0 {
		panic(fmt.Sprintf("state: write of width %d", v.Width()))
	}
	for i := uint64(0); i < uint64(v.Width()/8); i++ {
		os.Write8(offset+i, expr.Extract(v, 8*i, expr.Int8))
	}
}

// ReadAt reads at an offset that may be symbolic.
func (os *ObjectState) ReadAt(offset *expr.Expr, w expr.Width) *expr.Expr {
	if offset.IsConstant() {
		return os.Read(offset.Value(), w)
	}
	idx := expr.ZExt(offset, expr.Int32)
	ul := os.updates()
	if w == expr.Bool {
		return expr.Extract(expr.Read(ul, idx), 0, expr.Bool)
	}
	n := uint64(w / 8)
	parts := make([]*expr.Expr, n)
	for i := uint64(0); i < n; i++ {
		at := expr.Add(idx, expr.Constant(i, expr.Int32))
		parts[n-1-i] = expr.Read(ul, at)
	}
	return expr.ConcatAll(parts...)
}

// WriteAt writes at an offset that may be symbolic. After a symbolic write
// every byte is a read of the updated list.
func (os *ObjectState) WriteAt(offset, v *expr.Expr) {
	if offset.IsConstant() {
		os.Write(offset.Value(), v)
		return
	}
	if os.ReadOnly {
		panic("state: write to read-only object " + os.object.Name)
	}
	if v.Width() == expr.Bool {
		v = expr.ZExt(v, expr.Int8)
	}
	idx := expr.ZExt(offset, expr.Int32)
	ul := os.updates()
	for i := uint64(0); i < uint64(v.Width()/8); i++ {
		at := expr.Add(idx, expr.Constant(i, expr.Int32))
		ul = ul.Extend(at, expr.Extract(v, 8*i, expr.Int8))
	}
	for i := range os.contents {
		os.contents[i] = expr.Read(ul, expr.Constant(uint64(i), expr.Int32))
	}
	os.flushed = &ul
}

// updates returns an update list equivalent to the current contents.
func (os *ObjectState) updates() expr.UpdateList {
	if os.flushed != nil {
		return *os.flushed
	}
	if os.root == nil {
		os.root = expr.NewConstantArray(fmt.Sprintf("mo%d", os.object.ID), make([]byte, len(os.contents)))
	}
	base := expr.NewUpdateList(os.root)
	ul := base
	for i, b := range os.contents {
		idx := expr.Constant(uint64(i), expr.Int32)
		if expr.Read(base, idx) != b {
			ul = ul.Extend(idx, b)
		}
	}
	os.flushed = &ul
	return ul
}
