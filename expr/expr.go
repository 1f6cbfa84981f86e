// Package expr implements the hash-consed expression DAG used for symbolic
// values. Every constructor returns a canonical node: two requests for the
// same structure yield the same *Expr, so pointer equality is structural
// equality.
package expr

import "math"

// Width is a bit width. Constants are limited to 64 bits.
type Width = uint32

const (
	InvalidWidth Width = 0
	Bool         Width = 1
	Int8         Width = 8
	Int16        Width = 16
	Int32        Width = 32
	Int64        Width = 64
)

// PatchID tags the revision a value belongs to.
type PatchID = uint64

const (
	// PatchBaseline is the unpatched program.
	PatchBaseline PatchID = 0
	// PatchMerged marks a value whose revision is ambiguous.
	PatchMerged PatchID = math.MaxUint64
)

// Expr is an immutable expression node. Create nodes only through the
// constructors in this package.
type Expr struct {
	kind  Kind
	width Width
	id    uint64
	hash  uint64
	meta  bool

	// value holds the constant for KindConstant and the bit offset for
	// KindExtract.
	value uint64

	kids  [3]*Expr
	nkids uint8

	// Read only.
	updates UpdateList

	// VersionChoice only.
	patches [2]PatchID
}

func (e *Expr) Kind() Kind { return e.kind }

func (e *Expr) Width() Width { return e.width }

// ID is a process-unique number assigned when the node is first interned.
func (e *Expr) ID() uint64 { return e.id }

// Hash is the structural hash of the node.
func (e *Expr) Hash() uint64 { return e.hash }

// HasPatchInfo reports whether a version-choice node occurs anywhere below e,
// including inside the update lists of reads.
func (e *Expr) HasPatchInfo() bool { return e.meta }

func (e *Expr) NumKids() int { return int(e.nkids) }

// Kid returns the i-th operand. A version choice without a condition has a nil
// first operand.
func (e *Expr) Kid(i int) *Expr {
	if i < 0 || i >= int(e.nkids) {
		panic("expr: kid index out of range")
	}
	return e.kids[i]
}

func (e *Expr) IsConstant() bool { return e.kind == KindConstant }

func (e *Expr) IsTrue() bool {
	return e.kind == KindConstant && e.width == Bool && e.value == 1
}

func (e *Expr) IsFalse() bool {
	return e.kind == KindConstant && e.width == Bool && e.value == 0
}

// Value returns the zero-extended value of a constant.
func (e *Expr) Value() uint64 {
	if e.kind != KindConstant {
		panic("expr: Value on non-constant " + e.kind.String())
	}
	return e.value
}

// SignedValue returns the sign-extended value of a constant.
func (e *Expr) SignedValue() int64 {
	return signExtend(e.Value(), e.width)
}

// Offset is the bit offset of an Extract.
func (e *Expr) Offset() uint64 {
	e.mustBe(KindExtract)
	return e.value
}

// Index is the index operand of a Read.
func (e *Expr) Index() *Expr {
	e.mustBe(KindRead)
	return e.kids[0]
}

// Updates is the update list of a Read.
func (e *Expr) Updates() UpdateList {
	e.mustBe(KindRead)
	return e.updates
}

// Cond is the condition of a ternary or version choice. It may be nil for a
// version choice.
func (e *Expr) Cond() *Expr {
	e.mustBeConditional()
	return e.kids[0]
}

func (e *Expr) TrueExpr() *Expr {
	e.mustBeConditional()
	return e.kids[1]
}

func (e *Expr) FalseExpr() *Expr {
	e.mustBeConditional()
	return e.kids[2]
}

// TruePatch is the revision the true branch belongs to.
func (e *Expr) TruePatch() PatchID {
	e.mustBe(KindVersionChoice)
	return e.patches[0]
}

// FalsePatch is the revision the false branch belongs to.
func (e *Expr) FalsePatch() PatchID {
	e.mustBe(KindVersionChoice)
	return e.patches[1]
}

// Left and Right are the operands of binary kinds and Concat (most significant
// part first).
func (e *Expr) Left() *Expr {
	if !e.kind.IsBinary() && e.kind != KindConcat {
		panic("expr: Left on " + e.kind.String())
	}
	return e.kids[0]
}

func (e *Expr) Right() *Expr {
	if !e.kind.IsBinary() && e.kind != KindConcat {
		panic("expr: Right on " + e.kind.String())
	}
	return e.kids[1]
}

// Src is the operand of Extract, ZExt, SExt and Not.
func (e *Expr) Src() *Expr {
	switch e.kind {
	case KindExtract, KindZExt, KindSExt, KindNot:
		return e.kids[0]
	}
	panic("expr: Src on " + e.kind.String())
}

func (e *Expr) mustBe(k Kind) {
	if e.kind != k {
		panic("expr: expected " + k.String() + ", got " + e.kind.String())
	}
}

func (e *Expr) mustBeConditional() {
	if e.kind != KindTernary && e.kind != KindVersionChoice {
		panic("expr: expected conditional, got " + e.kind.String())
	}
}

// shallowEqual compares the fields that identify a node. Operands are already
// canonical so they compare by pointer.
func (e *Expr) shallowEqual(o *Expr) bool {
	if e.kind != o.kind || e.width != o.width || e.value != o.value || e.nkids != o.nkids {
		return false
	}
	for i := 0; i < int(e.nkids); i++ {
		if e.kids[i] != o.kids[i] {
			return false
		}
	}
	switch e.kind {
	case KindRead:
		return e.updates.Root == o.updates.Root && e.updates.Head == o.updates.Head
	case KindVersionChoice:
		return e.patches == o.patches
	}
	return true
}

func mask(w Width) uint64 {
	if w >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << w) - 1
}

func signExtend(v uint64, w Width) int64 {
	if w >= 64 {
		return int64(v)
	}
	shift := 64 - w
	return int64(v<<shift) >> shift
}
