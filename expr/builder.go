package expr

import "fmt"

// Constant returns the constant v truncated to w bits.
func Constant(v uint64, w Width) *Expr {
	if w == InvalidWidth || w > Int64 {
		panic(fmt.Sprintf("expr: invalid constant width %d", w))
	}
	return intern(Expr{kind: KindConstant, width: w, value: v & mask(w)})
}

func True() *Expr  { return Constant(1, Bool) }
func False() *Expr { return Constant(0, Bool) }

// BoolConstant returns True or False.
func BoolConstant(b bool) *Expr {
	if b {
		return True()
	}
	return False()
}

// Read returns the byte at index of the array described by ul. Writes with
// constant indices are resolved immediately, as are reads of constant arrays
// at constant indices.
func Read(ul UpdateList, index *Expr) *Expr {
	if ul.Root == nil {
		panic("expr: read from nil array")
	}
	if index.width != ul.Root.domain {
		panic(fmt.Sprintf("expr: read index width %d, array domain %d", index.width, ul.Root.domain))
	}

	exhausted := true
	for un := ul.Head; un != nil; un = un.next {
		cond := Eq(index, un.index)
		if cond.IsTrue() {
			return un.value
		}
		if !cond.IsFalse() {
			exhausted = false
			break
		}
	}
	if exhausted && ul.Root.IsConstantArray() && index.IsConstant() && index.value < ul.Root.size {
		return ul.Root.constants[index.value]
	}

	return intern(Expr{
		kind:    KindRead,
		width:   ul.Root.rng,
		kids:    [3]*Expr{index},
		nkids:   1,
		updates: ul,
	})
}

// Ternary returns the plain conditional `cond ? t : f`.
func Ternary(cond, t, f *Expr) *Expr {
	if cond.width != Bool {
		panic(fmt.Sprintf("expr: select condition width %d", cond.width))
	}
	if t.width != f.width {
		panic(fmt.Sprintf("expr: select branch widths %d and %d", t.width, f.width))
	}
	if cond.IsConstant() {
		if cond.value == 1 {
			return t
		}
		return f
	}
	if t == f {
		return t
	}
	return intern(Expr{
		kind:  KindTernary,
		width: t.width,
		kids:  [3]*Expr{cond, t, f},
		nkids: 3,
	})
}

// VersionChoice returns a node holding one value per revision: t belongs to
// truePatch and f to falsePatch. cond may be nil. Version choices are never
// folded.
func VersionChoice(cond *Expr, truePatch PatchID, t *Expr, falsePatch PatchID, f *Expr) *Expr {
	if cond != nil && cond.width != Bool {
		panic(fmt.Sprintf("expr: version choice condition width %d", cond.width))
	}
	if t.width != f.width {
		panic(fmt.Sprintf("expr: version choice branch widths %d and %d", t.width, f.width))
	}
	return intern(Expr{
		kind:    KindVersionChoice,
		width:   t.width,
		kids:    [3]*Expr{cond, t, f},
		nkids:   3,
		patches: [2]PatchID{truePatch, falsePatch},
	})
}

// Concat joins msb and lsb; msb occupies the high bits.
func Concat(msb, lsb *Expr) *Expr {
	w := msb.width + lsb.width
	if msb.IsConstant() && lsb.IsConstant() && w <= Int64 {
		return Constant(msb.value<<lsb.width|lsb.value, w)
	}
	return intern(Expr{
		kind:  KindConcat,
		width: w,
		kids:  [3]*Expr{msb, lsb},
		nkids: 2,
	})
}

// ConcatAll concatenates parts, most significant first.
func ConcatAll(parts ...*Expr) *Expr {
	if len(parts) == 0 {
		panic("expr: empty concat")
	}
	res := parts[len(parts)-1]
	for i := len(parts) - 2; i >= 0; i-- {
		res = Concat(parts[i], res)
	}
	return res
}

// Extract returns w bits of e starting at bit offset off.
func Extract(e *Expr, off uint64, w Width) *Expr {
	if w == InvalidWidth || off+uint64(w) > uint64(e.width) {
		panic(fmt.Sprintf("expr: extract %d bits at %d from width %d", w, off, e.width))
	}
	if off == 0 && w == e.width {
		return e
	}
	if e.IsConstant() {
		return Constant(e.value>>off, w)
	}
	if e.kind == KindConcat {
		msb, lsb := e.kids[0], e.kids[1]
		if off+uint64(w) <= uint64(lsb.width) {
			return Extract(lsb, off, w)
		}
		if off >= uint64(lsb.width) {
			return Extract(msb, off-uint64(lsb.width), w)
		}
	}
	return intern(Expr{
		kind:  KindExtract,
		width: w,
		value: off,
		kids:  [3]*Expr{e},
		nkids: 1,
	})
}

// ZExt zero-extends e to w bits. A narrower w truncates.
func ZExt(e *Expr, w Width) *Expr {
	if w == e.width {
		return e
	}
	if w < e.width {
		return Extract(e, 0, w)
	}
	if e.IsConstant() && w <= Int64 {
		return Constant(e.value, w)
	}
	return intern(Expr{kind: KindZExt, width: w, kids: [3]*Expr{e}, nkids: 1})
}

// SExt sign-extends e to w bits. A narrower w truncates.
func SExt(e *Expr, w Width) *Expr {
	if w == e.width {
		return e
	}
	if w < e.width {
		return Extract(e, 0, w)
	}
	if e.IsConstant() && w <= Int64 {
		return Constant(uint64(signExtend(e.value, e.width)), w)
	}
	return intern(Expr{kind: KindSExt, width: w, kids: [3]*Expr{e}, nkids: 1})
}

// Not is bitwise negation; on booleans it is logical negation.
func Not(e *Expr) *Expr {
	if e.IsConstant() {
		return Constant(^e.value, e.width)
	}
	if e.kind == KindNot {
		return e.kids[0]
	}
	return intern(Expr{kind: KindNot, width: e.width, kids: [3]*Expr{e}, nkids: 1})
}

// Binary builds a node of one of the two-operand kinds. Both operands must
// have the same width; comparisons produce a Bool.
func Binary(k Kind, l, r *Expr) *Expr {
	if !k.IsBinary() {
		panic("expr: Binary with kind " + k.String())
	}
	if l.width != r.width {
		panic(fmt.Sprintf("expr: %s operand widths %d and %d", k, l.width, r.width))
	}
	w := l.width
	rw := w
	if k.IsCompare() {
		rw = Bool
	}

	if l.IsConstant() && r.IsConstant() {
		return Constant(foldBinary(k, l.value, r.value, w), rw)
	}
	if s := simplifyBinary(k, l, r); s != nil {
		return s
	}
	return intern(Expr{kind: k, width: rw, kids: [3]*Expr{l, r}, nkids: 2})
}

func Add(l, r *Expr) *Expr  { return Binary(KindAdd, l, r) }
func Sub(l, r *Expr) *Expr  { return Binary(KindSub, l, r) }
func Mul(l, r *Expr) *Expr  { return Binary(KindMul, l, r) }
func UDiv(l, r *Expr) *Expr { return Binary(KindUDiv, l, r) }
func SDiv(l, r *Expr) *Expr { return Binary(KindSDiv, l, r) }
func URem(l, r *Expr) *Expr { return Binary(KindURem, l, r) }
func SRem(l, r *Expr) *Expr { return Binary(KindSRem, l, r) }
func And(l, r *Expr) *Expr  { return Binary(KindAnd, l, r) }
func Or(l, r *Expr) *Expr   { return Binary(KindOr, l, r) }
func Xor(l, r *Expr) *Expr  { return Binary(KindXor, l, r) }
func Shl(l, r *Expr) *Expr  { return Binary(KindShl, l, r) }
func LShr(l, r *Expr) *Expr { return Binary(KindLShr, l, r) }
func AShr(l, r *Expr) *Expr { return Binary(KindAShr, l, r) }
func Eq(l, r *Expr) *Expr   { return Binary(KindEq, l, r) }
func Ne(l, r *Expr) *Expr   { return Binary(KindNe, l, r) }
func Ult(l, r *Expr) *Expr  { return Binary(KindUlt, l, r) }
func Ule(l, r *Expr) *Expr  { return Binary(KindUle, l, r) }
func Ugt(l, r *Expr) *Expr  { return Binary(KindUgt, l, r) }
func Uge(l, r *Expr) *Expr  { return Binary(KindUge, l, r) }
func Slt(l, r *Expr) *Expr  { return Binary(KindSlt, l, r) }
func Sle(l, r *Expr) *Expr  { return Binary(KindSle, l, r) }
func Sgt(l, r *Expr) *Expr  { return Binary(KindSgt, l, r) }
func Sge(l, r *Expr) *Expr  { return Binary(KindSge, l, r) }

func simplifyBinary(k Kind, l, r *Expr) *Expr {
	if l == r {
		switch k {
		case KindEq, KindUle, KindUge, KindSle, KindSge:
			return True()
		case KindNe, KindUlt, KindUgt, KindSlt, KindSgt:
			return False()
		case KindAnd, KindOr:
			return l
		}
	}

	// Put a lone constant on the left for the commutative identities below.
	if r.IsConstant() && !l.IsConstant() {
		switch k {
		case KindAdd, KindMul, KindAnd, KindOr, KindXor:
			l, r = r, l
		case KindSub, KindShl, KindLShr, KindAShr:
			if r.value == 0 {
				return l
			}
			return nil
		default:
			return nil
		}
	}
	if !l.IsConstant() {
		return nil
	}

	all := mask(l.width)
	switch k {
	case KindAdd, KindXor, KindOr:
		if l.value == 0 {
			return r
		}
		if k == KindOr && l.value == all {
			return l
		}
	case KindAnd:
		if l.value == 0 {
			return l
		}
		if l.value == all {
			return r
		}
	case KindMul:
		if l.value == 0 {
			return l
		}
		if l.value == 1 {
			return r
		}
	}
	return nil
}

func foldBinary(k Kind, a, b uint64, w Width) uint64 {
	m := mask(w)
	sa, sb := signExtend(a, w), signExtend(b, w)
	switch k {
	case KindAdd:
		return (a + b) & m
	case KindSub:
		return (a - b) & m
	case KindMul:
		return (a * b) & m
	case KindUDiv:
		if b == 0 {
			return m
		}
		return a / b
	case KindURem:
		if b == 0 {
			return a
		}
		return a % b
	case KindSDiv:
		if sb == 0 {
			if sa < 0 {
				return 1
			}
			return m
		}
		return uint64(sa/sb) & m
	case KindSRem:
		if sb == 0 {
			return a
		}
		return uint64(sa%sb) & m
	case KindAnd:
		return a & b
	case KindOr:
		return a | b
	case KindXor:
		return a ^ b
	case KindShl:
		if b >= uint64(w) {
			return 0
		}
		return (a << b) & m
	case KindLShr:
		if b >= uint64(w) {
			return 0
		}
		return a >> b
	case KindAShr:
		if b >= uint64(w) {
			if sa < 0 {
				return m
			}
			return 0
		}
		return uint64(sa>>b) & m
	case KindEq:
		return b2u(a == b)
	case KindNe:
		return b2u(a != b)
	case KindUlt:
		return b2u(a < b)
	case KindUle:
		return b2u(a <= b)
	case KindUgt:
		return b2u(a > b)
	case KindUge:
		return b2u(a >= b)
	case KindSlt:
		return b2u(sa < sb)
	case KindSle:
		return b2u(sa <= sb)
	case KindSgt:
		return b2u(sa > sb)
	case KindSge:
		return b2u(sa >= sb)
	}
	panic("expr: cannot fold " + k.String())
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Rebuild returns a node of the same kind as e over new operands, folding
// where possible. It is the generic way to map over a node's children.
func Rebuild(e *Expr, kids ...*Expr) *Expr {
	if len(kids) != int(e.nkids) {
		panic(fmt.Sprintf("expr: rebuild %s with %d operands, want %d", e.kind, len(kids), e.nkids))
	}
	switch e.kind {
	case KindConstant:
		return e
	case KindRead:
		return Read(e.updates, kids[0])
	case KindTernary:
		return Ternary(kids[0], kids[1], kids[2])
	case KindVersionChoice:
		return VersionChoice(kids[0], e.patches[0], kids[1], e.patches[1], kids[2])
	case KindConcat:
		return Concat(kids[0], kids[1])
	case KindExtract:
		return Extract(kids[0], e.value, e.width)
	case KindZExt:
		return ZExt(kids[0], e.width)
	case KindSExt:
		return SExt(kids[0], e.width)
	case KindNot:
		return Not(kids[0])
	}
	if e.kind.IsBinary() {
		return Binary(e.kind, kids[0], kids[1])
	}
	panic("expr: cannot rebuild " + e.kind.String())
}
