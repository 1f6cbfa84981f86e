package expr

// Kind is the node type of an Expr.
type Kind uint8

const (
	KindConstant Kind = iota
	KindRead
	KindTernary
	KindVersionChoice
	KindConcat
	KindExtract
	KindZExt
	KindSExt
	KindNot

	// binary arithmetic
	KindAdd
	KindSub
	KindMul
	KindUDiv
	KindSDiv
	KindURem
	KindSRem

	// binary bitwise
	KindAnd
	KindOr
	KindXor
	KindShl
	KindLShr
	KindAShr

	// comparisons
	KindEq
	KindNe
	KindUlt
	KindUle
	KindUgt
	KindUge
	KindSlt
	KindSle
	KindSgt
	KindSge
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "Constant"
	case KindRead:
		return "Read"
	case KindTernary:
		return "Select"
	case KindVersionChoice:
		return "VersionChoice"
	case KindConcat:
		return "Concat"
	case KindExtract:
		return "Extract"
	case KindZExt:
		return "ZExt"
	case KindSExt:
		return "SExt"
	case KindNot:
		return "Not"
	case KindAdd:
		return "Add"
	case KindSub:
		return "Sub"
	case KindMul:
		return "Mul"
	case KindUDiv:
		return "UDiv"
	case KindSDiv:
		return "SDiv"
	case KindURem:
		return "URem"
	case KindSRem:
		return "SRem"
	case KindAnd:
		return "And"
	case KindOr:
		return "Or"
	case KindXor:
		return "Xor"
	case KindShl:
		return "Shl"
	case KindLShr:
		return "LShr"
	case KindAShr:
		return "AShr"
	case KindEq:
		return "Eq"
	case KindNe:
		return "Ne"
	case KindUlt:
		return "Ult"
	case KindUle:
		return "Ule"
	case KindUgt:
		return "Ugt"
	case KindUge:
		return "Uge"
	case KindSlt:
		return "Slt"
	case KindSle:
		return "Sle"
	case KindSgt:
		return "Sgt"
	case KindSge:
		return "Sge"
	default:
		return "Unknown"
	}
}

// IsBinary reports whether k is one of the two-operand kinds (arithmetic,
// bitwise or comparison). Concat is not included.
func (k Kind) IsBinary() bool {
	return k >= KindAdd && k <= KindSge
}

// IsCompare reports whether k yields a boolean.
func (k Kind) IsCompare() bool {
	return k >= KindEq && k <= KindSge
}

// IsCast reports whether k is a width-changing unary kind.
func (k Kind) IsCast() bool {
	return k == KindZExt || k == KindSExt
}
