package expr

import (
	"errors"
	"testing"
)

func byteAt(a *Array, i uint64) *Expr {
	return Read(NewUpdateList(a), Constant(i, Int32))
}

// TestConstant_Interned checks that equal constants share a node and that
// values are truncated to their width.
func TestConstant_Interned(t *testing.T) {
	a := Constant(5, Int32)
	b := Constant(5, Int32)
	if a != b {
		t.Fatalf("expected identical nodes for equal constants")
	}
	if Constant(5, Int8) == a {
		t.Errorf("constants of different widths must differ")
	}
	if got := Constant(0x1ff, Int8).Value(); got != 0xff {
		t.Errorf("expected truncation to 0xff, got %#x", got)
	}
	if !True().IsTrue() || !False().IsFalse() {
		t.Errorf("boolean constants misreport their value")
	}
}

// TestBinary_StructuralSharing checks that structurally equal trees built
// independently are the same node.
func TestBinary_StructuralSharing(t *testing.T) {
	arr := NewArray("x", 4)
	build := func() *Expr {
		return Add(ZExt(byteAt(arr, 0), Int32), Mul(ZExt(byteAt(arr, 1), Int32), Constant(3, Int32)))
	}
	x, y := build(), build()
	if x != y {
		t.Fatalf("expected hash-consed nodes, got %s and %s", x, y)
	}
	if x.ID() != y.ID() {
		t.Errorf("expected equal ids")
	}
	if Stats().Hits == 0 {
		t.Errorf("expected intern hits to be counted")
	}
}

// TestBinary_Fold covers constant folding, including the division-by-zero
// conventions.
func TestBinary_Fold(t *testing.T) {
	c8 := func(v uint64) *Expr { return Constant(v, Int8) }
	tests := []struct {
		name string
		got  *Expr
		want uint64
	}{
		{"add wraps", Add(c8(200), c8(100)), 44},
		{"sub wraps", Sub(c8(1), c8(2)), 0xff},
		{"mul", Mul(c8(7), c8(6)), 42},
		{"udiv", UDiv(c8(100), c8(7)), 14},
		{"udiv by zero", UDiv(c8(9), c8(0)), 0xff},
		{"urem by zero", URem(c8(9), c8(0)), 9},
		{"sdiv negative", SDiv(c8(0xf6), c8(2)), 0xfb},
		{"sdiv by zero negative", SDiv(c8(0x80), c8(0)), 1},
		{"srem", SRem(c8(0xf9), c8(3)), 0xff},
		{"shl overflow", Shl(c8(1), c8(8)), 0},
		{"lshr", LShr(c8(0x80), c8(7)), 1},
		{"ashr sign fill", AShr(c8(0x80), c8(9)), 0xff},
		{"ashr", AShr(c8(0x80), c8(1)), 0xc0},
		{"slt", Slt(c8(0xff), c8(0)), 1},
		{"ult", Ult(c8(0xff), c8(0)), 0},
		{"sge", Sge(c8(3), c8(3)), 1},
		{"ne", Ne(c8(3), c8(4)), 1},
		{"not", Not(c8(0x0f)), 0xf0},
		{"concat", Concat(c8(0x12), c8(0x34)), 0x1234},
		{"extract", Extract(Constant(0x1234, Int16), 8, Int8), 0x12},
		{"sext", SExt(c8(0x80), Int16), 0xff80},
		{"zext", ZExt(c8(0x80), Int16), 0x80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.IsConstant() {
				t.Fatalf("expected constant, got %s", tt.got)
			}
			if tt.got.Value() != tt.want {
				t.Errorf("expected %#x, got %#x", tt.want, tt.got.Value())
			}
		})
	}
}

// TestSimplifications checks the identities applied by the constructors.
func TestSimplifications(t *testing.T) {
	x := byteAt(NewArray("x", 1), 0)
	b := Eq(x, Constant(1, Int8))

	if And(True(), b) != b {
		t.Errorf("And(true, b) should be b")
	}
	if Or(False(), b) != b {
		t.Errorf("Or(false, b) should be b")
	}
	if !And(b, False()).IsFalse() {
		t.Errorf("And(b, false) should be false")
	}
	if !Eq(x, x).IsTrue() {
		t.Errorf("Eq(x, x) should be true")
	}
	if Not(Not(b)) != b {
		t.Errorf("double negation should cancel")
	}
	if Ternary(True(), x, Constant(0, Int8)) != x {
		t.Errorf("select on true should take the true branch")
	}
	if Ternary(b, x, x) != x {
		t.Errorf("select with equal branches should collapse")
	}
	if Add(x, Constant(0, Int8)) != x {
		t.Errorf("x + 0 should be x")
	}
	if Sub(x, Constant(0, Int8)) != x {
		t.Errorf("x - 0 should be x")
	}
}

// TestVersionChoice_NeverFolded checks that version choices survive even when
// a plain select would collapse, and that they mark their ancestors.
func TestVersionChoice_NeverFolded(t *testing.T) {
	a := Constant(1, Int8)
	vc := VersionChoice(nil, 7, a, PatchBaseline, a)
	if vc.Kind() != KindVersionChoice {
		t.Fatalf("expected version choice, got %s", vc)
	}
	if vc.Cond() != nil {
		t.Errorf("expected nil condition")
	}
	if vc.TruePatch() != 7 || vc.FalsePatch() != PatchBaseline {
		t.Errorf("unexpected patches %d/%d", vc.TruePatch(), vc.FalsePatch())
	}

	sum := Add(vc, byteAt(NewArray("y", 1), 0))
	if !sum.HasPatchInfo() {
		t.Errorf("ancestor of a version choice must carry patch info")
	}
	if Add(a, a).HasPatchInfo() {
		t.Errorf("plain expression must not carry patch info")
	}

	arr := NewArray("z", 2)
	ul := NewUpdateList(arr).Extend(Constant(0, Int32), vc)
	r := Read(ul, ZExt(byteAt(NewArray("i", 1), 0), Int32))
	if !r.HasPatchInfo() {
		t.Errorf("read through a tagged update must carry patch info")
	}
}

// TestRead_Resolution checks that reads see constant writes and constant
// arrays, and stay symbolic otherwise.
func TestRead_Resolution(t *testing.T) {
	arr := NewArray("buf", 4)
	v := Constant(0x42, Int8)
	ul := NewUpdateList(arr).Extend(Constant(1, Int32), v)

	if got := Read(ul, Constant(1, Int32)); got != v {
		t.Errorf("expected written value, got %s", got)
	}
	if got := Read(ul, Constant(2, Int32)); got.Kind() != KindRead {
		t.Errorf("expected symbolic read, got %s", got)
	}

	ca := NewConstantArray("tbl", []byte{9, 8, 7})
	if got := Read(NewUpdateList(ca), Constant(2, Int32)); !got.IsConstant() || got.Value() != 7 {
		t.Errorf("expected constant 7, got %s", got)
	}

	sym := ZExt(byteAt(NewArray("idx", 1), 0), Int32)
	ul2 := ul.Extend(sym, Constant(1, Int8))
	if got := Read(ul2, Constant(1, Int32)); got.Kind() != KindRead {
		t.Errorf("a symbolic write index must block resolution, got %s", got)
	}
	if ul2.Len() != 2 {
		t.Errorf("expected 2 updates, got %d", ul2.Len())
	}
}

// TestRead_SharedUpdates checks that reads over separately built but equal
// update chains are the same node.
func TestRead_SharedUpdates(t *testing.T) {
	arr := NewArray("mem", 4)
	base := NewUpdateList(arr).Extend(Constant(0, Int32), Constant(1, Int8))
	idx := ZExt(byteAt(NewArray("off", 1), 0), Int32)

	ul1 := base.Extend(idx, Constant(5, Int8))
	ul2 := base.Extend(idx, Constant(5, Int8))
	if ul1.Head != ul2.Head {
		t.Fatalf("expected equal writes to share an update node")
	}
	if ul1.Len() != 2 || ul1.Head.ID() == base.Head.ID() {
		t.Errorf("unexpected update chain %d/%d", ul1.Len(), ul1.Head.ID())
	}

	r1 := Read(ul1, Constant(0, Int32))
	r2 := Read(ul2, Constant(0, Int32))
	if r1 != r2 {
		t.Errorf("expected identical reads, got %s and %s", r1, r2)
	}
	if Read(base.Extend(idx, Constant(6, Int8)), Constant(0, Int32)) == r1 {
		t.Errorf("different written values must give different reads")
	}
}

// TestExtract_ThroughConcat checks that extracts landing inside one side of a
// concat select that side.
func TestExtract_ThroughConcat(t *testing.T) {
	arr := NewArray("w", 2)
	lo, hi := byteAt(arr, 0), byteAt(arr, 1)
	word := Concat(hi, lo)
	if Extract(word, 0, Int8) != lo {
		t.Errorf("low byte extract should return the low byte")
	}
	if Extract(word, 8, Int8) != hi {
		t.Errorf("high byte extract should return the high byte")
	}
	if ZExt(word, Int8) != lo {
		t.Errorf("narrowing zext should truncate")
	}
}

// TestString renders a few representative nodes.
func TestString(t *testing.T) {
	arr := NewArray("arg00", 2)
	r := byteAt(arr, 0)
	tests := []struct {
		e    *Expr
		want string
	}{
		{Constant(5, Int32), "(w32 5)"},
		{True(), "true"},
		{r, "(Read w8 (w32 0) arg00)"},
		{ZExt(r, Int32), "(ZExt w32 (Read w8 (w32 0) arg00))"},
		{Extract(Concat(r, r), 4, Int8), "(Extract w8 4 (Concat w16 (Read w8 (w32 0) arg00) (Read w8 (w32 0) arg00)))"},
		{VersionChoice(nil, 3, r, PatchBaseline, Constant(1, Int8)), "(VersionChoice w8 3 (Read w8 (w32 0) arg00) 0 (w8 1))"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

// TestEvaluator reduces expressions under an assignment.
func TestEvaluator(t *testing.T) {
	arr := NewArray("in", 2)
	e := Add(ZExt(byteAt(arr, 0), Int32), ZExt(byteAt(arr, 1), Int32))
	ev := NewEvaluator(map[*Array][]byte{arr: {3, 4}})

	v, err := ev.Value(e)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}

	// Writes at symbolic indices resolve once the index is known.
	ul := NewUpdateList(arr).Extend(ZExt(byteAt(arr, 0), Int32), Constant(0xaa, Int8))
	got, err := NewEvaluator(map[*Array][]byte{arr: {1, 4}}).Value(Read(ul, Constant(1, Int32)))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 0xaa {
		t.Errorf("expected 0xaa, got %#x", got)
	}

	_, err = NewEvaluator(nil).Evaluate(e)
	if !errors.Is(err, ErrUnbound) {
		t.Errorf("expected ErrUnbound, got %v", err)
	}
}

// TestEvaluator_VersionChoice checks revision-directed evaluation.
func TestEvaluator_VersionChoice(t *testing.T) {
	vc := VersionChoice(nil, 5, Constant(1, Int8), PatchBaseline, Constant(2, Int8))
	if _, err := NewEvaluator(nil).Evaluate(vc); !errors.Is(err, ErrUnresolvedChoice) {
		t.Errorf("expected ErrUnresolvedChoice, got %v", err)
	}
	tests := []struct {
		rev  PatchID
		want uint64
	}{
		{5, 1},
		{PatchBaseline, 2},
		{9, 2},
	}
	for _, tt := range tests {
		v, err := NewEvaluator(nil).WithRevision(tt.rev).Value(vc)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if v != tt.want {
			t.Errorf("rev %d: expected %d, got %d", tt.rev, tt.want, v)
		}
	}
}
