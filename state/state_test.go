package state

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/speakeasy-api/diffvm/expr"
	"github.com/speakeasy-api/diffvm/pkg/logging"
	"github.com/speakeasy-api/diffvm/prog"
	"github.com/speakeasy-api/diffvm/solver"
)

func testFunction() *prog.Function {
	return prog.NewFunction("main", []string{"argc"}, 3, "entry", "next", "exit")
}

// forkOn returns s and a branch of s constrained to c and !c respectively.
func forkOn(s *ExecutionState, c *expr.Expr) (*ExecutionState, *ExecutionState) {
	f := s.Branch()
	s.AddConstraint(c)
	f.AddConstraint(expr.Not(c))
	return s, f
}

// TestBranch checks depth, ids, coverage reset and independence of the copy.
func TestBranch(t *testing.T) {
	s := New(testFunction())
	s.CoverLine("a.c", 3)
	s.Frame().Locals[0] = expr.Constant(1, expr.Int32)

	f := s.Branch()
	if s.Depth != 1 || f.Depth != 1 {
		t.Errorf("expected depth 1 on both sides, got %d and %d", s.Depth, f.Depth)
	}
	if s.ID() == f.ID() {
		t.Errorf("branch must get a new id")
	}
	if f.CoveredNew || len(f.CoveredLines) != 0 {
		t.Errorf("branch must start with cleared coverage")
	}
	if !s.CoveredNew || len(s.CoveredLines) != 1 {
		t.Errorf("original coverage must be kept")
	}

	f.Frame().Locals[0] = expr.Constant(2, expr.Int32)
	if s.Frame().Locals[0].Value() != 1 {
		t.Errorf("register write leaked into the original")
	}
	f.AddConstraint(expr.Eq(f.Frame().Locals[0], expr.Constant(2, expr.Int32)))
	if s.Constraints.Len() != 0 {
		t.Errorf("constraints leaked into the original")
	}
}

// TestBranch_CopyOnWrite checks that memory writes after a fork are private.
func TestBranch_CopyOnWrite(t *testing.T) {
	s := New(testFunction())
	mo := NewMemoryObject(0x2000, 4, "buf")
	s.AddressSpace.BindObject(mo, NewConcreteObjectState(mo, []byte{1, 2, 3, 4}))

	f := s.Branch()
	if s.AddressSpace.FindObject(mo) != f.AddressSpace.FindObject(mo) {
		t.Fatalf("states must share object contents after a fork")
	}
	f.Write(mo, 0, expr.Constant(9, expr.Int8))
	if got := s.AddressSpace.FindObject(mo).Read8(0).Value(); got != 1 {
		t.Errorf("write leaked into the original, got %d", got)
	}
	if got := f.AddressSpace.FindObject(mo).Read8(0).Value(); got != 9 {
		t.Errorf("expected 9 in the branch, got %d", got)
	}
	s.Write(mo, 1, expr.Constant(7, expr.Int8))
	if got := f.AddressSpace.FindObject(mo).Read8(1).Value(); got != 2 {
		t.Errorf("write leaked into the branch, got %d", got)
	}
}

// TestObjectState_Access covers multi-byte and symbolic-offset access.
func TestObjectState_Access(t *testing.T) {
	mo := NewMemoryObject(0x3000, 4, "word")
	os := NewObjectState(mo)
	os.Write(0, expr.Constant(0x11223344, expr.Int32))
	if got := os.Read8(0).Value(); got != 0x44 {
		t.Errorf("expected little-endian low byte 0x44, got %#x", got)
	}
	if got := os.Read(0, expr.Int16).Value(); got != 0x3344 {
		t.Errorf("expected 0x3344, got %#x", got)
	}

	idxArr := expr.NewArray("i", 1)
	idx := expr.ZExt(expr.Read(expr.NewUpdateList(idxArr), expr.Constant(0, expr.Int32)), expr.Int32)
	os.WriteAt(idx, expr.Constant(0xee, expr.Int8))

	for _, tt := range []struct {
		index byte
		at    uint64
		want  uint64
	}{
		{2, 2, 0xee},
		{2, 3, 0x11},
		{0, 0, 0xee},
		{0, 1, 0x33},
	} {
		ev := expr.NewEvaluator(map[*expr.Array][]byte{idxArr: {tt.index}})
		got, err := ev.Value(os.Read8(tt.at))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("index %d, byte %d: expected %#x, got %#x", tt.index, tt.at, tt.want, got)
		}
	}

	ev := expr.NewEvaluator(map[*expr.Array][]byte{idxArr: {1}})
	got, err := ev.Value(os.ReadAt(idx, expr.Int16))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 0x22ee {
		t.Errorf("expected 0x22ee, got %#x", got)
	}
}

// TestMerge joins two sides of a fork.
func TestMerge(t *testing.T) {
	var logs bytes.Buffer
	s := New(testFunction(), WithLogger(logging.New(logging.LevelDebug, &logs)), WithMergeDebug(true))
	_, xArr := s.MakeSymbolic("x", 0x1000, 1)
	mo := NewMemoryObject(0x2000, 2, "buf")
	s.AddressSpace.BindObject(mo, NewObjectState(mo))
	pre := expr.Ult(expr.Read(expr.NewUpdateList(xArr), expr.Constant(0, expr.Int32)), expr.Constant(200, expr.Int8))
	s.AddConstraint(pre)

	c := expr.Eq(expr.Read(expr.NewUpdateList(xArr), expr.Constant(0, expr.Int32)), expr.Constant(1, expr.Int8))
	a, b := forkOn(s, c)

	a.Frame().Locals[0] = expr.Constant(1, expr.Int32)
	b.Frame().Locals[0] = expr.Constant(2, expr.Int32)
	a.Frame().Locals[1] = expr.Constant(5, expr.Int32)
	a.Frame().Locals[2] = expr.Constant(6, expr.Int32)
	b.Frame().Locals[2] = expr.Constant(6, expr.Int32)
	b.Write(mo, 0, expr.Constant(9, expr.Int8))
	bConstraints := b.Constraints.Clone()

	if !a.Merge(b) {
		t.Fatalf("expected merge to succeed, logs:\n%s", logs.String())
	}

	if got, want := a.Frame().Locals[0], expr.Ternary(c, expr.Constant(1, expr.Int32), expr.Constant(2, expr.Int32)); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got := a.Frame().Locals[1]; got.Value() != 5 {
		t.Errorf("one-sided register must be left alone, got %s", got)
	}
	if got := a.Frame().Locals[2]; got.Value() != 6 {
		t.Errorf("equal registers must stay plain, got %s", got)
	}

	os := a.AddressSpace.FindObject(mo)
	if got, want := os.Read8(0), expr.Ternary(c, expr.Constant(0, expr.Int8), expr.Constant(9, expr.Int8)); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got := os.Read8(1); got.Value() != 0 {
		t.Errorf("unchanged byte must stay plain, got %s", got)
	}

	all := a.Constraints.All()
	if len(all) != 2 || all[0] != pre || all[1] != expr.Or(c, expr.Not(c)) {
		t.Errorf("unexpected merged constraints %s", a.Constraints)
	}
	if !b.Constraints.Equal(bConstraints) {
		t.Errorf("merge must not modify its argument")
	}

	v, err := solver.NewEnumerator().Check(context.Background(), a.Constraints)
	if err != nil || v != solver.Sat {
		t.Errorf("merged constraints must be satisfiable, got %s (%v)", v, err)
	}
	if !strings.Contains(logs.String(), "mutated") {
		t.Errorf("expected merge debug logs, got:\n%s", logs.String())
	}
}

// TestMerge_Rejects covers every structural mismatch.
func TestMerge_Rejects(t *testing.T) {
	setup := func() (*ExecutionState, *ExecutionState) {
		s := New(testFunction())
		_, arr := s.MakeSymbolic("y", 0x1000, 1)
		c := expr.Eq(expr.Read(expr.NewUpdateList(arr), expr.Constant(0, expr.Int32)), expr.Constant(3, expr.Int8))
		return forkOn(s, c)
	}

	tests := []struct {
		name   string
		mutate func(a, b *ExecutionState)
	}{
		{"pc", func(a, b *ExecutionState) { b.PC = b.PC.Next() }},
		{"stack depth", func(a, b *ExecutionState) { b.PushFrame(b.PC, testFunction()) }},
		{"stack function", func(a, b *ExecutionState) {
			a.PushFrame(a.PC, testFunction())
			b.PushFrame(b.PC, testFunction())
		}},
		{"symbolics", func(a, b *ExecutionState) { b.MakeSymbolic("z", 0x4000, 1) }},
		{"objects", func(a, b *ExecutionState) {
			mo := NewMemoryObject(0x5000, 1, "extra")
			a.AddressSpace.BindObject(mo, NewObjectState(mo))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := setup()
			tt.mutate(a, b)
			before := a.Constraints.Clone()
			if a.Merge(b) {
				t.Fatalf("expected merge to fail")
			}
			if !a.Constraints.Equal(before) {
				t.Errorf("failed merge must leave the state unchanged")
			}
		})
	}
}

// TestMerge_ReadOnlyPanics checks the writable-object invariant.
func TestMerge_ReadOnlyPanics(t *testing.T) {
	s := New(testFunction())
	mo := NewMemoryObject(0x6000, 1, "rodata")
	s.AddressSpace.BindObject(mo, NewObjectState(mo))
	_, arr := s.MakeSymbolic("w", 0x1000, 1)
	c := expr.Eq(expr.Read(expr.NewUpdateList(arr), expr.Constant(0, expr.Int32)), expr.Constant(3, expr.Int8))
	a, b := forkOn(s, c)

	ro := NewConcreteObjectState(mo, []byte{1})
	ro.ReadOnly = true
	a.AddressSpace.BindObject(mo, ro)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "not writable") {
			t.Errorf("unexpected panic %v", r)
		}
	}()
	a.Merge(b)
}

// TestPopFrame_UnbindsAllocas checks frame teardown.
func TestPopFrame_UnbindsAllocas(t *testing.T) {
	s := New(testFunction())
	callee := prog.NewFunction("callee", nil, 1, "ret")
	s.PushFrame(s.PC, callee)
	mo := NewMemoryObject(0x7000, 8, "local")
	mo.IsLocal = true
	s.AddressSpace.BindObject(mo, NewObjectState(mo))
	s.Frame().Allocas = append(s.Frame().Allocas, mo)

	s.PopFrame()
	if len(s.Stack) != 1 {
		t.Errorf("expected 1 frame, got %d", len(s.Stack))
	}
	if s.AddressSpace.FindObject(mo) != nil {
		t.Errorf("alloca must be unbound")
	}
}

// TestDumpStack checks the frame line format.
func TestDumpStack(t *testing.T) {
	main := testFunction()
	main.Instructions[1].Info = prog.InstructionInfo{File: "main.c", Line: 7, AssemblyLine: 21}
	callee := prog.NewFunction("callee", []string{"n", "p"}, 2, "body")
	callee.Instructions[0].Info = prog.InstructionInfo{File: "lib.c", Line: 12, AssemblyLine: 42}

	s := New(main)
	s.Frame().Locals[0] = expr.Constant(2, expr.Int32)
	s.PushFrame(main.Instructions[1], callee)
	s.Frame().Locals[0] = expr.Constant(3, expr.Int32)
	s.PC = callee.Entry()
	s.PrevPC = callee.Entry()

	var out bytes.Buffer
	if err := s.DumpStack(&out, prog.InlineInfo{}); err != nil {
		t.Fatalf("DumpStack failed: %v", err)
	}
	want := "\t#000000042 in callee(n=(w32 3), p=symbolic) at lib.c:12\n" +
		"\t#100000021 in main(argc=(w32 2)) at main.c:7\n"
	if out.String() != want {
		t.Errorf("expected:\n%q\ngot:\n%q", want, out.String())
	}
}

// TestFunctionStateInfo checks copying and ordered printing.
func TestFunctionStateInfo(t *testing.T) {
	fi := NewFunctionStateInfo()
	b := prog.NewFunction("b", nil, 0)
	a := prog.NewFunction("a", nil, 0)
	fi.AddStateInfo(b, "x=1\n")
	c := fi.Copy()
	fi.AddStateInfo(a, "y=2\n")

	var out bytes.Buffer
	if err := fi.Print(&out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "a:\ny=2\nb:\nx=1\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	out.Reset()
	_ = c.Print(&out)
	if out.String() != "b:\nx=1\n" {
		t.Errorf("copy must be independent, got %q", out.String())
	}
}
