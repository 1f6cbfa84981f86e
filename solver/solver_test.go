package solver

import (
	"context"
	"testing"
	"time"

	"github.com/speakeasy-api/diffvm/constraints"
	"github.com/speakeasy-api/diffvm/expr"
)

func byteOf(a *expr.Array, i uint64) *expr.Expr {
	return expr.Read(expr.NewUpdateList(a), expr.Constant(i, expr.Int32))
}

// TestEnumerator_Sat finds a model for a single-byte equation.
func TestEnumerator_Sat(t *testing.T) {
	arr := expr.NewArray("x", 2)
	sum := expr.Add(byteOf(arr, 0), expr.Constant(3, expr.Int8))
	cs := constraints.NewSet(expr.Eq(sum, expr.Constant(10, expr.Int8)))

	en := NewEnumerator()
	values, v, err := en.Model(context.Background(), cs, []*expr.Array{arr})
	if err != nil {
		t.Fatalf("Model failed: %v", err)
	}
	if v != Sat {
		t.Fatalf("expected sat, got %s", v)
	}
	if len(values) != 1 || len(values[0]) != 2 {
		t.Fatalf("expected one 2-byte value, got %v", values)
	}
	if values[0][0] != 7 {
		t.Errorf("expected x[0] = 7, got %d", values[0][0])
	}
	if en.Queries() != 1 {
		t.Errorf("expected 1 query, got %d", en.Queries())
	}
}

// TestEnumerator_Unsat exhausts the domain of a contradictory pair.
func TestEnumerator_Unsat(t *testing.T) {
	arr := expr.NewArray("y", 1)
	b := byteOf(arr, 0)
	cs := constraints.NewSet(
		expr.Ult(b, expr.Constant(5, expr.Int8)),
		expr.Ugt(b, expr.Constant(9, expr.Int8)),
	)
	v, err := NewEnumerator().Check(context.Background(), cs)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v != Unsat {
		t.Errorf("expected unsat, got %s", v)
	}
}

// TestEnumerator_Budget answers Unknown when the search space is too large.
func TestEnumerator_Budget(t *testing.T) {
	arr := expr.NewArray("z", 4)
	var sum *expr.Expr = expr.Constant(0, expr.Int8)
	for i := uint64(0); i < 3; i++ {
		sum = expr.Add(sum, byteOf(arr, i))
	}
	cs := constraints.NewSet(expr.Eq(sum, expr.Constant(1, expr.Int8)))

	v, err := NewEnumerator().Check(context.Background(), cs)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v != Unknown {
		t.Errorf("expected unknown over budget, got %s", v)
	}
}

// TestEnumerator_Trivial covers queries without free bytes.
func TestEnumerator_Trivial(t *testing.T) {
	en := NewEnumerator()
	ctx := context.Background()
	if v, _ := en.Check(ctx, constraints.NewSet()); v != Sat {
		t.Errorf("empty set must be sat, got %s", v)
	}
	if v, _ := en.Check(ctx, constraints.NewSet(expr.False())); v != Unsat {
		t.Errorf("false must be unsat, got %s", v)
	}
}

// TestEnumerator_UnresolvedChoice answers Unknown for constraints over a
// version choice without a condition.
func TestEnumerator_UnresolvedChoice(t *testing.T) {
	arr := expr.NewArray("v", 1)
	x := byteOf(arr, 0)
	vc := expr.VersionChoice(nil, 0, x, 1, expr.Add(x, expr.Constant(1, expr.Int8)))
	cs := constraints.NewSet(expr.Eq(vc, expr.Constant(5, expr.Int8)))

	v, err := NewEnumerator().Check(context.Background(), cs)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v != Unknown {
		t.Errorf("expected unknown, got %s", v)
	}
}

// TestMayBeTrue extends a set without modifying it.
func TestMayBeTrue(t *testing.T) {
	arr := expr.NewArray("m", 1)
	b := byteOf(arr, 0)
	cs := constraints.NewSet(expr.Ult(b, expr.Constant(5, expr.Int8)))

	v, err := MayBeTrue(context.Background(), NewEnumerator(), cs, expr.Eq(b, expr.Constant(3, expr.Int8)))
	if err != nil || v != Sat {
		t.Errorf("expected sat, got %s (%v)", v, err)
	}
	v, err = MayBeTrue(context.Background(), NewEnumerator(), cs, expr.Eq(b, expr.Constant(8, expr.Int8)))
	if err != nil || v != Unsat {
		t.Errorf("expected unsat, got %s (%v)", v, err)
	}
	if cs.Len() != 1 {
		t.Errorf("MayBeTrue must not modify the set")
	}
}

type slowSolver struct{}

func (slowSolver) Check(ctx context.Context, cs *constraints.Set) (Validity, error) {
	<-ctx.Done()
	return Unknown, ctx.Err()
}

func (slowSolver) Model(ctx context.Context, cs *constraints.Set, arrays []*expr.Array) ([][]byte, Validity, error) {
	<-ctx.Done()
	return nil, Unknown, ctx.Err()
}

// TestWithTimeout maps deadline expiry to Unknown.
func TestWithTimeout(t *testing.T) {
	s := WithTimeout(slowSolver{}, 10*time.Millisecond)
	v, err := s.Check(context.Background(), constraints.NewSet())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != Unknown {
		t.Errorf("expected unknown, got %s", v)
	}
	if WithTimeout(slowSolver{}, 0) != (slowSolver{}) {
		t.Errorf("a zero timeout must return the solver unchanged")
	}
}
