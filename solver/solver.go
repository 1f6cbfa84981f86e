// Package solver answers satisfiability queries over constraint sets.
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/speakeasy-api/diffvm/constraints"
	"github.com/speakeasy-api/diffvm/expr"
)

// Validity is the tri-state answer to a query.
type Validity int

const (
	Unknown Validity = iota
	Sat
	Unsat
)

func (v Validity) String() string {
	switch v {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Solver decides constraint sets. Unknown is an answer, not an error: errors
// are reserved for malformed queries.
type Solver interface {
	// Check reports whether cs is satisfiable.
	Check(ctx context.Context, cs *constraints.Set) (Validity, error)

	// Model returns, when cs is satisfiable, one byte slice per array in
	// arrays such that the assignment satisfies cs.
	Model(ctx context.Context, cs *constraints.Set, arrays []*expr.Array) ([][]byte, Validity, error)
}

// MayBeTrue checks whether cs extended with e is satisfiable.
func MayBeTrue(ctx context.Context, s Solver, cs *constraints.Set, e *expr.Expr) (Validity, error) {
	if e.IsTrue() {
		return s.Check(ctx, cs)
	}
	if e.IsFalse() {
		return Unsat, nil
	}
	ext := cs.Clone()
	ext.Add(e)
	return s.Check(ctx, ext)
}

type timeoutSolver struct {
	inner   Solver
	timeout time.Duration
}

// WithTimeout bounds every query to s by d. A query that runs out of time is
// answered Unknown. A non-positive d disables the bound.
func WithTimeout(s Solver, d time.Duration) Solver {
	if d <= 0 {
		return s
	}
	return &timeoutSolver{inner: s, timeout: d}
}

func (t *timeoutSolver) Check(ctx context.Context, cs *constraints.Set) (Validity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.inner.Check(ctx, cs)
	if errors.Is(err, context.DeadlineExceeded) {
		return Unknown, nil
	}
	return v, err
}

func (t *timeoutSolver) Model(ctx context.Context, cs *constraints.Set, arrays []*expr.Array) ([][]byte, Validity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	values, v, err := t.inner.Model(ctx, cs, arrays)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, Unknown, nil
	}
	return values, v, err
}
