package solver

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/speakeasy-api/diffvm/constraints"
	"github.com/speakeasy-api/diffvm/expr"
)

// DefaultMaxAssignments bounds the search of an Enumerator to two free bytes.
const DefaultMaxAssignments = 1 << 16

// Enumerator is a complete solver for small queries: it tries every
// assignment to the symbolic bytes the constraints read. Queries with more
// candidate assignments than MaxAssignments, or that depend on a version
// choice no revision resolves, are answered Unknown.
type Enumerator struct {
	MaxAssignments uint64

	queries atomic.Uint64
}

// NewEnumerator returns an Enumerator with the default budget.
func NewEnumerator() *Enumerator {
	return &Enumerator{MaxAssignments: DefaultMaxAssignments}
}

// Queries is the number of queries answered so far.
func (en *Enumerator) Queries() uint64 { return en.queries.Load() }

func (en *Enumerator) Check(ctx context.Context, cs *constraints.Set) (Validity, error) {
	_, v, err := en.solve(ctx, cs.All())
	return v, err
}

func (en *Enumerator) Model(ctx context.Context, cs *constraints.Set, arrays []*expr.Array) ([][]byte, Validity, error) {
	bindings, v, err := en.solve(ctx, cs.All())
	if err != nil || v != Sat {
		return nil, v, err
	}
	values := make([][]byte, len(arrays))
	for i, arr := range arrays {
		data := make([]byte, arr.Size())
		copy(data, bindings[arr])
		values[i] = data
	}
	return values, Sat, nil
}

// freeByte is one byte of a symbolic array the search assigns.
type freeByte struct {
	arr   *expr.Array
	index uint64
}

func (en *Enumerator) solve(ctx context.Context, cs []*expr.Expr) (map[*expr.Array][]byte, Validity, error) {
	en.queries.Add(1)

	for _, c := range cs {
		if c.IsFalse() {
			return nil, Unsat, nil
		}
	}

	vars := collectFreeBytes(cs)
	limit := en.MaxAssignments
	if limit == 0 {
		limit = DefaultMaxAssignments
	}
	// 256^n overflows uint64 at n == 8; anything past that is over budget.
	if len(vars) >= 8 || uint64(1)<<(8*len(vars)) > limit {
		return nil, Unknown, nil
	}

	bindings := map[*expr.Array][]byte{}
	for _, v := range vars {
		if _, ok := bindings[v.arr]; !ok {
			bindings[v.arr] = make([]byte, v.arr.Size())
		}
	}

	total := uint64(1) << (8 * len(vars))
	for n := uint64(0); n < total; n++ {
		if n&0xff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, Unknown, err
			}
		}
		for i, v := range vars {
			bindings[v.arr][v.index] = byte(n >> (8 * i))
		}
		ok, err := holds(cs, bindings)
		if errors.Is(err, expr.ErrUnresolvedChoice) {
			return nil, Unknown, nil
		}
		if err != nil {
			return nil, Unknown, err
		}
		if ok {
			return bindings, Sat, nil
		}
	}
	return nil, Unsat, nil
}

func holds(cs []*expr.Expr, bindings map[*expr.Array][]byte) (bool, error) {
	ev := expr.NewEvaluator(bindings)
	for _, c := range cs {
		v, err := ev.Value(c)
		if err != nil {
			return false, err
		}
		if v == 0 {
			return false, nil
		}
	}
	return true, nil
}

// collectFreeBytes returns the symbolic bytes read by cs, ordered by array and
// index. A read at a symbolic index makes every byte of its array free.
func collectFreeBytes(cs []*expr.Expr) []freeByte {
	seen := map[freeByte]struct{}{}
	var vars []freeByte
	add := func(fb freeByte) {
		if _, ok := seen[fb]; ok {
			return
		}
		seen[fb] = struct{}{}
		vars = append(vars, fb)
	}

	for _, c := range cs {
		for _, r := range expr.FindReads(c, true) {
			root := r.Updates().Root
			if !root.IsSymbolicArray() {
				continue
			}
			idx := r.Index()
			if idx.IsConstant() {
				if idx.Value() < root.Size() {
					add(freeByte{root, idx.Value()})
				}
				continue
			}
			for i := uint64(0); i < root.Size(); i++ {
				add(freeByte{root, i})
			}
		}
	}

	sort.Slice(vars, func(i, j int) bool {
		if vars[i].arr.ID() != vars[j].arr.ID() {
			return vars[i].arr.ID() < vars[j].arr.ID()
		}
		return vars[i].index < vars[j].index
	})
	return vars
}
