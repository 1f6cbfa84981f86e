// Package patch splits multi-revision expressions into one expression per
// revision.
//
// A version-choice node carries one value for each of two revisions. Values
// computed from version choices inherit their tags; Split pushes the choices
// to the top of the tree so every resulting expression is tag-free and labeled
// with the revision it belongs to.
package patch

import (
	"fmt"

	"github.com/speakeasy-api/diffvm/expr"
)

const (
	Baseline = expr.PatchBaseline
	Merged   = expr.PatchMerged
)

// Pair is one revision's view of a split expression.
type Pair struct {
	Patch expr.PatchID
	Expr  *expr.Expr
}

// PickPatch returns n when it names a concrete revision and m otherwise.
// Baseline and Merged are not concrete, so the concrete tag of either operand
// wins; when both are concrete the second one does.
func PickPatch(m, n expr.PatchID) expr.PatchID {
	if n != Baseline && n != Merged {
		return n
	}
	return m
}

// Split returns the per-revision expressions of e. A nil e yields no pairs and
// an expression without version choices yields the single pair (Baseline, e).
// The result size is the product of the split sizes of the operands, so it is
// exponential in the nesting of version choices; see Depth.
func Split(e *expr.Expr) []Pair {
	if e == nil {
		return nil
	}
	if !e.HasPatchInfo() {
		return []Pair{{Patch: Baseline, Expr: e}}
	}

	var res []Pair
	switch k := e.Kind(); {
	case k == expr.KindRead:
		// The update list is kept as is; only the index is split.
		for _, idx := range Split(e.Index()) {
			res = append(res, Pair{idx.Patch, expr.Read(e.Updates(), idx.Expr)})
		}

	case k == expr.KindVersionChoice:
		// The condition is not split.
		for _, t := range Split(e.TrueExpr()) {
			res = append(res, Pair{PickPatch(e.TruePatch(), t.Patch), t.Expr})
		}
		for _, f := range Split(e.FalseExpr()) {
			res = append(res, Pair{PickPatch(e.FalsePatch(), f.Patch), f.Expr})
		}

	case k == expr.KindTernary:
		conds := Split(e.Cond())
		trues := Split(e.TrueExpr())
		falses := Split(e.FalseExpr())
		for _, c := range conds {
			for _, t := range trues {
				for _, f := range falses {
					p := PickPatch(c.Patch, PickPatch(t.Patch, f.Patch))
					res = append(res, Pair{p, expr.Ternary(c.Expr, t.Expr, f.Expr)})
				}
			}
		}

	case k == expr.KindConcat || k.IsBinary():
		lefts := Split(e.Left())
		rights := Split(e.Right())
		for _, l := range lefts {
			for _, r := range rights {
				res = append(res, Pair{PickPatch(l.Patch, r.Patch), expr.Rebuild(e, l.Expr, r.Expr)})
			}
		}

	case k == expr.KindExtract || k == expr.KindZExt || k == expr.KindSExt || k == expr.KindNot:
		for _, s := range Split(e.Src()) {
			res = append(res, Pair{s.Patch, expr.Rebuild(e, s.Expr)})
		}

	case k == expr.KindConstant:
		res = append(res, Pair{Baseline, e})

	default:
		panic(fmt.Sprintf("patch: unsupported expression kind %s", k))
	}
	return res
}

// Depth returns the maximum number of version choices on any path from e to a
// leaf, counting choices inside the update lists of reads.
func Depth(e *expr.Expr) int {
	return depth(e, map[*expr.Expr]int{})
}

func depth(e *expr.Expr, memo map[*expr.Expr]int) int {
	if e == nil || !e.HasPatchInfo() {
		return 0
	}
	if d, ok := memo[e]; ok {
		return d
	}
	d := 0
	for i := 0; i < e.NumKids(); i++ {
		d = max(d, depth(e.Kid(i), memo))
	}
	if e.Kind() == expr.KindRead {
		for un := e.Updates().Head; un != nil; un = un.Next() {
			if !un.HasPatchInfo() {
				break
			}
			d = max(d, depth(un.Index(), memo), depth(un.Value(), memo))
		}
	}
	if e.Kind() == expr.KindVersionChoice {
		d++
	}
	memo[e] = d
	return d
}

// Project returns the value e takes in revision rev: the expression tagged rev
// if there is one, else the baseline expression, else the first.
func Project(e *expr.Expr, rev expr.PatchID) *expr.Expr {
	pairs := Split(e)
	if len(pairs) == 0 {
		return nil
	}
	for _, p := range pairs {
		if p.Patch == rev {
			return p.Expr
		}
	}
	for _, p := range pairs {
		if p.Patch == Baseline {
			return p.Expr
		}
	}
	return pairs[0].Expr
}
