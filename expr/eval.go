package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbound is returned when a read reaches a symbolic array without an
	// assignment.
	ErrUnbound = errors.New("expr: array has no assignment")
	// ErrUnresolvedChoice is returned when a version choice without a
	// condition is evaluated and no revision was selected.
	ErrUnresolvedChoice = errors.New("expr: version choice without revision")
)

// Evaluator reduces expressions to constants under an assignment of bytes to
// symbolic arrays. Results are memoized per node, so an Evaluator must not be
// reused after its bindings change.
type Evaluator struct {
	bindings    map[*Array][]byte
	revision    PatchID
	hasRevision bool
	memo        map[*Expr]*Expr
}

// NewEvaluator returns an evaluator for the given assignment.
func NewEvaluator(bindings map[*Array][]byte) *Evaluator {
	return &Evaluator{
		bindings: bindings,
		memo:     map[*Expr]*Expr{},
	}
}

// WithRevision returns an evaluator over the same assignment that resolves
// version choices in favor of rev: the branch tagged rev, else the baseline
// branch, else the true branch.
func (ev *Evaluator) WithRevision(rev PatchID) *Evaluator {
	return &Evaluator{
		bindings:    ev.bindings,
		revision:    rev,
		hasRevision: true,
		memo:        map[*Expr]*Expr{},
	}
}

// Value evaluates e and returns the constant value.
func (ev *Evaluator) Value(e *Expr) (uint64, error) {
	c, err := ev.Evaluate(e)
	if err != nil {
		return 0, err
	}
	return c.value, nil
}

// Evaluate reduces e to a Constant.
func (ev *Evaluator) Evaluate(e *Expr) (*Expr, error) {
	if e.IsConstant() {
		return e, nil
	}
	if c, ok := ev.memo[e]; ok {
		return c, nil
	}
	c, err := ev.evaluate(e)
	if err != nil {
		return nil, err
	}
	if !c.IsConstant() {
		return nil, fmt.Errorf("expr: %s did not reduce to a constant", e.kind)
	}
	ev.memo[e] = c
	return c, nil
}

func (ev *Evaluator) evaluate(e *Expr) (*Expr, error) {
	switch e.kind {
	case KindRead:
		return ev.evaluateRead(e)

	case KindTernary:
		cond, err := ev.Evaluate(e.kids[0])
		if err != nil {
			return nil, err
		}
		if cond.value == 1 {
			return ev.Evaluate(e.kids[1])
		}
		return ev.Evaluate(e.kids[2])

	case KindVersionChoice:
		if ev.hasRevision {
			switch {
			case e.patches[0] == ev.revision:
				return ev.Evaluate(e.kids[1])
			case e.patches[1] == ev.revision:
				return ev.Evaluate(e.kids[2])
			case e.patches[0] == PatchBaseline:
				return ev.Evaluate(e.kids[1])
			case e.patches[1] == PatchBaseline:
				return ev.Evaluate(e.kids[2])
			}
			return ev.Evaluate(e.kids[1])
		}
		if e.kids[0] == nil {
			return nil, ErrUnresolvedChoice
		}
		cond, err := ev.Evaluate(e.kids[0])
		if err != nil {
			return nil, err
		}
		if cond.value == 1 {
			return ev.Evaluate(e.kids[1])
		}
		return ev.Evaluate(e.kids[2])
	}

	kids := make([]*Expr, e.nkids)
	for i := range kids {
		k, err := ev.Evaluate(e.kids[i])
		if err != nil {
			return nil, err
		}
		kids[i] = k
	}
	return Rebuild(e, kids...), nil
}

func (ev *Evaluator) evaluateRead(e *Expr) (*Expr, error) {
	index, err := ev.Evaluate(e.kids[0])
	if err != nil {
		return nil, err
	}
	for un := e.updates.Head; un != nil; un = un.next {
		ui, err := ev.Evaluate(un.index)
		if err != nil {
			return nil, err
		}
		if ui.value == index.value {
			return ev.Evaluate(un.value)
		}
	}

	root := e.updates.Root
	if index.value >= root.size {
		return nil, fmt.Errorf("expr: read of %s at %d out of bounds", root.name, index.value)
	}
	if root.IsConstantArray() {
		return root.constants[index.value], nil
	}
	data, ok := ev.bindings[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnbound, root.name)
	}
	if index.value >= uint64(len(data)) {
		return Constant(0, root.rng), nil
	}
	return Constant(uint64(data[index.value]), root.rng), nil
}
