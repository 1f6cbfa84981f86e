package state

import (
	"github.com/speakeasy-api/diffvm/constraints"
	"github.com/speakeasy-api/diffvm/expr"
)

// Merge folds b into s when both are at the same point of the same path
// structure and reports whether it did. On success s represents both paths:
// registers and memory bytes that differ become selects on the path condition
// unique to s, and the constraints become the common prefix plus the
// disjunction of the two suffixes. b is not modified. Merge never consults a
// solver.
func (s *ExecutionState) Merge(b *ExecutionState) bool {
	log := s.logger.With(map[string]any{"a": s.id, "b": b.id})
	if s.debugMerge {
		log.Debugf("attempting merge")
	}

	if s.PC != b.PC {
		return false
	}
	if !sameSymbolics(s.Symbolics, b.Symbolics) {
		return false
	}
	if len(s.Stack) != len(b.Stack) {
		return false
	}
	for i := range s.Stack {
		if s.Stack[i].Caller != b.Stack[i].Caller || s.Stack[i].Func != b.Stack[i].Func {
			return false
		}
	}

	var common, aSuffix, bSuffix []*expr.Expr
	for _, c := range s.Constraints.All() {
		if b.Constraints.Contains(c) {
			common = append(common, c)
		} else {
			aSuffix = append(aSuffix, c)
		}
	}
	for _, c := range b.Constraints.All() {
		if !s.Constraints.Contains(c) {
			bSuffix = append(bSuffix, c)
		}
	}
	if s.debugMerge {
		log.Debugf("constraint prefix: %v", common)
		log.Debugf("A suffix: %v", aSuffix)
		log.Debugf("B suffix: %v", bSuffix)
		log.Debugf("checking object states")
	}

	// Addresses must resolve identically: the same objects bound on both
	// sides. Objects whose states differ were written on at least one side.
	if s.AddressSpace.Len() != b.AddressSpace.Len() {
		if s.debugMerge {
			log.Debugf("mappings differ")
		}
		return false
	}
	var mutated []*MemoryObject
	for _, mo := range s.AddressSpace.Objects() {
		bos := b.AddressSpace.FindObject(mo)
		if bos == nil {
			if s.debugMerge {
				log.Debugf("B misses binding for: %d", mo.ID)
			}
			return false
		}
		if s.AddressSpace.FindObject(mo) != bos {
			if s.debugMerge {
				log.Debugf("mutated: %d", mo.ID)
			}
			mutated = append(mutated, mo)
		}
	}

	inA := constraints.Conjunction(aSuffix)
	inB := constraints.Conjunction(bSuffix)

	for i := range s.Stack {
		af, bf := &s.Stack[i], &b.Stack[i]
		for r := range af.Locals {
			av, bv := af.Locals[r], bf.Locals[r]
			// A register live on only one side cannot be read at this point.
			if av == nil || bv == nil {
				continue
			}
			af.Locals[r] = expr.Ternary(inA, av, bv)
		}
	}

	for _, mo := range mutated {
		os := s.AddressSpace.FindObject(mo)
		other := b.AddressSpace.FindObject(mo)
		if os.ReadOnly {
			panic("state: object mutated but not writable in merging state")
		}
		wos := s.AddressSpace.GetWriteable(mo, os)
		for i := uint64(0); i < mo.Size; i++ {
			wos.Write8(i, expr.Ternary(inA, wos.Read8(i), other.Read8(i)))
		}
	}

	merged := constraints.NewSet()
	m := constraints.NewManager(merged)
	for _, c := range common {
		m.AddConstraint(c)
	}
	m.AddConstraint(expr.Or(inA, inB))
	s.Constraints = merged
	return true
}

func sameSymbolics(a, b []Symbolic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
