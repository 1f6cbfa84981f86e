package explore

import (
	"github.com/speakeasy-api/diffvm/state"
)

// stateWorklist manages the states waiting to be stepped.
type stateWorklist struct {
	states  []*state.ExecutionState
	pending map[uint64][]*state.ExecutionState // fingerprint → queued states
	fps     map[*state.ExecutionState]uint64
	merge   bool
}

// newStateWorklist creates a new worklist. When merge is set, queued states
// are indexed by fingerprint so that tryMerge can find partners.
func newStateWorklist(merge bool) *stateWorklist {
	return &stateWorklist{
		states:  make([]*state.ExecutionState, 0, 32),
		pending: make(map[uint64][]*state.ExecutionState),
		fps:     make(map[*state.ExecutionState]uint64),
		merge:   merge,
	}
}

// push adds a state to the worklist.
func (w *stateWorklist) push(st *state.ExecutionState) {
	w.states = append(w.states, st)
	if w.merge {
		fp := fingerprint(st)
		w.fps[st] = fp
		w.pending[fp] = append(w.pending[fp], st)
	}
}

// pop removes and returns the most recently pushed state (depth-first).
func (w *stateWorklist) pop() *state.ExecutionState {
	if len(w.states) == 0 {
		return nil
	}
	st := w.states[len(w.states)-1]
	w.states[len(w.states)-1] = nil
	w.states = w.states[:len(w.states)-1]
	w.forget(st)
	return st
}

func (w *stateWorklist) forget(st *state.ExecutionState) {
	fp, ok := w.fps[st]
	if !ok {
		return
	}
	delete(w.fps, st)
	bucket := w.pending[fp]
	for i, s := range bucket {
		if s == st {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(w.pending, fp)
	} else {
		w.pending[fp] = bucket
	}
}

// tryMerge offers st to the queued states with the same fingerprint. It
// returns the state that absorbed st, if any; st itself is never a partner.
func (w *stateWorklist) tryMerge(st *state.ExecutionState) (*state.ExecutionState, bool) {
	if !w.merge {
		return nil, false
	}
	for _, cand := range w.pending[fingerprint(st)] {
		if cand == st {
			continue
		}
		if cand.Merge(st) {
			return cand, true
		}
	}
	return nil, false
}

// isEmpty checks if worklist is empty.
func (w *stateWorklist) isEmpty() bool {
	return len(w.states) == 0
}

func (w *stateWorklist) size() int {
	return len(w.states)
}
