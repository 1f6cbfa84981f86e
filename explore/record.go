package explore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/speakeasy-api/diffvm/differ"
	"github.com/speakeasy-api/diffvm/expr"
	"github.com/speakeasy-api/diffvm/patch"
	"github.com/speakeasy-api/diffvm/pkg/corpus"
	"github.com/speakeasy-api/diffvm/pkg/ktest"
	"github.com/speakeasy-api/diffvm/pkg/logging"
	"github.com/speakeasy-api/diffvm/solver"
	"github.com/speakeasy-api/diffvm/state"
)

var (
	// ErrInfeasible is returned by Record for a state whose path condition
	// has no solution.
	ErrInfeasible = errors.New("explore: path condition is unsatisfiable")
	// ErrPatchDepth is returned when a value nests more version choices than
	// Options.MaxPatchDepth allows.
	ErrPatchDepth = errors.New("explore: version choices nested too deeply")
)

// stdoutName is the object holding what the program wrote to stdout.
const stdoutName = "stdout"

// ProjectOutput returns the values v takes under revA and revB.
func ProjectOutput(v *expr.Expr, revA, revB expr.PatchID) (a, b *expr.Expr) {
	return patch.Project(v, revA), patch.Project(v, revB)
}

// Recorder turns terminated states into test cases.
type Recorder struct {
	solver solver.Solver
	opts   Options
	store  *corpus.Store
	logger logging.Logger
	args   []string
}

// NewRecorder returns a Recorder. store may be nil, in which case test cases
// are only returned. args is the argument vector written to every seed.
func NewRecorder(slv solver.Solver, opts Options, store *corpus.Store, args []string, logger logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Recorder{
		solver: solver.WithTimeout(slv, opts.SolverTimeout.Duration()),
		opts:   opts,
		store:  store,
		logger: logger,
		args:   args,
	}
}

// Record solves for concrete inputs of st and builds its test case. Divergent
// test cases are stored in the corpus when the Recorder has one.
func (r *Recorder) Record(ctx context.Context, st *state.ExecutionState) (*corpus.TestCase, error) {
	arrays := make([]*expr.Array, len(st.Symbolics))
	for i, s := range st.Symbolics {
		arrays[i] = s.Array
	}
	values, v, err := r.solver.Model(ctx, st.Constraints, arrays)
	if err != nil {
		return nil, err
	}
	switch v {
	case solver.Unknown:
		return nil, fmt.Errorf("%w: model of %v", ErrSolverUnknown, st)
	case solver.Unsat:
		return nil, fmt.Errorf("%w: %v", ErrInfeasible, st)
	}

	bindings := make(map[*expr.Array][]byte, len(arrays))
	seed := &ktest.File{
		Version:    ktest.Version,
		Args:       append([]string(nil), r.args...),
		SymArgvs:   0,
		SymArgvLen: 0,
	}
	d := differ.New(r.opts.RevA, r.opts.RevB)
	args := map[uint8]string{}
	for i, s := range st.Symbolics {
		bindings[s.Array] = values[i]
		seed.Objects = append(seed.Objects, ktest.Object{Name: s.Object.Name, Bytes: values[i]})
		if idx, ok := differ.ArgIndex(s.Object.Name); ok {
			arg := values[i]
			if n := bytes.IndexByte(arg, 0); n >= 0 {
				arg = arg[:n]
			}
			args[idx] = string(arg)
			seed.SymArgvs++
			seed.SymArgvLen = max(seed.SymArgvLen, uint32(len(values[i])))
		}
	}
	d.AddArgs(args)

	ev := expr.NewEvaluator(bindings)
	divergent := false
	for _, mo := range st.AddressSpace.Objects() {
		isOut := differ.IsSymOut(mo.Name)
		if !isOut && mo.Name != stdoutName {
			continue
		}
		a, b, err := r.outputs(ev, st.AddressSpace.FindObject(mo))
		if err != nil {
			if errors.Is(err, ErrPatchDepth) {
				r.logger.Warnf("Skipping output %s of %v: %v", mo.Name, st, err)
				continue
			}
			return nil, fmt.Errorf("output %s: %w", mo.Name, err)
		}
		if !bytes.Equal(a, b) {
			divergent = true
		}
		if isOut {
			if err := d.AddOutput(mo.Name, a, b); err != nil {
				return nil, err
			}
		} else {
			d.SetStdout(r.opts.RevA, a)
			d.SetStdout(r.opts.RevB, b)
		}
	}

	tc := &corpus.TestCase{
		StateID:   st.ID(),
		Divergent: divergent,
		Seed:      seed,
		Diff:      d,
	}
	if divergent {
		r.logger.With(map[string]any{
			"state": st.ID(),
		}).Infof("Divergent test case %s", d)
		if r.store != nil {
			stored, err := r.store.Put(ctx, tc)
			if err != nil {
				return nil, err
			}
			if !stored {
				r.logger.Debugf("Test case of %v already in corpus", st)
			}
		}
	}
	return tc, nil
}

// outputs evaluates every byte of os under both revisions.
func (r *Recorder) outputs(ev *expr.Evaluator, os *state.ObjectState) (a, b []byte, err error) {
	n := os.Size()
	a = make([]byte, n)
	b = make([]byte, n)
	evA, evB := ev.WithRevision(r.opts.RevA), ev.WithRevision(r.opts.RevB)
	for i := uint64(0); i < n; i++ {
		v := os.Read8(i)
		if r.opts.MaxPatchDepth > 0 && patch.Depth(v) > r.opts.MaxPatchDepth {
			return nil, nil, fmt.Errorf("%w: byte %d has depth %d", ErrPatchDepth, i, patch.Depth(v))
		}
		// Choices inside update lists survive projection.
		va, vb := ProjectOutput(v, r.opts.RevA, r.opts.RevB)
		ca, err := evA.Value(va)
		if err != nil {
			return nil, nil, err
		}
		cb, err := evB.Value(vb)
		if err != nil {
			return nil, nil, err
		}
		a[i], b[i] = byte(ca), byte(cb)
	}
	return a, b, nil
}
