// Package explore drives symbolic execution over a worklist of states. An
// external Stepper interprets instructions; the Explorer decides branch
// feasibility, merges states that meet at the same point and hands
// terminated states to a Recorder.
package explore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/speakeasy-api/diffvm/expr"
	"github.com/speakeasy-api/diffvm/pkg/logging"
	"github.com/speakeasy-api/diffvm/solver"
	"github.com/speakeasy-api/diffvm/state"
)

var (
	// ErrSolverUnknown is returned when the solver cannot decide whether a
	// branch is feasible.
	ErrSolverUnknown = errors.New("explore: solver could not decide feasibility")
	// ErrIterationLimit is returned by Run when MaxIterations is exceeded.
	ErrIterationLimit = errors.New("explore: iteration limit exceeded")
)

// Stepper executes one instruction of st. It returns the states to continue
// with; an empty result terminates st.
type Stepper interface {
	Step(ctx context.Context, ex *Explorer, st *state.ExecutionState) ([]*state.ExecutionState, error)
}

// StepperFunc adapts a function to the Stepper interface.
type StepperFunc func(ctx context.Context, ex *Explorer, st *state.ExecutionState) ([]*state.ExecutionState, error)

func (f StepperFunc) Step(ctx context.Context, ex *Explorer, st *state.ExecutionState) ([]*state.ExecutionState, error) {
	return f(ctx, ex, st)
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Iterations int
	Forked     int
	Merged     int
	Terminated int
	// Recorded counts test cases produced by the recorder.
	Recorded int
	// Skipped counts terminated states the recorder could not solve.
	Skipped int
}

// Explorer runs states to completion.
type Explorer struct {
	stepper  Stepper
	solver   solver.Solver
	opts     Options
	logger   logging.Logger
	metrics  *Metrics
	recorder *Recorder

	runID    string
	worklist *stateWorklist
	result   *Result
}

// Option configures an Explorer.
type Option func(*Explorer)

// WithLogger overrides the logger built from Options.LogLevel.
func WithLogger(l logging.Logger) Option {
	return func(ex *Explorer) { ex.logger = l }
}

// WithRegisterer registers the exploration metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(ex *Explorer) { ex.metrics = NewMetrics(reg) }
}

// WithRecorder hands terminated states to r.
func WithRecorder(r *Recorder) Option {
	return func(ex *Explorer) { ex.recorder = r }
}

// NewExplorer creates an Explorer. Solver queries are bounded by
// opts.SolverTimeout.
func NewExplorer(stepper Stepper, slv solver.Solver, opts Options, options ...Option) *Explorer {
	var logger logging.Logger
	if opts.LogLevel != "" {
		logger = logging.NewWithOptions(os.Stderr, logging.Options{
			Level:      logging.ParseLevel(opts.LogLevel),
			TimeFormat: opts.LogTimeFormat,
		})
	} else {
		logger = logging.Nop()
	}

	ex := &Explorer{
		stepper: stepper,
		solver:  solver.WithTimeout(slv, opts.SolverTimeout.Duration()),
		opts:    opts,
		logger:  logger,
	}
	for _, o := range options {
		o(ex)
	}
	if ex.metrics == nil {
		ex.metrics = NewMetrics(nil)
	}
	return ex
}

// Options returns the configuration of ex.
func (ex *Explorer) Options() Options { return ex.opts }

// Logger returns the logger of ex.
func (ex *Explorer) Logger() logging.Logger { return ex.logger }

// Metrics returns the counters of ex.
func (ex *Explorer) Metrics() *Metrics { return ex.metrics }

// StateOptions returns the options a root state should be created with: the
// logger of ex and merge logging when DebugLogStateMerge is set.
func (ex *Explorer) StateOptions() []state.Option {
	return []state.Option{
		state.WithLogger(ex.logger),
		state.WithMergeDebug(ex.opts.DebugLogStateMerge),
	}
}

func (ex *Explorer) mayBeTrue(ctx context.Context, st *state.ExecutionState, cond *expr.Expr) (solver.Validity, error) {
	v, err := solver.MayBeTrue(ctx, ex.solver, st.Constraints, cond)
	if err != nil {
		return v, err
	}
	ex.metrics.observeQuery(v)
	return v, nil
}

// canFork reports whether st may split in two.
func (ex *Explorer) canFork(st *state.ExecutionState) bool {
	if st.ForkDisabled {
		return false
	}
	if ex.opts.MaxForkDepth > 0 && st.Depth >= ex.opts.MaxForkDepth {
		return false
	}
	if ex.worklist != nil && ex.opts.MaxStates > 0 && ex.worklist.size()+1 >= ex.opts.MaxStates {
		return false
	}
	return true
}

// Fork splits st on the boolean cond. It returns the state in which cond
// holds and the state in which it does not; either is nil when infeasible.
// When only one side is feasible st itself is returned for it. When both are
// feasible st takes the true side and a branched copy the false side, unless
// forking is not allowed, in which case only the true side is kept.
func (ex *Explorer) Fork(ctx context.Context, st *state.ExecutionState, cond *expr.Expr) (*state.ExecutionState, *state.ExecutionState, error) {
	if cond.Width() != expr.Bool {
		panic(fmt.Sprintf("explore: fork on non-boolean expression of width %d", cond.Width()))
	}
	if cond.IsTrue() {
		return st, nil, nil
	}
	if cond.IsFalse() {
		return nil, st, nil
	}

	onTrue, err := ex.mayBeTrue(ctx, st, cond)
	if err != nil {
		return nil, nil, err
	}
	notCond := expr.Not(cond)
	onFalse, err := ex.mayBeTrue(ctx, st, notCond)
	if err != nil {
		return nil, nil, err
	}
	if onTrue == solver.Unknown || onFalse == solver.Unknown {
		return nil, nil, fmt.Errorf("%w: branch at %v", ErrSolverUnknown, st.PC)
	}

	switch {
	case onTrue == solver.Sat && onFalse == solver.Sat:
		if !ex.canFork(st) {
			ex.logger.With(map[string]any{
				"exec":  ex.runID,
				"state": st.ID(),
				"depth": st.Depth,
			}).Debugf("Fork refused, following true branch")
			st.AddConstraint(cond)
			return st, nil, nil
		}
		falseState := st.Branch()
		st.AddConstraint(cond)
		falseState.AddConstraint(notCond)
		ex.metrics.StatesForked.Inc()
		if ex.result != nil {
			ex.result.Forked++
		}
		ex.logger.With(map[string]any{
			"exec":   ex.runID,
			"state":  st.ID(),
			"forked": falseState.ID(),
			"pc":     st.PC,
		}).Debugf("Forked state")
		return st, falseState, nil
	case onTrue == solver.Sat:
		st.AddConstraint(cond)
		return st, nil, nil
	case onFalse == solver.Sat:
		st.AddConstraint(notCond)
		return nil, st, nil
	default:
		return nil, nil, nil
	}
}

// Run explores from root until no state is left, the context is cancelled or
// the iteration limit is reached. The returned Result is valid even when an
// error is returned.
func (ex *Explorer) Run(ctx context.Context, root *state.ExecutionState) (*Result, error) {
	ex.runID = uuid.NewString()
	ex.worklist = newStateWorklist(ex.opts.EnableMerge)
	ex.result = &Result{RunID: ex.runID}
	defer func() {
		ex.worklist = nil
	}()
	res := ex.result

	ex.worklist.push(root)
	ex.logger.With(map[string]any{
		"exec":  ex.runID,
		"merge": ex.opts.EnableMerge,
	}).Infof("Starting exploration")

	for !ex.worklist.isEmpty() {
		res.Iterations++
		if ex.opts.MaxIterations > 0 && res.Iterations > ex.opts.MaxIterations {
			return res, fmt.Errorf("%w (%d)", ErrIterationLimit, ex.opts.MaxIterations)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		st := ex.worklist.pop()
		ex.metrics.WorklistSize.Set(float64(ex.worklist.size()))

		succs, err := ex.stepper.Step(ctx, ex, st)
		if err != nil {
			return res, fmt.Errorf("step %v: %w", st, err)
		}
		st.SteppedInstructions++

		if len(succs) == 0 {
			if err := ex.terminate(ctx, st); err != nil {
				return res, err
			}
			continue
		}

		for _, next := range succs {
			if ex.opts.EnableMerge {
				ex.metrics.MergeAttempts.Inc()
				if into, ok := ex.worklist.tryMerge(next); ok {
					ex.metrics.StatesMerged.Inc()
					res.Merged++
					ex.logger.With(map[string]any{
						"exec":  ex.runID,
						"state": next.ID(),
						"into":  into.ID(),
					}).Debugf("Merged state")
					continue
				}
			}
			ex.worklist.push(next)
		}
		ex.metrics.WorklistSize.Set(float64(ex.worklist.size()))
	}

	ex.logger.With(map[string]any{
		"exec":       ex.runID,
		"iterations": res.Iterations,
		"forked":     res.Forked,
		"merged":     res.Merged,
		"terminated": res.Terminated,
		"recorded":   res.Recorded,
	}).Infof("Exploration completed")
	return res, nil
}

func (ex *Explorer) terminate(ctx context.Context, st *state.ExecutionState) error {
	ex.metrics.StatesTerminated.Inc()
	ex.result.Terminated++
	ex.logger.With(map[string]any{
		"exec":  ex.runID,
		"state": st.ID(),
		"pc":    st.PrevPC,
	}).Debugf("Terminated state")

	if ex.recorder == nil {
		return nil
	}
	if _, err := ex.recorder.Record(ctx, st); err != nil {
		if errors.Is(err, ErrInfeasible) || errors.Is(err, ErrSolverUnknown) {
			ex.result.Skipped++
			ex.logger.With(map[string]any{
				"exec":  ex.runID,
				"state": st.ID(),
			}).Warnf("No test case: %v", err)
			return nil
		}
		return fmt.Errorf("record %v: %w", st, err)
	}
	ex.result.Recorded++
	return nil
}
