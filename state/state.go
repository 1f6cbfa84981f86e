// Package state holds the per-path execution state of the symbolic VM:
// program counter, call stack, memory, path constraints and symbolic inputs.
// A state is forked with Branch and two states at the same point can be
// joined with Merge.
package state

import (
	"fmt"
	"sync/atomic"

	"github.com/speakeasy-api/diffvm/constraints"
	"github.com/speakeasy-api/diffvm/expr"
	"github.com/speakeasy-api/diffvm/pkg/logging"
	"github.com/speakeasy-api/diffvm/prog"
)

var nextStateID atomic.Uint32

// Symbolic binds a memory object to the array naming its symbolic contents.
type Symbolic struct {
	Object *MemoryObject
	Array  *expr.Array
}

// ExecutionState is one path through the program.
type ExecutionState struct {
	PC     *prog.Instruction
	PrevPC *prog.Instruction
	Stack  []StackFrame

	// IncomingBBIndex is the predecessor block index for phi resolution.
	IncomingBBIndex int

	// Depth is the number of forks on the way to this state.
	Depth uint32

	AddressSpace *AddressSpace
	Constraints  *constraints.Set

	Symbolics      []Symbolic
	CexPreferences []*expr.Expr
	ArrayNames     map[string]struct{}

	CoveredNew          bool
	CoveredLines        map[string]map[uint]struct{}
	SteppedInstructions uint64
	ForkDisabled        bool

	FunctionStateInfo *FunctionStateInfo

	id         uint32
	logger     logging.Logger
	debugMerge bool
}

// Option configures a new state.
type Option func(*ExecutionState)

// WithLogger sets the logger used by the state.
func WithLogger(l logging.Logger) Option {
	return func(s *ExecutionState) { s.logger = l }
}

// WithMergeDebug makes Merge log its decisions at debug level.
func WithMergeDebug(enabled bool) Option {
	return func(s *ExecutionState) { s.debugMerge = enabled }
}

// New returns the initial state for a run starting at the entry of fn.
func New(fn *prog.Function, opts ...Option) *ExecutionState {
	s := &ExecutionState{
		PC:                fn.Entry(),
		PrevPC:            fn.Entry(),
		AddressSpace:      NewAddressSpace(),
		Constraints:       constraints.NewSet(),
		ArrayNames:        map[string]struct{}{},
		CoveredLines:      map[string]map[uint]struct{}{},
		FunctionStateInfo: NewFunctionStateInfo(),
		id:                nextStateID.Add(1),
		logger:            logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.PushFrame(nil, fn)
	return s
}

// ID is unique among the states of the process.
func (s *ExecutionState) ID() uint32 { return s.id }

func (s *ExecutionState) String() string {
	return fmt.Sprintf("state#%d@%v", s.id, s.PC)
}

// clone copies s. Memory is shared copy-on-write.
func (s *ExecutionState) clone() *ExecutionState {
	c := *s
	c.Stack = make([]StackFrame, len(s.Stack))
	for i := range s.Stack {
		c.Stack[i] = s.Stack[i].clone()
	}
	c.AddressSpace = s.AddressSpace.clone()
	c.Constraints = s.Constraints.Clone()
	c.Symbolics = append([]Symbolic(nil), s.Symbolics...)
	c.CexPreferences = append([]*expr.Expr(nil), s.CexPreferences...)
	c.ArrayNames = make(map[string]struct{}, len(s.ArrayNames))
	for n := range s.ArrayNames {
		c.ArrayNames[n] = struct{}{}
	}
	c.CoveredLines = make(map[string]map[uint]struct{}, len(s.CoveredLines))
	for file, lines := range s.CoveredLines {
		ls := make(map[uint]struct{}, len(lines))
		for l := range lines {
			ls[l] = struct{}{}
		}
		c.CoveredLines[file] = ls
	}
	c.FunctionStateInfo = s.FunctionStateInfo.Copy()
	return &c
}

// Branch forks s. It increments the fork depth of s and returns a copy with a
// new id and cleared coverage bookkeeping.
func (s *ExecutionState) Branch() *ExecutionState {
	s.Depth++

	f := s.clone()
	f.id = nextStateID.Add(1)
	f.CoveredNew = false
	f.CoveredLines = map[string]map[uint]struct{}{}
	return f
}

// PushFrame enters fn from caller.
func (s *ExecutionState) PushFrame(caller *prog.Instruction, fn *prog.Function) {
	s.Stack = append(s.Stack, NewStackFrame(caller, fn))
}

// PopFrame leaves the current function, unbinding its allocas.
func (s *ExecutionState) PopFrame() {
	if len(s.Stack) == 0 {
		panic("state: pop of empty stack")
	}
	sf := &s.Stack[len(s.Stack)-1]
	for _, mo := range sf.Allocas {
		s.AddressSpace.UnbindObject(mo)
	}
	s.Stack = s.Stack[:len(s.Stack)-1]
}

// Frame returns the innermost frame.
func (s *ExecutionState) Frame() *StackFrame {
	if len(s.Stack) == 0 {
		panic("state: empty stack")
	}
	return &s.Stack[len(s.Stack)-1]
}

// AddSymbolic records that mo holds the symbolic bytes of array.
func (s *ExecutionState) AddSymbolic(mo *MemoryObject, array *expr.Array) {
	s.Symbolics = append(s.Symbolics, Symbolic{Object: mo, Array: array})
	s.ArrayNames[array.Name()] = struct{}{}
}

// AddConstraint conjoins e to the path condition.
func (s *ExecutionState) AddConstraint(e *expr.Expr) {
	constraints.NewManager(s.Constraints).AddConstraint(e)
}

// AddCexPreference records a condition the test generator should prefer to
// satisfy. Duplicates are ignored.
func (s *ExecutionState) AddCexPreference(e *expr.Expr) {
	for _, p := range s.CexPreferences {
		if p == e {
			return
		}
	}
	s.CexPreferences = append(s.CexPreferences, e)
}

// CoverLine marks file:line as executed and reports whether it is new.
func (s *ExecutionState) CoverLine(file string, line uint) bool {
	lines, ok := s.CoveredLines[file]
	if !ok {
		lines = map[uint]struct{}{}
		s.CoveredLines[file] = lines
	}
	if _, ok := lines[line]; ok {
		return false
	}
	lines[line] = struct{}{}
	s.CoveredNew = true
	return true
}

// Symbolic object helpers for interpreters.

// MakeSymbolic binds a fresh symbolic array named name over a new object of
// size bytes at addr.
func (s *ExecutionState) MakeSymbolic(name string, addr, size uint64) (*MemoryObject, *expr.Array) {
	mo := NewMemoryObject(addr, size, name)
	arr := expr.NewArray(name, size)
	s.AddressSpace.BindObject(mo, NewSymbolicObjectState(mo, arr))
	s.AddSymbolic(mo, arr)
	return mo, arr
}

// Write stores v at a constant offset of mo, copying the object state first if
// it is shared.
func (s *ExecutionState) Write(mo *MemoryObject, offset uint64, v *expr.Expr) {
	os := s.AddressSpace.FindObject(mo)
	if os == nil {
		panic("state: write to unbound object " + mo.Name)
	}
	s.AddressSpace.GetWriteable(mo, os).Write(offset, v)
}
