package state

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/speakeasy-api/diffvm/prog"
)

// DumpStack writes one line per frame, innermost first:
//
//	#0 00000042 in callee(n=(w32 3), p=symbolic) at file.c:12
func (s *ExecutionState) DumpStack(w io.Writer, info prog.InfoTable) error {
	target := s.PrevPC
	for idx := len(s.Stack) - 1; idx >= 0; idx-- {
		sf := &s.Stack[idx]
		ii := info.InfoFor(target)

		var b strings.Builder
		fmt.Fprintf(&b, "\t#%d%08d in %s(", len(s.Stack)-1-idx, ii.AssemblyLine, sf.Func.Name)
		for i, name := range sf.Func.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if name != "" {
				b.WriteString(name)
				b.WriteByte('=')
			}
			if v := sf.Locals[i]; v != nil && v.IsConstant() {
				b.WriteString(v.String())
			} else {
				b.WriteString("symbolic")
			}
		}
		b.WriteByte(')')
		if ii.File != "" {
			fmt.Fprintf(&b, " at %s:%d", ii.File, ii.Line)
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		target = sf.Caller
	}
	return nil
}

// FunctionStateInfo collects diagnostic text per function. It is copied when
// a state forks.
type FunctionStateInfo struct {
	info map[*prog.Function]string
}

func NewFunctionStateInfo() *FunctionStateInfo {
	return &FunctionStateInfo{info: map[*prog.Function]string{}}
}

// AddStateInfo appends text to the entry of fn.
func (fi *FunctionStateInfo) AddStateInfo(fn *prog.Function, text string) {
	fi.info[fn] += text
}

// Copy returns an independent copy.
func (fi *FunctionStateInfo) Copy() *FunctionStateInfo {
	c := NewFunctionStateInfo()
	for fn, text := range fi.info {
		c.info[fn] = text
	}
	return c
}

// Print writes the entries ordered by function name.
func (fi *FunctionStateInfo) Print(w io.Writer) error {
	fns := make([]*prog.Function, 0, len(fi.info))
	for fn := range fi.info {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	for _, fn := range fns {
		if _, err := fmt.Fprintf(w, "%s:\n%s", fn.Name, fi.info[fn]); err != nil {
			return err
		}
	}
	return nil
}
