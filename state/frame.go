package state

import (
	"github.com/speakeasy-api/diffvm/expr"
	"github.com/speakeasy-api/diffvm/prog"
)

// Access records the last offset and value of a read or write to memory owned
// by another frame.
type Access struct {
	Offset *expr.Expr
	Value  *expr.Expr
}

// StackFrame is one activation of a function. Locals holds one value per
// register; a nil entry has not been written.
type StackFrame struct {
	Caller  *prog.Instruction
	Func    *prog.Function
	Locals  []*expr.Expr
	Allocas []*MemoryObject
	Varargs *MemoryObject

	NonLocalsRead    map[*MemoryObject]Access
	NonLocalsWritten map[*MemoryObject]Access
}

// NewStackFrame returns a frame for fn called from caller (nil for the entry
// frame).
func NewStackFrame(caller *prog.Instruction, fn *prog.Function) StackFrame {
	return StackFrame{
		Caller:           caller,
		Func:             fn,
		Locals:           make([]*expr.Expr, fn.NumRegisters),
		NonLocalsRead:    map[*MemoryObject]Access{},
		NonLocalsWritten: map[*MemoryObject]Access{},
	}
}

func (sf *StackFrame) clone() StackFrame {
	c := *sf
	c.Locals = make([]*expr.Expr, len(sf.Locals))
	copy(c.Locals, sf.Locals)
	c.Allocas = append([]*MemoryObject(nil), sf.Allocas...)
	c.NonLocalsRead = make(map[*MemoryObject]Access, len(sf.NonLocalsRead))
	for mo, a := range sf.NonLocalsRead {
		c.NonLocalsRead[mo] = a
	}
	c.NonLocalsWritten = make(map[*MemoryObject]Access, len(sf.NonLocalsWritten))
	for mo, a := range sf.NonLocalsWritten {
		c.NonLocalsWritten[mo] = a
	}
	return c
}
