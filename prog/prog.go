// Package prog is the program model the execution state refers to:
// functions, their instructions and the source locations of those
// instructions. Instruction semantics belong to the interpreter.
package prog

import "fmt"

// Function is a unit of code with a fixed register file. Arguments occupy the
// first len(Args) registers.
type Function struct {
	Name         string
	Args         []string
	NumRegisters int
	Instructions []*Instruction
}

// NewFunction returns a function with numRegisters registers and the given
// instruction texts, linked in order.
func NewFunction(name string, args []string, numRegisters int, texts ...string) *Function {
	if numRegisters < len(args) {
		panic(fmt.Sprintf("prog: %s has %d args but %d registers", name, len(args), numRegisters))
	}
	f := &Function{
		Name:         name,
		Args:         args,
		NumRegisters: numRegisters,
	}
	for i, text := range texts {
		f.Instructions = append(f.Instructions, &Instruction{
			Function: f,
			Index:    i,
			Dest:     -1,
			Text:     text,
		})
	}
	return f
}

// Entry is the first instruction, or nil for an empty function.
func (f *Function) Entry() *Instruction {
	if len(f.Instructions) == 0 {
		return nil
	}
	return f.Instructions[0]
}

func (f *Function) String() string { return f.Name }

// Instruction is one step of a function.
type Instruction struct {
	Function *Function
	Index    int
	// Dest is the register written by the instruction, or -1.
	Dest int
	Text string
	Info InstructionInfo
}

// Next returns the instruction after i in its function, or nil.
func (i *Instruction) Next() *Instruction {
	if i.Index+1 >= len(i.Function.Instructions) {
		return nil
	}
	return i.Function.Instructions[i.Index+1]
}

func (i *Instruction) String() string {
	return fmt.Sprintf("%s#%d", i.Function.Name, i.Index)
}

// InstructionInfo is the source location of an instruction.
type InstructionInfo struct {
	ID           uint
	File         string
	Line         uint
	AssemblyLine uint
}

// InfoTable maps instructions to their locations.
type InfoTable interface {
	InfoFor(inst *Instruction) InstructionInfo
}

// InlineInfo is an InfoTable reading the Info field of each instruction.
type InlineInfo struct{}

func (InlineInfo) InfoFor(inst *Instruction) InstructionInfo {
	if inst == nil {
		return InstructionInfo{}
	}
	return inst.Info
}
