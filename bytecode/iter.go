package bytecode

import (
	"fmt"

	"github.com/taskvm/taskvm/op"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset int
	Op     op.Code
	Int    int32   // operand of Int instructions
	Float  float64 // operand of Float instructions
}

// Size returns the encoded size of the instruction in bytes.
func (i Instruction) Size() int {
	return op.GetInfo(i.Op).Size()
}

// InstructionIter iterates over instructions in a Code object.
type InstructionIter struct {
	code *Code
	pos  int
	err  error
}

// NewInstructionIter creates a new instruction iterator for the given code.
func NewInstructionIter(code *Code) *InstructionIter {
	return &InstructionIter{code: code}
}

// Next returns the next instruction. It returns false at the end of the
// stream or when the stream is malformed, in which case Err is set.
func (i *InstructionIter) Next() (Instruction, bool) {
	if i.err != nil || i.pos >= i.code.Len() {
		return Instruction{}, false
	}
	instr := Instruction{Offset: i.pos, Op: i.code.OpAt(i.pos)}
	info := op.GetInfo(instr.Op)
	if !info.Valid() {
		i.err = fmt.Errorf("unknown opcode %d at offset %d", instr.Op, i.pos)
		return Instruction{}, false
	}
	var err error
	switch info.Operand {
	case op.Int:
		instr.Int, err = i.code.IntAt(i.pos + 1)
	case op.Float:
		instr.Float, err = i.code.FloatAt(i.pos + 1)
	}
	if err != nil {
		i.err = err
		return Instruction{}, false
	}
	i.pos += info.Size()
	return instr, true
}

// Err returns the decoding error that stopped iteration, if any.
func (i *InstructionIter) Err() error {
	return i.err
}

// All returns all instructions as a newly allocated slice.
func (i *InstructionIter) All() ([]Instruction, error) {
	var results []Instruction
	for {
		instr, ok := i.Next()
		if !ok {
			break
		}
		results = append(results, instr)
	}
	return results, i.err
}
