// Package dis disassembles compiled bytecode into a readable listing and
// assembles such listings back into bytecode.
package dis

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/op"
)

// Instruction is a decoded instruction annotated for display.
type Instruction struct {
	Offset int
	Opcode op.Code
	Name   string
	Int    int32   // operand of instructions with an int operand
	Float  float64 // operand of ld_const
	Info   string  // human readable annotation, such as a string constant
}

// Operand returns the operand formatted for a listing, or "" when the
// instruction has none.
func (i Instruction) Operand() string {
	switch op.GetInfo(i.Opcode).Operand {
	case op.Int:
		return strconv.Itoa(int(i.Int))
	case op.Float:
		return strconv.FormatFloat(i.Float, 'g', -1, 64)
	}
	return ""
}

// Disassemble decodes every instruction in code.
func Disassemble(code *bytecode.Code) ([]Instruction, error) {
	decoded, err := bytecode.NewInstructionIter(code).All()
	if err != nil {
		return nil, err
	}
	instructions := make([]Instruction, len(decoded))
	for i, d := range decoded {
		instructions[i] = Instruction{
			Offset: d.Offset,
			Opcode: d.Op,
			Name:   d.Op.String(),
			Int:    d.Int,
			Float:  d.Float,
		}
	}
	for i := range instructions {
		instructions[i].Info = annotate(code, instructions, i)
	}
	return instructions, nil
}

// annotate describes jump targets and string constants. An ld_const is shown
// as a string when the instruction consuming it prints a string.
func annotate(code *bytecode.Code, instructions []Instruction, i int) string {
	instr := instructions[i]
	switch instr.Opcode {
	case op.Jump, op.JumpIfZero:
		return fmt.Sprintf("-> %d", instr.Int)
	case op.LoadConst:
		if i+1 >= len(instructions) || instructions[i+1].Opcode != op.PrintStr {
			return ""
		}
		if instr.Float != math.Trunc(instr.Float) {
			return ""
		}
		if s, ok := code.StringAt(int(instr.Float)); ok {
			return strconv.Quote(s)
		}
	}
	return ""
}

// Print writes a table of instructions to writer. Opcode names are colored
// unless color.NoColor is set.
func Print(instructions []Instruction, writer io.Writer) error {
	name := color.New(color.FgCyan).SprintFunc()
	tw := tabwriter.NewWriter(writer, 0, 4, 2, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(tw, "OFFSET\tOPCODE\tOPERAND\tINFO\t")
	for _, instr := range instructions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", instr.Offset, name(instr.Name), instr.Operand(), instr.Info)
	}
	return tw.Flush()
}
