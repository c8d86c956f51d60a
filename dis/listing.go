package dis

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/op"
)

// A listing is a plain text form of a program that Parse reads back:
//
//	.strings
//	0 ""
//	1 "hi"
//	.code
//	0000 subsp 1
//	0005 ld_const 1 ; "hi"
//
// Offsets are checked against the encoded instruction sizes. Anything after
// a ';' on a code line is a comment.

const (
	stringsSection = ".strings"
	codeSection    = ".code"
)

// Format renders instructions and the string table as a listing.
func Format(instructions []Instruction, strs []string) string {
	var b strings.Builder
	b.WriteString(stringsSection + "\n")
	for id, s := range strs {
		fmt.Fprintf(&b, "%d %s\n", id, strconv.Quote(s))
	}
	b.WriteString(codeSection + "\n")
	for _, instr := range instructions {
		fmt.Fprintf(&b, "%04d %s", instr.Offset, instr.Name)
		if operand := instr.Operand(); operand != "" {
			b.WriteString(" " + operand)
		}
		if instr.Info != "" {
			b.WriteString(" ; " + instr.Info)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Parse reads a listing produced by Format.
func Parse(text string) ([]Instruction, []string, error) {
	var (
		instructions []Instruction
		strs         []string
		section      string
		offset       int
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == stringsSection || line == codeSection {
			section = line
			continue
		}
		switch section {
		case stringsSection:
			idText, quoted, ok := strings.Cut(line, " ")
			if !ok {
				return nil, nil, fmt.Errorf("line %d: expected string id and value", lineNum)
			}
			id, err := strconv.Atoi(idText)
			if err != nil || id != len(strs) {
				return nil, nil, fmt.Errorf("line %d: expected string id %d", lineNum, len(strs))
			}
			s, err := strconv.Unquote(quoted)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: invalid string %s: %w", lineNum, quoted, err)
			}
			strs = append(strs, s)
		case codeSection:
			instr, err := parseInstruction(line)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			if instr.Offset != offset {
				return nil, nil, fmt.Errorf("line %d: offset %d does not match computed offset %d", lineNum, instr.Offset, offset)
			}
			offset += op.GetInfo(instr.Opcode).Size()
			instructions = append(instructions, instr)
		default:
			return nil, nil, fmt.Errorf("line %d: content outside of a section", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return instructions, strs, nil
}

func parseInstruction(line string) (Instruction, error) {
	code, comment, _ := strings.Cut(line, ";")
	fields := strings.Fields(code)
	if len(fields) < 2 {
		return Instruction{}, fmt.Errorf("expected offset and opcode")
	}
	offset, err := strconv.Atoi(fields[0])
	if err != nil {
		return Instruction{}, fmt.Errorf("invalid offset %q", fields[0])
	}
	opcode, ok := op.Lookup(fields[1])
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %q", fields[1])
	}
	instr := Instruction{
		Offset: offset,
		Opcode: opcode,
		Name:   fields[1],
		Info:   strings.TrimSpace(comment),
	}
	kind := op.GetInfo(opcode).Operand
	if kind == op.None {
		if len(fields) != 2 {
			return Instruction{}, fmt.Errorf("%s takes no operand", fields[1])
		}
		return instr, nil
	}
	if len(fields) != 3 {
		return Instruction{}, fmt.Errorf("%s requires one operand", fields[1])
	}
	if kind == op.Int {
		n, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return Instruction{}, fmt.Errorf("invalid operand %q: %w", fields[2], err)
		}
		instr.Int = int32(n)
	} else {
		f, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("invalid operand %q: %w", fields[2], err)
		}
		instr.Float = f
	}
	return instr, nil
}

// Assemble encodes instructions into a new Code with the given string table.
// String id 0 must be the empty string.
func Assemble(instructions []Instruction, strs []string) (*bytecode.Code, error) {
	if len(strs) == 0 || strs[bytecode.EmptyStringID] != "" {
		return nil, fmt.Errorf("string table must start with the empty string")
	}
	buf := bytecode.NewBuffer()
	for _, instr := range instructions {
		switch op.GetInfo(instr.Opcode).Operand {
		case op.Int:
			buf.EmitInt(instr.Opcode, instr.Int)
		case op.Float:
			if instr.Opcode != op.LoadConst {
				return nil, fmt.Errorf("unsupported float operand for %s", instr.Opcode)
			}
			buf.EmitConst(instr.Float)
		default:
			if !op.GetInfo(instr.Opcode).Valid() {
				return nil, fmt.Errorf("unknown opcode %d", instr.Opcode)
			}
			buf.Emit(instr.Opcode)
		}
	}
	return buf.Code(nil, bytecode.CodeParams{Name: "main", Strings: strs}), nil
}
