package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/taskvm/taskvm/op"
)

// Code is a compiled program. It is immutable after creation and safe for
// concurrent use.
type Code struct {
	name         string
	instructions []byte
	strings      []string
	source       string
	filename     string
	locations    []SourceLocation
	stackSize    int
}

// CodeParams contains parameters for creating a new Code.
type CodeParams struct {
	Name         string
	Instructions []byte
	Strings      []string
	Source       string
	Filename     string
	Locations    []SourceLocation
	StackSize    int // peak number of variable slots allocated by the program
}

// NewCode creates a new immutable Code from the given parameters.
// Input slices are copied to ensure immutability.
func NewCode(params CodeParams) *Code {
	strs := copyStrings(params.Strings)
	if len(strs) == 0 {
		strs = []string{""}
	}
	return &Code{
		name:         params.Name,
		instructions: copyBytes(params.Instructions),
		strings:      strs,
		source:       params.Source,
		filename:     params.Filename,
		locations:    copyLocations(params.Locations),
		stackSize:    params.StackSize,
	}
}

// Name returns the name of the program.
func (c *Code) Name() string {
	return c.name
}

// Len returns the length of the instruction stream in bytes.
func (c *Code) Len() int {
	return len(c.instructions)
}

// Bytes returns a copy of the instruction stream.
func (c *Code) Bytes() []byte {
	return copyBytes(c.instructions)
}

// OpAt returns the opcode byte at the given offset.
func (c *Code) OpAt(offset int) op.Code {
	return op.Code(c.instructions[offset])
}

// IntAt decodes the int32 operand that starts at the given offset.
func (c *Code) IntAt(offset int) (int32, error) {
	if offset < 0 || offset+4 > len(c.instructions) {
		return 0, fmt.Errorf("truncated int operand at offset %d", offset)
	}
	return int32(binary.BigEndian.Uint32(c.instructions[offset:])), nil
}

// FloatAt decodes the float64 operand that starts at the given offset.
func (c *Code) FloatAt(offset int) (float64, error) {
	if offset < 0 || offset+8 > len(c.instructions) {
		return 0, fmt.Errorf("truncated float operand at offset %d", offset)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(c.instructions[offset:])), nil
}

// StringCount returns the number of entries in the string table.
func (c *Code) StringCount() int {
	return len(c.strings)
}

// StringAt returns the string table entry with the given id.
func (c *Code) StringAt(id int) (string, bool) {
	if id < 0 || id >= len(c.strings) {
		return "", false
	}
	return c.strings[id], true
}

// Strings returns a copy of the string table, indexed by id.
func (c *Code) Strings() []string {
	return copyStrings(c.strings)
}

// Source returns the source code the program was compiled from.
func (c *Code) Source() string {
	return c.source
}

// Filename returns the source filename.
func (c *Code) Filename() string {
	return c.filename
}

// StackSize returns the peak number of variable slots the program allocates.
func (c *Code) StackSize() int {
	return c.stackSize
}

// LocationCount returns the number of recorded source locations.
func (c *Code) LocationCount() int {
	return len(c.locations)
}

// LocationAt returns the i-th recorded source location.
func (c *Code) LocationAt(i int) SourceLocation {
	return c.locations[i]
}

// LineAt returns the source line for the instruction at the given offset,
// or 0 when no location was recorded.
func (c *Code) LineAt(offset int) int {
	i := sort.Search(len(c.locations), func(i int) bool {
		return c.locations[i].Offset > offset
	})
	if i == 0 {
		return 0
	}
	return c.locations[i-1].Line
}

// GetSourceLine returns the source code line at the given 1-based line number.
// If the line is out of range, an empty string is returned.
func (c *Code) GetSourceLine(lineNum int) string {
	if c.source == "" || lineNum < 1 {
		return ""
	}
	lines := strings.Split(c.source, "\n")
	if lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}

// Stats returns statistics about this code block.
func (c *Code) Stats() Stats {
	stats := Stats{
		ByteCount:   len(c.instructions),
		StringCount: len(c.strings),
		SourceBytes: len(c.source),
	}
	iter := NewInstructionIter(c)
	for {
		instr, ok := iter.Next()
		if !ok {
			break
		}
		stats.InstructionCount++
		if instr.Op == op.Jump || instr.Op == op.JumpIfZero {
			stats.JumpCount++
		}
	}
	return stats
}
