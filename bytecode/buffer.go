package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taskvm/taskvm/op"
)

// Sink receives instructions from the compiler. Buffer is the standard
// implementation; alternative code generators only need to produce calls
// against this interface.
type Sink interface {
	// Emit appends an instruction without an operand and returns its offset.
	Emit(code op.Code) int
	// EmitInt appends an instruction with an int32 operand.
	EmitInt(code op.Code, operand int32) int
	// EmitConst appends an ld_const instruction for the given value.
	EmitConst(value float64) int
	// ReserveLabel appends a 4 byte placeholder and returns its offset.
	ReserveLabel() int
	// PatchLabel writes target into a slot returned by ReserveLabel.
	PatchLabel(offset int, target int32)
	// Len returns the current length of the instruction stream in bytes.
	Len() int
	// SetLine sets the source line recorded for subsequent instructions.
	SetLine(line int)
}

// Buffer is an append-only instruction stream. The only permitted mutation
// of existing bytes is patching a reserved label slot.
type Buffer struct {
	data      []byte
	labels    map[int]bool
	locations []SourceLocation
	line      int
}

// NewBuffer returns an empty instruction buffer.
func NewBuffer() *Buffer {
	return &Buffer{labels: map[int]bool{}}
}

func (b *Buffer) Emit(code op.Code) int {
	pos := len(b.data)
	b.mark(pos)
	b.data = append(b.data, byte(code))
	return pos
}

func (b *Buffer) EmitInt(code op.Code, operand int32) int {
	pos := b.Emit(code)
	b.data = binary.BigEndian.AppendUint32(b.data, uint32(operand))
	return pos
}

func (b *Buffer) EmitConst(value float64) int {
	pos := b.Emit(op.LoadConst)
	b.data = binary.BigEndian.AppendUint64(b.data, math.Float64bits(value))
	return pos
}

func (b *Buffer) ReserveLabel() int {
	pos := len(b.data)
	b.data = append(b.data, 0, 0, 0, 0)
	b.labels[pos] = true
	return pos
}

// PatchLabel panics if offset was not returned by ReserveLabel, since that
// can only be caused by a bug in the code generator.
func (b *Buffer) PatchLabel(offset int, target int32) {
	if !b.labels[offset] {
		panic(fmt.Sprintf("bytecode: no label reserved at offset %d", offset))
	}
	binary.BigEndian.PutUint32(b.data[offset:offset+4], uint32(target))
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) SetLine(line int) {
	b.line = line
}

func (b *Buffer) mark(pos int) {
	if b.line == 0 {
		return
	}
	if n := len(b.locations); n > 0 && b.locations[n-1].Line == b.line {
		return
	}
	b.locations = append(b.locations, SourceLocation{Offset: pos, Line: b.line})
}

// Bytes returns a copy of the instruction stream.
func (b *Buffer) Bytes() []byte {
	return copyBytes(b.data)
}

// Code freezes the buffer contents into an immutable Code.
func (b *Buffer) Code(strings *StringTable, params CodeParams) *Code {
	params.Instructions = b.data
	params.Locations = b.locations
	if strings != nil {
		params.Strings = strings.Values()
	}
	return NewCode(params)
}
