package bytecode

// Stats contains statistics about compiled bytecode.
// This is useful for auditing programs before execution.
type Stats struct {
	// InstructionCount is the total number of bytecode instructions.
	InstructionCount int

	// ByteCount is the encoded size of the instruction stream.
	ByteCount int

	// StringCount is the number of entries in the string table.
	StringCount int

	// JumpCount is the number of jmp and jmpz instructions.
	JumpCount int

	// SourceBytes is the size of the original source code in bytes.
	SourceBytes int
}
