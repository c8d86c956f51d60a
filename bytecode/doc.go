// Package bytecode provides the compiled representation of taskvm programs.
//
// Compilation writes into a [Buffer] through the [Sink] interface. A Buffer
// is an append-only byte stream of instructions, each encoded as a one byte
// opcode followed by an optional operand:
//
//   - no operand for arithmetic, comparison and print instructions
//   - a big-endian int32 for addresses, sizes and jump targets
//   - a big-endian IEEE-754 float64 for ld_const
//
// Forward jumps are emitted with a reserved label slot that is patched once
// the target address is known.
//
// # Key Types
//
//   - [Buffer]: the mutable instruction stream used during compilation
//   - [Code]: an immutable compiled program (instructions + string table)
//   - [StringTable]: deduplicated string literals referenced by id
//   - [InstructionIter]: decodes instructions from a Code
//
// Code values are immutable after construction and may be shared across
// goroutines and run on any number of virtual machines.
package bytecode
