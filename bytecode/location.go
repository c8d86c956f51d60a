package bytecode

import "fmt"

// SourceLocation maps the instruction that starts at Offset back to the
// source line it was compiled from.
type SourceLocation struct {
	Offset int // byte offset of the instruction
	Line   int // 1-based line number
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	return fmt.Sprintf("line %d", s.Line)
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0
}
