package errors

// ErrorCode represents a unique identifier for error types.
// Codes are organized by category:
//   - E1xxx: Lex and syntax errors
//   - E2xxx: Scope and type errors
//   - E3xxx: Runtime errors
type ErrorCode string

const (
	// Lex errors
	E1001 ErrorCode = "E1001" // Unexpected character
	E1002 ErrorCode = "E1002" // Unterminated string literal
	E1003 ErrorCode = "E1003" // Invalid escape sequence
	E1004 ErrorCode = "E1004" // Unterminated comment
	E1005 ErrorCode = "E1005" // Invalid number literal

	// Syntax errors
	E1101 ErrorCode = "E1101" // Unexpected token
	E1102 ErrorCode = "E1102" // Missing expression
	E1103 ErrorCode = "E1103" // Invalid array size
	E1104 ErrorCode = "E1104" // Too many initializers
	E1105 ErrorCode = "E1105" // Maximum nesting depth exceeded
	E1106 ErrorCode = "E1106" // Too many variables

	// Scope errors
	E2001 ErrorCode = "E2001" // Undeclared identifier
	E2002 ErrorCode = "E2002" // Duplicate declaration

	// Type errors
	E2101 ErrorCode = "E2101" // Wrong operand types
	E2102 ErrorCode = "E2102" // Invalid assignment
	E2103 ErrorCode = "E2103" // Non-boolean condition
	E2104 ErrorCode = "E2104" // Invalid index
	E2105 ErrorCode = "E2105" // Value cannot be printed

	// Runtime errors
	E3001 ErrorCode = "E3001" // Index out of bounds
	E3002 ErrorCode = "E3002" // Invalid string reference
	E3003 ErrorCode = "E3003" // Invalid opcode
	E3004 ErrorCode = "E3004" // Malformed bytecode
	E3005 ErrorCode = "E3005" // Stack overflow
	E3006 ErrorCode = "E3006" // Step limit exceeded
	E3007 ErrorCode = "E3007" // Execution cancelled
	E3008 ErrorCode = "E3008" // Internal error
)

var codeDescriptions = map[ErrorCode]string{
	E1001: "unexpected character",
	E1002: "unterminated string literal",
	E1003: "invalid escape sequence",
	E1004: "unterminated comment",
	E1005: "invalid number literal",

	E1101: "unexpected token",
	E1102: "missing expression",
	E1103: "invalid array size",
	E1104: "too many initializers",
	E1105: "maximum nesting depth exceeded",
	E1106: "too many variables",

	E2001: "undeclared identifier",
	E2002: "duplicate declaration",

	E2101: "wrong operand types",
	E2102: "invalid assignment",
	E2103: "non-boolean condition",
	E2104: "invalid index",
	E2105: "value cannot be printed",

	E3001: "index out of bounds",
	E3002: "invalid string reference",
	E3003: "invalid opcode",
	E3004: "malformed bytecode",
	E3005: "stack overflow",
	E3006: "step limit exceeded",
	E3007: "execution cancelled",
	E3008: "internal error",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 3 {
		return "unknown"
	}
	switch c[1] {
	case '1':
		if c[2] == '0' {
			return "lex"
		}
		return "syntax"
	case '2':
		if c[2] == '0' {
			return "scope"
		}
		return "type"
	case '3':
		return "runtime"
	default:
		return "unknown"
	}
}
