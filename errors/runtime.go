package errors

import "fmt"

// RuntimeError is returned when executing bytecode fails.
type RuntimeError struct {
	Code       ErrorCode
	Message    string
	IP         int    // offset of the failing instruction
	Op         string // mnemonic of the failing instruction, if known
	Line       int    // source line, 0 when the bytecode carries no locations
	SourceLine string
}

// NewRuntimeError returns a RuntimeError for the instruction at ip.
func NewRuntimeError(code ErrorCode, ip int, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		IP:      ip,
	}
}

func (e *RuntimeError) Error() string {
	return "runtime error: " + e.Message
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *RuntimeError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *RuntimeError) ToFormatted() *FormattedError {
	fe := &FormattedError{
		Code:    e.Code,
		Kind:    "runtime error",
		Message: e.Message,
		Line:    e.Line,
	}
	if e.Op != "" {
		fe.Note = fmt.Sprintf("while executing %s at offset %d", e.Op, e.IP)
	} else {
		fe.Note = fmt.Sprintf("at offset %d", e.IP)
	}
	if e.SourceLine != "" {
		fe.SourceLines = []SourceLineEntry{{Number: e.Line, Text: e.SourceLine, IsMain: true}}
	}
	return fe
}
