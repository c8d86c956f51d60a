package errors

import (
	"fmt"
	"strings"
)

// CompileError is returned when a program fails to lex, parse or type check.
// Compilation stops at the first error.
type CompileError struct {
	Kind        Kind
	Code        ErrorCode
	Message     string
	Filename    string
	Line        int
	Column      int
	SourceLine  string
	Suggestions []Suggestion
	Note        string
}

// NewCompileError returns a CompileError at the given line and column.
func NewCompileError(kind Kind, code ErrorCode, line, column int, format string, args ...any) *CompileError {
	return &CompileError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  column,
	}
}

// Error implements the error interface. The form is
// "<kind>: <message> (line L, column C)".
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Line > 0 {
		b.WriteString(" (")
		if e.Filename != "" {
			b.WriteString(e.Filename)
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "line %d, column %d)", e.Line, e.Column)
	}
	return b.String()
}

// Location returns where the error was detected.
func (e *CompileError) Location() Location {
	return Location{Filename: e.Filename, Line: e.Line, Column: e.Column}
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *CompileError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *CompileError) ToFormatted() *FormattedError {
	fe := &FormattedError{
		Code:     e.Code,
		Kind:     e.Kind.String(),
		Message:  e.Message,
		Filename: e.Filename,
		Line:     e.Line,
		Column:   e.Column,
		Note:     e.Note,
	}
	if e.SourceLine != "" {
		fe.SourceLines = []SourceLineEntry{
			{Number: e.Line, Text: e.SourceLine, IsMain: true},
		}
	}
	if len(e.Suggestions) > 0 {
		fe.Hint = FormatSuggestions(e.Suggestions)
	}
	return fe
}
