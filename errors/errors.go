// Package errors defines the compile-time and runtime error types returned
// by the taskvm toolchain.
package errors

import "fmt"

// FriendlyError is an interface for errors that have a human friendly message
// in addition to the lower level default error message.
type FriendlyError interface {
	Error() string
	FriendlyErrorMessage() string
}

// FormattableError is an interface for errors that can be formatted with
// the enhanced error formatter (with colors, source context, etc).
type FormattableError interface {
	Error() string
	ToFormatted() *FormattedError
}

// Kind classifies a compile error by the phase that detected it.
type Kind string

const (
	LexError    Kind = "lex error"
	SyntaxError Kind = "syntax error"
	TypeError   Kind = "type error"
	ScopeError  Kind = "scope error"
)

func (k Kind) String() string {
	return string(k)
}

// Location is a 1-based line and column in the source.
type Location struct {
	Filename string
	Line     int
	Column   int
}

func (l Location) String() string {
	if l.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// IsZero returns true if the location has not been set.
func (l Location) IsZero() bool {
	return l.Line == 0 && l.Column == 0
}
