// Package lexer turns source text into a lazy stream of tokens.
package lexer

import (
	"strconv"
	"strings"

	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/token"
)

// Lexer reads tokens from source code on demand. Identifiers are interned so
// each distinct name maps to a single *token.Ident, and string literals are
// deduplicated into the lexer's string table.
type Lexer struct {
	input    string
	pos      int  // offset of ch
	next     int  // offset after ch
	ch       byte // current character, 0 at end of input
	line     int
	column   int
	keywords map[string]token.Type
	idents   map[string]*token.Ident
	strings  *bytecode.StringTable
	err      error
}

// New returns a Lexer for the given input.
func New(input string) *Lexer {
	l := &Lexer{
		input:    input,
		line:     1,
		keywords: token.Keywords(),
		idents:   map[string]*token.Ident{},
		strings:  bytecode.NewStringTable(),
	}
	l.readChar()
	return l
}

// Strings returns the table of string literals seen so far.
func (l *Lexer) Strings() *bytecode.StringTable {
	return l.strings
}

// Line returns the 1-based line of the current read position.
func (l *Lexer) Line() int {
	return l.line
}

// Idents returns the names of all identifiers seen so far.
func (l *Lexer) Idents() []string {
	names := make([]string, 0, len(l.idents))
	for name := range l.idents {
		names = append(names, name)
	}
	return names
}

// Next returns the next token. Once the input is exhausted it returns EOF
// on every call. After an error, the same error is returned again.
func (l *Lexer) Next() (token.Token, error) {
	if l.err != nil {
		return token.Token{}, l.err
	}
	tok, err := l.scan()
	if err != nil {
		l.err = err
	}
	return tok, err
}

func (l *Lexer) scan() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	pos := l.position()
	simple := func(t token.Type) (token.Token, error) {
		lit := string(l.ch)
		l.readChar()
		return token.Token{Type: t, Literal: lit, Position: pos}, nil
	}
	double := func(single, combined token.Type) (token.Token, error) {
		first := l.ch
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return token.Token{Type: combined, Literal: string(first) + "=", Position: pos}, nil
		}
		return token.Token{Type: single, Literal: string(first), Position: pos}, nil
	}
	if l.atEnd() {
		return token.Token{Type: token.EOF, Position: pos}, nil
	}
	switch l.ch {
	case '=':
		return double(token.ASSIGN, token.EQ)
	case '!':
		return double(token.BANG, token.NOT_EQ)
	case '<':
		return double(token.LT, token.LT_EQUALS)
	case '>':
		return double(token.GT, token.GT_EQUALS)
	case '&', '|':
		first := l.ch
		l.readChar()
		if l.ch != first {
			return token.Token{}, l.errorAt(pos, errors.E1001, "unexpected character '%c'", first)
		}
		l.readChar()
		if first == '&' {
			return token.Token{Type: token.AND, Literal: "&&", Position: pos}, nil
		}
		return token.Token{Type: token.OR, Literal: "||", Position: pos}, nil
	case '+':
		return simple(token.PLUS)
	case '-':
		return simple(token.MINUS)
	case '*':
		return simple(token.ASTERISK)
	case '/':
		return simple(token.SLASH)
	case '(':
		return simple(token.LPAREN)
	case ')':
		return simple(token.RPAREN)
	case '[':
		return simple(token.LBRACKET)
	case ']':
		return simple(token.RBRACKET)
	case '{':
		return simple(token.LBRACE)
	case '}':
		return simple(token.RBRACE)
	case ',':
		return simple(token.COMMA)
	case ';':
		return simple(token.SEMICOLON)
	case '"':
		return l.readString(pos)
	}
	if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		return l.readNumber(pos)
	}
	if isLetter(l.ch) {
		return l.readIdentifier(pos), nil
	}
	return token.Token{}, l.errorAt(pos, errors.E1001, "unexpected character %q", rune(l.ch))
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.next >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.next = len(l.input) + 1
	} else {
		l.ch = l.input[l.next]
		l.pos = l.next
		l.next++
	}
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.next >= len(l.input) {
		return 0
	}
	return l.input[l.next]
}

func (l *Lexer) position() token.Position {
	return token.Position{Char: l.pos, Line: l.line, Column: l.column}
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && !l.atEnd() {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.position()
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEnd() {
					return l.errorAt(start, errors.E1004, "unterminated block comment")
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return nil
		}
	}
}

func (l *Lexer) readNumber(pos token.Position) (token.Token, error) {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return token.Token{}, l.errorAt(pos, errors.E1005,
				"invalid number literal %q: missing exponent digits", l.input[start:l.pos])
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	literal := l.input[start:l.pos]
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		// ParseFloat still returns ±Inf for out of range literals.
		if numErr, ok := err.(*strconv.NumError); !ok || numErr.Err != strconv.ErrRange {
			return token.Token{}, l.errorAt(pos, errors.E1005, "invalid number literal %q", literal)
		}
	}
	return token.Token{Type: token.NUMBER, Literal: literal, Num: value, Position: pos}, nil
}

func (l *Lexer) readString(pos token.Position) (token.Token, error) {
	var b strings.Builder
	l.readChar() // opening quote
	for l.ch != '"' {
		if l.atEnd() || l.ch == '\n' {
			return token.Token{}, l.errorAt(pos, errors.E1002, "unterminated string literal")
		}
		if l.ch == '\\' {
			escPos := l.position()
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				if l.atEnd() {
					return token.Token{}, l.errorAt(pos, errors.E1002, "unterminated string literal")
				}
				return token.Token{}, l.errorAt(escPos, errors.E1003, "invalid escape sequence '\\%c'", l.ch)
			}
			l.readChar()
			continue
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	text := b.String()
	return token.Token{
		Type:     token.STRING,
		Literal:  text,
		StringID: l.strings.Intern(text),
		Position: pos,
	}, nil
}

func (l *Lexer) readIdentifier(pos token.Position) token.Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	name := l.input[start:l.pos]
	if t, ok := l.keywords[name]; ok {
		return token.Token{Type: t, Literal: name, Position: pos}
	}
	ident, ok := l.idents[name]
	if !ok {
		ident = &token.Ident{Name: name}
		l.idents[name] = ident
	}
	return token.Token{Type: token.IDENT, Literal: name, Ident: ident, Position: pos}
}

func (l *Lexer) errorAt(pos token.Position, code errors.ErrorCode, format string, args ...any) error {
	return errors.NewCompileError(errors.LexError, code, pos.Line, pos.Column, format, args...)
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
