// Package token defines language keywords and tokens used when lexing source code.
package token

import "fmt"

// Type describes the type of a token as a string.
type Type string

// Position points to a particular location in an input string.
type Position struct {
	Char   int // byte offset within the input
	Line   int // 1-indexed line number
	Column int // 1-indexed column number
}

// String returns the position formatted as "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Ident is an interned identifier. The lexer returns the same *Ident for
// every occurrence of a name within one compilation, so identifiers may be
// compared by pointer.
type Ident struct {
	Name string
}

func (i *Ident) String() string {
	return i.Name
}

// Token represents one token lexed from the input source code.
type Token struct {
	Type     Type
	Literal  string
	Num      float64 // set for NUMBER
	StringID int     // set for STRING, an index into the string table
	Ident    *Ident  // set for IDENT
	Position Position
}

// Token types
const (
	AND       Type = "&&"
	ASSIGN    Type = "="
	ASTERISK  Type = "*"
	BANG      Type = "!"
	COMMA     Type = ","
	ELSE      Type = "ELSE"
	EOF       Type = "EOF"
	EQ        Type = "=="
	GT        Type = ">"
	GT_EQUALS Type = ">="
	IDENT     Type = "IDENT"
	IF        Type = "IF"
	LBRACE    Type = "{"
	LBRACKET  Type = "["
	LPAREN    Type = "("
	LT        Type = "<"
	LT_EQUALS Type = "<="
	MINUS     Type = "-"
	NOT_EQ    Type = "!="
	NUMBER    Type = "NUMBER"
	OR        Type = "||"
	PLUS      Type = "+"
	PRINT     Type = "PRINT"
	PRINTLN   Type = "PRINTLN"
	RBRACE    Type = "}"
	RBRACKET  Type = "]"
	REAL      Type = "REAL"
	RPAREN    Type = ")"
	SEMICOLON Type = ";"
	SLASH     Type = "/"
	SQRT      Type = "SQRT"
	STRING    Type = "STRING"
	STRING_T  Type = "STRING_TYPE"
	WHILE     Type = "WHILE"
)

// Keywords returns a new map of reserved words to their token types. Each
// lexer builds its own copy so no lookup table is shared between compiles.
func Keywords() map[string]Type {
	return map[string]Type{
		"else":    ELSE,
		"if":      IF,
		"print":   PRINT,
		"println": PRINTLN,
		"real":    REAL,
		"sqrt":    SQRT,
		"string":  STRING_T,
		"while":   WHILE,
	}
}

// IsDataType returns true if the token type starts a variable declaration.
func (t Type) IsDataType() bool {
	return t == REAL || t == STRING_T
}

// Describe returns a human readable form of the token for error messages.
func (t Token) Describe() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case IDENT:
		return fmt.Sprintf("identifier %q", t.Literal)
	case NUMBER:
		return fmt.Sprintf("number %s", t.Literal)
	case STRING:
		return fmt.Sprintf("string %q", t.Literal)
	}
	return fmt.Sprintf("%q", t.Literal)
}
