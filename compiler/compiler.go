// Package compiler translates taskvm source code directly into bytecode.
//
// # Single-Pass Compilation
//
// There is no syntax tree. The compiler pulls tokens from the lexer on demand
// and a recursive-descent parser type checks each construct and emits its
// instructions into a bytecode.Sink as soon as it is recognized. Forward
// jumps (if/else, while exits) reserve a 4 byte label in the instruction
// stream that is patched once the target offset is known.
//
// # Variables and Scopes
//
// Every variable lives in a fixed slot of the VM stack, addressed from the
// bottom. A block's declarations are allocated with a single subsp whose
// operand is patched after the last declaration, and the block releases its
// slots with addsp on exit. Arrays of length N take N+1 slots: slot 0 holds
// the length and is checked by the VM on every indexed access.
//
// Names are resolved through a symbol table that keeps a stack of bindings
// per identifier, so an inner declaration shadows an outer one until the
// inner block ends. Redeclaring a name within the same block is an error.
//
// The compiler tracks the runtime stack depth. It equals the number of live
// variable slots at every statement boundary and is zero when compilation
// finishes.
package compiler

import (
	"fmt"
	"strings"

	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/lexer"
	"github.com/taskvm/taskvm/token"
)

const (
	// MaxArraySize is the largest length accepted in an array declaration.
	MaxArraySize = 1 << 20

	// MaxDepth bounds the nesting of blocks, statements, parenthesized
	// expressions and chained assignments.
	MaxDepth = 256

	// MaxStackSlots bounds the variable slots live at any point of a
	// program. It matches the VM's default stack limit.
	MaxStackSlots = 1 << 22
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithFilename sets the filename reported in compile errors and recorded in
// the compiled code.
func WithFilename(filename string) Option {
	return func(c *Compiler) {
		c.filename = filename
	}
}

// WithSink directs emitted instructions to the given sink instead of a new
// bytecode.Buffer.
func WithSink(sink bytecode.Sink) Option {
	return func(c *Compiler) {
		c.out = sink
	}
}

// Compiler holds the state of one compilation. A Compiler is single use.
type Compiler struct {
	source   string
	filename string
	lex      *lexer.Lexer
	tok      token.Token
	out      bytecode.Sink

	symbols  *symbolTable
	sp       int // runtime stack depth at the current point of the program
	maxSP    int
	depth    int
	compiled bool
}

// codeBuilder is implemented by sinks that can freeze their contents into
// a bytecode.Code, such as bytecode.Buffer.
type codeBuilder interface {
	Code(strings *bytecode.StringTable, params bytecode.CodeParams) *bytecode.Code
}

// New returns a Compiler for the given source.
func New(source string, opts ...Option) *Compiler {
	c := &Compiler{
		source:  source,
		lex:     lexer.New(source),
		symbols: newSymbolTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.out == nil {
		c.out = bytecode.NewBuffer()
	}
	return c
}

// Compile compiles source and returns the finished bytecode.
func Compile(source string, opts ...Option) (*bytecode.Code, error) {
	return New(source, opts...).Compile()
}

// Compile runs the compilation. When the sink given with WithSink cannot
// produce a bytecode.Code, the returned code is nil and the caller reads the
// instructions from its own sink and the strings from Strings.
func (c *Compiler) Compile() (*bytecode.Code, error) {
	if c.compiled {
		return nil, fmt.Errorf("compiler: Compile called more than once")
	}
	c.compiled = true
	if err := c.compileProgram(); err != nil {
		return nil, c.decorate(err)
	}
	builder, ok := c.out.(codeBuilder)
	if !ok {
		return nil, nil
	}
	return builder.Code(c.lex.Strings(), bytecode.CodeParams{
		Name:      "main",
		Source:    c.source,
		Filename:  c.filename,
		StackSize: c.maxSP,
	}), nil
}

// StackPointer returns the compiler's view of the runtime stack depth.
func (c *Compiler) StackPointer() int {
	return c.sp
}

// MaxStackPointer returns the peak number of variable slots in use.
func (c *Compiler) MaxStackPointer() int {
	return c.maxSP
}

// Strings returns the string table built during compilation.
func (c *Compiler) Strings() *bytecode.StringTable {
	return c.lex.Strings()
}

// compileProgram handles PROGRAM := DECLS STMT* inside one implicit scope.
func (c *Compiler) compileProgram() error {
	if err := c.advance(); err != nil {
		return err
	}
	c.enterScope()
	if err := c.declarations(); err != nil {
		return err
	}
	for c.tok.Type != token.EOF {
		if err := c.statement(); err != nil {
			return err
		}
	}
	c.exitScope()
	return nil
}

func (c *Compiler) advance() error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	c.tok = tok
	return nil
}

func (c *Compiler) expect(t token.Type) error {
	if c.tok.Type != t {
		return c.unexpected(describeType(t))
	}
	return nil
}

// consume checks the current token type and advances past it.
func (c *Compiler) consume(t token.Type) error {
	if err := c.expect(t); err != nil {
		return err
	}
	return c.advance()
}

func (c *Compiler) enter() error {
	c.depth++
	if c.depth > MaxDepth {
		return c.errorf(errors.SyntaxError, errors.E1105, "maximum nesting depth of %d exceeded", MaxDepth)
	}
	return nil
}

func (c *Compiler) leave() {
	c.depth--
}

func (c *Compiler) push(n int) {
	c.sp += n
	if c.sp > c.maxSP {
		c.maxSP = c.sp
	}
}

func (c *Compiler) pop(n int) {
	c.sp -= n
}

func (c *Compiler) unexpected(expected string) error {
	return c.errorf(errors.SyntaxError, errors.E1101, "unexpected %s, expected %s", c.tok.Describe(), expected)
}

// errorf returns a CompileError located at the current token.
func (c *Compiler) errorf(kind errors.Kind, code errors.ErrorCode, format string, args ...any) error {
	return errors.NewCompileError(kind, code, c.tok.Position.Line, c.tok.Position.Column, format, args...)
}

// errorAt returns a CompileError located at the given token.
func (c *Compiler) errorAt(tok token.Token, kind errors.Kind, code errors.ErrorCode, format string, args ...any) error {
	return errors.NewCompileError(kind, code, tok.Position.Line, tok.Position.Column, format, args...)
}

// decorate attaches the filename and offending source line to compile errors.
func (c *Compiler) decorate(err error) error {
	compileErr, ok := err.(*errors.CompileError)
	if !ok {
		return err
	}
	compileErr.Filename = c.filename
	if compileErr.Line > 0 {
		lines := strings.Split(c.source, "\n")
		if compileErr.Line <= len(lines) {
			compileErr.SourceLine = strings.TrimRight(lines[compileErr.Line-1], "\r")
		}
	}
	return compileErr
}

func describeType(t token.Type) string {
	switch t {
	case token.IDENT:
		return "identifier"
	case token.NUMBER:
		return "number"
	case token.EOF:
		return "end of input"
	}
	return "'" + string(t) + "'"
}
