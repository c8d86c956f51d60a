package compiler

import (
	"math"

	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/op"
	"github.com/taskvm/taskvm/token"
)

// declarations compiles the DECLS prefix of a block. All declarations of the
// group share one subsp whose size is patched once the group is complete.
func (c *Compiler) declarations() error {
	if !c.tok.Type.IsDataType() {
		return nil
	}
	c.out.SetLine(c.tok.Position.Line)
	c.out.Emit(op.SubSP)
	label := c.out.ReserveLabel()
	start := c.sp
	for c.tok.Type.IsDataType() {
		if err := c.declaration(); err != nil {
			return err
		}
	}
	c.out.PatchLabel(label, int32(c.sp-start))
	return nil
}

// declaration compiles TYPE VARDECL (',' VARDECL)* ';'.
func (c *Compiler) declaration() error {
	k := declaredKind(c.tok.Type)
	if err := c.advance(); err != nil {
		return err
	}
	for {
		if err := c.varDecl(k); err != nil {
			return err
		}
		if c.tok.Type != token.COMMA {
			break
		}
		if err := c.advance(); err != nil {
			return err
		}
	}
	return c.consume(token.SEMICOLON)
}

func (c *Compiler) varDecl(k kind) error {
	if err := c.expect(token.IDENT); err != nil {
		return err
	}
	nameTok := c.tok
	ident := nameTok.Ident
	if c.symbols.declaredInCurrentScope(ident) {
		return c.errorAt(nameTok, errors.ScopeError, errors.E2002,
			"variable %s is already declared in current scope", ident.Name)
	}
	if err := c.advance(); err != nil {
		return err
	}
	if c.tok.Type == token.LBRACKET {
		return c.arrayDecl(nameTok, k)
	}
	v, err := c.allocate(nameTok, k, 1)
	if err != nil {
		return err
	}
	if c.tok.Type != token.ASSIGN {
		return nil
	}
	if err := c.advance(); err != nil {
		return err
	}
	exprTok := c.tok
	valueKind, err := c.expression()
	if err != nil {
		return err
	}
	if valueKind != k {
		return c.errorAt(exprTok, errors.TypeError, errors.E2102,
			"cannot assign expression of type `%s` to variable of type `%s`", valueKind, k)
	}
	c.out.EmitInt(op.Store, int32(v.address))
	c.pop(1)
	return nil
}

// arrayDecl compiles IDENT '[' NUMBER ']' ('=' '{' EXPR (',' EXPR)* '}')?
// after the identifier has been consumed.
func (c *Compiler) arrayDecl(nameTok token.Token, k kind) error {
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.expect(token.NUMBER); err != nil {
		return err
	}
	size := c.tok.Num
	switch {
	case size != math.Trunc(size) || math.IsInf(size, 0):
		return c.errorf(errors.SyntaxError, errors.E1103, "array size must be an integer")
	case size <= 0:
		return c.errorf(errors.SyntaxError, errors.E1103, "array size must be greater than zero")
	case size > MaxArraySize:
		return c.errorf(errors.SyntaxError, errors.E1103, "array size must not exceed %d", MaxArraySize)
	}
	length := int(size)
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.consume(token.RBRACKET); err != nil {
		return err
	}

	v, err := c.allocate(nameTok, arrayOf(k), length+1)
	if err != nil {
		return err
	}
	c.out.EmitConst(float64(length))
	c.out.EmitInt(op.Store, int32(v.address))

	if c.tok.Type != token.ASSIGN {
		return nil
	}
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.consume(token.LBRACE); err != nil {
		return err
	}
	for i := 0; ; i++ {
		if i >= length {
			return c.errorf(errors.SyntaxError, errors.E1104,
				"too many initializers for array %s of length %d", nameTok.Ident.Name, length)
		}
		c.out.EmitConst(float64(i))
		c.push(1)
		exprTok := c.tok
		valueKind, err := c.expression()
		if err != nil {
			return err
		}
		if valueKind != k {
			return c.errorAt(exprTok, errors.TypeError, errors.E2102,
				"cannot assign expression of type `%s` to element of type `%s`", valueKind, k)
		}
		c.out.EmitInt(op.StoreArray, int32(v.address))
		c.pop(2)
		if c.tok.Type != token.COMMA {
			break
		}
		if err := c.advance(); err != nil {
			return err
		}
	}
	return c.consume(token.RBRACE)
}

// allocate defines a variable in the current scope at the top of the stack.
func (c *Compiler) allocate(nameTok token.Token, k kind, size int) (*variable, error) {
	if c.sp+size > MaxStackSlots {
		return nil, c.errorAt(nameTok, errors.SyntaxError, errors.E1106,
			"too many variables: %s would need more than %d stack slots", nameTok.Ident.Name, MaxStackSlots)
	}
	v := &variable{kind: k, address: c.sp, size: size, ident: nameTok.Ident}
	c.symbols.define(v)
	c.push(size)
	return v, nil
}

// statement compiles one STMT.
func (c *Compiler) statement() error {
	c.out.SetLine(c.tok.Position.Line)
	switch c.tok.Type {
	case token.SEMICOLON:
		return c.advance()
	case token.LBRACE:
		return c.block()
	case token.IF:
		return c.ifStatement()
	case token.WHILE:
		return c.whileStatement()
	case token.PRINT, token.PRINTLN:
		return c.printStatement()
	case token.REAL, token.STRING_T:
		return c.errorf(errors.SyntaxError, errors.E1101,
			"unexpected %s, declarations must appear at the start of a block", c.tok.Describe())
	case token.EOF:
		return c.unexpected("statement")
	}
	return c.expressionStatement()
}

// block compiles '{' DECLS STMT* '}'.
func (c *Compiler) block() error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return err
	}
	c.enterScope()
	if err := c.declarations(); err != nil {
		return err
	}
	for c.tok.Type != token.RBRACE {
		if c.tok.Type == token.EOF {
			return c.unexpected("'}'")
		}
		if err := c.statement(); err != nil {
			return err
		}
	}
	if err := c.advance(); err != nil {
		return err
	}
	c.exitScope()
	return nil
}

// condition compiles '(' EXPR ')' and requires a boolean result.
func (c *Compiler) condition() error {
	if err := c.consume(token.LPAREN); err != nil {
		return err
	}
	exprTok := c.tok
	k, err := c.expression()
	if err != nil {
		return err
	}
	if k != kindBool {
		return c.errorAt(exprTok, errors.TypeError, errors.E2103, "condition must have boolean type, got %s", k)
	}
	c.pop(1) // consumed by jmpz
	return c.consume(token.RPAREN)
}

// ifStatement compiles
//
//	COND jmpz L1 STMT1 jmp L2 L1: STMT2 L2:
//	COND jmpz L1 STMT1 L1:
func (c *Compiler) ifStatement() error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.condition(); err != nil {
		return err
	}
	c.out.Emit(op.JumpIfZero)
	elseLabel := c.out.ReserveLabel()
	if err := c.statement(); err != nil {
		return err
	}
	if c.tok.Type != token.ELSE {
		c.out.PatchLabel(elseLabel, int32(c.out.Len()))
		return nil
	}
	c.out.Emit(op.Jump)
	endLabel := c.out.ReserveLabel()
	c.out.PatchLabel(elseLabel, int32(c.out.Len()))
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.statement(); err != nil {
		return err
	}
	c.out.PatchLabel(endLabel, int32(c.out.Len()))
	return nil
}

// whileStatement compiles
//
//	L0: COND jmpz L1 STMT jmp L0 L1:
func (c *Compiler) whileStatement() error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return err
	}
	head := c.out.Len()
	if err := c.condition(); err != nil {
		return err
	}
	c.out.Emit(op.JumpIfZero)
	exitLabel := c.out.ReserveLabel()
	if err := c.statement(); err != nil {
		return err
	}
	c.out.EmitInt(op.Jump, int32(head))
	c.out.PatchLabel(exitLabel, int32(c.out.Len()))
	return nil
}

func (c *Compiler) printStatement() error {
	newline := c.tok.Type == token.PRINTLN
	if err := c.advance(); err != nil {
		return err
	}
	exprTok := c.tok
	k, err := c.expression()
	if err != nil {
		return err
	}
	switch k {
	case kindReal, kindBool:
		c.out.Emit(op.PrintReal)
	case kindString:
		c.out.Emit(op.PrintStr)
	case kindRealArray:
		c.out.Emit(op.PrintArr)
	case kindStringArray:
		c.out.Emit(op.PrintStrArr)
	default:
		return c.errorAt(exprTok, errors.TypeError, errors.E2105,
			"print argument must be real, boolean, string or array, got %s", k)
	}
	c.pop(1)
	if newline {
		c.out.EmitConst(float64(c.lex.Strings().Intern("\n")))
		c.out.Emit(op.PrintStr)
	}
	return c.consume(token.SEMICOLON)
}

// expressionStatement compiles EXPR ';' and discards any value left on the
// stack.
func (c *Compiler) expressionStatement() error {
	k, err := c.expression()
	if err != nil {
		return err
	}
	if k != kindVoid {
		c.out.EmitInt(op.AddSP, 1)
		c.pop(1)
	}
	return c.consume(token.SEMICOLON)
}
