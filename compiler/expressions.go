package compiler

import (
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/op"
	"github.com/taskvm/taskvm/token"
)

// Every expression method leaves exactly one value on the stack, except for
// assignments which leave nothing and have kind void.

// expression compiles the lowest precedence level: && and || share one
// level and associate to the left.
func (c *Compiler) expression() (kind, error) {
	return c.binary(logicalOp, c.relational)
}

func (c *Compiler) relational() (kind, error) {
	return c.binary(relationalOp, c.additive)
}

func (c *Compiler) additive() (kind, error) {
	return c.binary(additiveOp, c.multiplicative)
}

func (c *Compiler) multiplicative() (kind, error) {
	return c.binary(multiplicativeOp, c.unary)
}

// binary compiles operand (OP operand)* for the operators in ops.
func (c *Compiler) binary(lookup operatorLookup, operand func() (kind, error)) (kind, error) {
	left, err := operand()
	if err != nil {
		return kindVoid, err
	}
	for {
		bin, ok := lookup(c.tok.Type)
		if !ok {
			return left, nil
		}
		opTok := c.tok
		if err := c.advance(); err != nil {
			return kindVoid, err
		}
		right, err := operand()
		if err != nil {
			return kindVoid, err
		}
		if !bin.accepts(left, right) {
			req := bin.required(left)
			return kindVoid, c.errorAt(opTok, errors.TypeError, errors.E2101,
				"wrong argument types for operator `%s`: required (%s, %s), got (%s, %s)",
				opTok.Literal, req, req, left, right)
		}
		c.out.Emit(bin.code)
		c.pop(1)
		left = bin.result
	}
}

// unary compiles ('!'|'-'|'+') UNARY | PRIMARY.
func (c *Compiler) unary() (kind, error) {
	opTok := c.tok
	var required kind
	var code op.Code
	switch opTok.Type {
	case token.BANG:
		required, code = kindBool, op.Not
	case token.MINUS:
		required, code = kindReal, op.Neg
	case token.PLUS:
		required = kindReal
	default:
		return c.primary()
	}
	if err := c.enter(); err != nil {
		return kindVoid, err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	k, err := c.unary()
	if err != nil {
		return kindVoid, err
	}
	if k != required {
		return kindVoid, c.errorAt(opTok, errors.TypeError, errors.E2101,
			"wrong argument type for operator `%s`: required %s, got %s", opTok.Literal, required, k)
	}
	if code != op.Invalid {
		c.out.Emit(code)
	}
	return k, nil
}

func (c *Compiler) primary() (kind, error) {
	switch c.tok.Type {
	case token.NUMBER:
		c.out.EmitConst(c.tok.Num)
		c.push(1)
		return kindReal, c.advance()
	case token.STRING:
		c.out.EmitConst(float64(c.tok.StringID))
		c.push(1)
		return kindString, c.advance()
	case token.LPAREN:
		return c.parenthesized()
	case token.SQRT:
		return c.sqrt()
	case token.IDENT:
		return c.identifier()
	}
	return kindVoid, c.errorf(errors.SyntaxError, errors.E1102, "unexpected %s, expected expression", c.tok.Describe())
}

func (c *Compiler) parenthesized() (kind, error) {
	if err := c.enter(); err != nil {
		return kindVoid, err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	k, err := c.expression()
	if err != nil {
		return kindVoid, err
	}
	return k, c.consume(token.RPAREN)
}

func (c *Compiler) sqrt() (kind, error) {
	sqrtTok := c.tok
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	if err := c.expect(token.LPAREN); err != nil {
		return kindVoid, err
	}
	k, err := c.parenthesized()
	if err != nil {
		return kindVoid, err
	}
	if k != kindReal {
		return kindVoid, c.errorAt(sqrtTok, errors.TypeError, errors.E2101,
			"wrong argument type for operator `sqrt`: required real, got %s", k)
	}
	c.out.Emit(op.Sqrt)
	return kindReal, nil
}

// identifier compiles IDENT, IDENT '=' EXPR, IDENT '[' EXPR ']' and
// IDENT '[' EXPR ']' '=' EXPR.
func (c *Compiler) identifier() (kind, error) {
	nameTok := c.tok
	v, ok := c.symbols.lookup(nameTok.Ident)
	if !ok {
		err := errors.NewCompileError(errors.ScopeError, errors.E2001,
			nameTok.Position.Line, nameTok.Position.Column, "undeclared identifier %s", nameTok.Ident.Name)
		err.Suggestions = errors.SuggestSimilar(nameTok.Ident.Name, c.symbols.names())
		return kindVoid, err
	}
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	switch c.tok.Type {
	case token.ASSIGN:
		return c.assign(nameTok, v)
	case token.LBRACKET:
		return c.index(nameTok, v)
	}
	if v.kind.isArray() {
		// An array value is its base address; only print can consume it.
		c.out.EmitConst(float64(v.address))
	} else {
		c.out.EmitInt(op.Load, int32(v.address))
	}
	c.push(1)
	return v.kind, nil
}

func (c *Compiler) assign(nameTok token.Token, v *variable) (kind, error) {
	if v.kind.isArray() {
		return kindVoid, c.errorAt(nameTok, errors.TypeError, errors.E2102,
			"cannot assign to array %s as a whole", v.ident.Name)
	}
	if err := c.enter(); err != nil {
		return kindVoid, err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	exprTok := c.tok
	k, err := c.expression()
	if err != nil {
		return kindVoid, err
	}
	if k != v.kind {
		return kindVoid, c.errorAt(exprTok, errors.TypeError, errors.E2102,
			"cannot assign expression of type `%s` to variable of type `%s`", k, v.kind)
	}
	c.out.EmitInt(op.Store, int32(v.address))
	c.pop(1)
	return kindVoid, nil
}

func (c *Compiler) index(nameTok token.Token, v *variable) (kind, error) {
	if !v.kind.isArray() {
		return kindVoid, c.errorAt(nameTok, errors.TypeError, errors.E2104,
			"cannot index %s of type %s", v.ident.Name, v.kind)
	}
	if err := c.enter(); err != nil {
		return kindVoid, err
	}
	defer c.leave()
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	indexTok := c.tok
	k, err := c.expression()
	if err != nil {
		return kindVoid, err
	}
	if k != kindReal {
		return kindVoid, c.errorAt(indexTok, errors.TypeError, errors.E2104,
			"array index must be a number, got %s", k)
	}
	if err := c.consume(token.RBRACKET); err != nil {
		return kindVoid, err
	}
	elem := v.kind.element()
	if c.tok.Type != token.ASSIGN {
		c.out.EmitInt(op.LoadArray, int32(v.address))
		return elem, nil // the index is replaced by the element
	}
	if err := c.advance(); err != nil {
		return kindVoid, err
	}
	exprTok := c.tok
	valueKind, err := c.expression()
	if err != nil {
		return kindVoid, err
	}
	if valueKind != elem {
		return kindVoid, c.errorAt(exprTok, errors.TypeError, errors.E2102,
			"cannot assign expression of type `%s` to element of type `%s`", valueKind, elem)
	}
	c.out.EmitInt(op.StoreArray, int32(v.address))
	c.pop(2)
	return kindVoid, nil
}
