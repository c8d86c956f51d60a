package compiler

import (
	"github.com/taskvm/taskvm/op"
	"github.com/taskvm/taskvm/token"
)

// kind is the static type of a variable or expression.
type kind uint8

const (
	kindVoid kind = iota // result of an assignment
	kindReal
	kindString
	kindBool
	kindRealArray
	kindStringArray
)

func (k kind) String() string {
	switch k {
	case kindReal:
		return "real"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	case kindRealArray:
		return "real[]"
	case kindStringArray:
		return "string[]"
	}
	return "void"
}

func (k kind) isArray() bool {
	return k == kindRealArray || k == kindStringArray
}

func (k kind) isScalar() bool {
	return k == kindReal || k == kindString || k == kindBool
}

// element returns the element kind of an array kind.
func (k kind) element() kind {
	switch k {
	case kindRealArray:
		return kindReal
	case kindStringArray:
		return kindString
	}
	return kindVoid
}

func arrayOf(k kind) kind {
	if k == kindString {
		return kindStringArray
	}
	return kindRealArray
}

// declaredKind maps a type keyword to the scalar kind it declares.
func declaredKind(t token.Type) kind {
	if t == token.STRING_T {
		return kindString
	}
	return kindReal
}

// binaryOp describes a binary operator.
type binaryOp struct {
	code    op.Code
	operand kind // required operand kind, kindVoid for any matching scalars
	result  kind
}

// operatorLookup returns the binary operator a token denotes at one
// precedence level.
type operatorLookup func(token.Type) (binaryOp, bool)

func logicalOp(t token.Type) (binaryOp, bool) {
	switch t {
	case token.AND:
		return binaryOp{op.And, kindBool, kindBool}, true
	case token.OR:
		return binaryOp{op.Or, kindBool, kindBool}, true
	}
	return binaryOp{}, false
}

func relationalOp(t token.Type) (binaryOp, bool) {
	switch t {
	case token.EQ:
		return binaryOp{op.Equal, kindVoid, kindBool}, true
	case token.NOT_EQ:
		return binaryOp{op.NotEqual, kindVoid, kindBool}, true
	case token.LT:
		return binaryOp{op.Less, kindReal, kindBool}, true
	case token.GT:
		return binaryOp{op.Greater, kindReal, kindBool}, true
	case token.LT_EQUALS:
		return binaryOp{op.LessEqual, kindReal, kindBool}, true
	case token.GT_EQUALS:
		return binaryOp{op.GreaterEqual, kindReal, kindBool}, true
	}
	return binaryOp{}, false
}

func additiveOp(t token.Type) (binaryOp, bool) {
	switch t {
	case token.PLUS:
		return binaryOp{op.Add, kindReal, kindReal}, true
	case token.MINUS:
		return binaryOp{op.Sub, kindReal, kindReal}, true
	}
	return binaryOp{}, false
}

func multiplicativeOp(t token.Type) (binaryOp, bool) {
	switch t {
	case token.ASTERISK:
		return binaryOp{op.Mul, kindReal, kindReal}, true
	case token.SLASH:
		return binaryOp{op.Div, kindReal, kindReal}, true
	}
	return binaryOp{}, false
}

// accepts reports whether the operator can be applied to the operand kinds.
func (b binaryOp) accepts(left, right kind) bool {
	if b.operand == kindVoid {
		return left == right && left.isScalar()
	}
	return left == b.operand && right == b.operand
}

// required returns the operand kind named in error messages.
func (b binaryOp) required(left kind) kind {
	if b.operand == kindVoid {
		if left.isScalar() {
			return left
		}
		return kindReal
	}
	return b.operand
}
