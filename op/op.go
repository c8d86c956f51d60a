// Package op defines opcodes used by the taskvm compiler and virtual machine.
package op

// Code is a one byte opcode that indicates an operation to execute.
type Code byte

const (
	Invalid Code = 0

	// Stack slots
	Load       Code = 1
	Store      Code = 2
	LoadArray  Code = 3
	StoreArray Code = 4
	SubSP      Code = 5
	AddSP      Code = 6

	// Jump
	Jump       Code = 7
	JumpIfZero Code = 8

	// Constants
	LoadConst Code = 9

	// Comparison
	Equal        Code = 10
	NotEqual     Code = 11
	Less         Code = 12
	Greater      Code = 13
	LessEqual    Code = 14
	GreaterEqual Code = 15

	// Arithmetic and logic
	Add Code = 16
	Sub Code = 17
	Mul Code = 18
	Div Code = 19
	Or  Code = 20
	And Code = 21
	Not Code = 22
	Neg Code = 23

	// Output
	PrintReal Code = 24
	PrintStr  Code = 25
	PrintArr  Code = 26

	Sqrt Code = 27

	PrintStrArr Code = 28

	maxCode = PrintStrArr
)

// OperandKind describes the operand that follows an opcode.
type OperandKind uint8

const (
	None  OperandKind = iota // no operand
	Int                      // 4 byte signed integer
	Float                    // 8 byte IEEE-754 float
)

// Width returns the number of operand bytes for the operand kind.
func (k OperandKind) Width() int {
	switch k {
	case Int:
		return 4
	case Float:
		return 8
	}
	return 0
}

// Info contains information about an opcode.
type Info struct {
	Code    Code
	Name    string
	Operand OperandKind
}

// Size returns the total encoded size of the instruction in bytes.
func (i Info) Size() int {
	return 1 + i.Operand.Width()
}

// Valid returns true if the info describes a known opcode.
func (i Info) Valid() bool {
	return i.Code != Invalid
}

var infos [256]Info

var byName = map[string]Code{}

func init() {
	ops := []Info{
		{Load, "load", Int},
		{Store, "store", Int},
		{LoadArray, "ld_arr", Int},
		{StoreArray, "st_arr", Int},
		{SubSP, "subsp", Int},
		{AddSP, "addsp", Int},
		{Jump, "jmp", Int},
		{JumpIfZero, "jmpz", Int},
		{LoadConst, "ld_const", Float},
		{Equal, "eq", None},
		{NotEqual, "noteq", None},
		{Less, "lss", None},
		{Greater, "grt", None},
		{LessEqual, "lsseq", None},
		{GreaterEqual, "grteq", None},
		{Add, "add", None},
		{Sub, "sub", None},
		{Mul, "mul", None},
		{Div, "div", None},
		{Or, "or", None},
		{And, "and", None},
		{Not, "not", None},
		{Neg, "neg", None},
		{PrintReal, "print_real", None},
		{PrintStr, "print_str", None},
		{PrintArr, "print_arr", None},
		{Sqrt, "sqrt", None},
		{PrintStrArr, "print_sarr", None},
	}
	for _, o := range ops {
		infos[o.Code] = o
		byName[o.Name] = o.Code
	}
}

// GetInfo returns information about the given opcode. The returned Info is
// invalid (see Info.Valid) for unknown opcodes.
func GetInfo(code Code) Info {
	return infos[code]
}

// Lookup returns the opcode with the given mnemonic.
func Lookup(name string) (Code, bool) {
	code, ok := byName[name]
	return code, ok
}

// All returns every defined opcode in ascending order.
func All() []Code {
	codes := make([]Code, 0, maxCode)
	for c := Code(1); c <= maxCode; c++ {
		codes = append(codes, c)
	}
	return codes
}

func (c Code) String() string {
	if info := infos[c]; info.Valid() {
		return info.Name
	}
	return "invalid"
}
