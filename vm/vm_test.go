package vm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/compiler"
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/op"
)

func run(t *testing.T, source string, options ...Option) (string, error) {
	t.Helper()
	code, err := compiler.Compile(source)
	require.Nil(t, err)
	return Run(context.Background(), code, options...)
}

func requireRuntimeError(t *testing.T, err error, code errors.ErrorCode) *errors.RuntimeError {
	t.Helper()
	require.Error(t, err)
	var runtimeErr *errors.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	require.Equal(t, code, runtimeErr.Code, runtimeErr.Message)
	return runtimeErr
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{"arithmetic", "real a = 2; real b = 3; print a + b * 2;", "8"},
		{"println", `string s = "hi"; println s;`, "hi\n"},
		{"array literal", "real arr[3] = {1, 2, 3}; print arr;", "[1, 2, 3]"},
		{"if else", "real x = 1; if (x == 1) { x = 2; } else { x = 3; } print x;", "2"},
		{"else branch", "real x = 5; if (x == 1) x = 2; else x = 3; print x;", "3"},
		{"while", "real i = 0; while (i < 3) { print i; i = i + 1; }", "012"},
		{"zero initialized", "real a; string s; real arr[2]; print a; print s; print arr;", "0[0, 0]"},
		{"string array", `string n[2] = {"a", "b"}; print n; print n[1];`, "[a, b]b"},
		{"empty string element", `string n[2]; n[1] = "z"; print n;`, "[, z]"},
		{"element assignment", "real a[3]; a[1] = 5; a[2] = a[1] * 2; print a;", "[0, 5, 10]"},
		{"fraction", "print 7 / 2;", "3.5"},
		{"infinity", "print 1 / 0; print -1 / 0;", "Infinity-Infinity"},
		{"nan", "print 0 / 0;", "NaN"},
		{"sqrt", "print sqrt(16);", "4"},
		{"unary", "real a = 3; print -a; print +a; print --a;", "-333"},
		{"subtraction order", "print 10 - 4 - 3;", "3"},
		{"division order", "print 8 / 4 / 2;", "1"},
		{"comparisons", "print 1 < 2; print 2 <= 2; print 3 > 4; print 4 >= 5; print 1 != 1;", "11000"},
		{"booleans", "print 1 < 2 && 2 < 1 || 1 == 1; print !(1 < 2);", "10"},
		{"string equality", `print "a" == "a"; print "a" != "b"; print "a" == "b";`, "110"},
		{"shadowing", "real a = 1; { real a = 2; print a; } print a;", "21"},
		{"block declarations in loop", "real i = 0; while (i < 2) { real j = i * 10; print j; i = i + 1; } print i;", "0102"},
		{"nested loops", "real i = 0, j; while (i < 2) { j = 0; while (j < 2) { print i * 10 + j; print \" \"; j = j + 1; } i = i + 1; }", "0 1 10 11 "},
		{"escapes", `print "a\tb\\"; println ""; print "\"q\"";`, "a\tb\\\n\"q\""},
		{"expression statement", "real a = 1; a + 1; a * 2; print a;", "1"},
		{"large numbers", "print 1e20; print 0.1 + 0.2;", "1000000000000000000000.30000000000000004"},
		{"exponent form", "print 1e300; print -1.5e21;", "1e+300-1.5e+21"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.source)
			require.Nil(t, err)
			require.Equal(t, tt.expected, out)
		})
	}
}

func TestStackIsEmptyAfterRun(t *testing.T) {
	code, err := compiler.Compile("real a[3] = {1, 2}; { string s; real i = 0; while (i < 3) { a[i] = i; i = i + 1; } } a[0] + 1;")
	require.Nil(t, err)
	machine := New(code)
	require.Nil(t, machine.Run(context.Background()))
	require.Equal(t, 0, machine.StackDepth())
}

func TestIndexOutOfBounds(t *testing.T) {
	_, err := run(t, "real arr[2] = {1, 2}; print arr[5];")
	runtimeErr := requireRuntimeError(t, err, errors.E3001)
	require.Contains(t, err.Error(), "out of bounds")
	require.Equal(t, "ld_arr", runtimeErr.Op)
	require.Equal(t, 1, runtimeErr.Line)

	_, err = run(t, "real arr[2];\narr[2] = 1;")
	runtimeErr = requireRuntimeError(t, err, errors.E3001)
	require.Equal(t, "st_arr", runtimeErr.Op)
	require.Equal(t, 2, runtimeErr.Line)
	require.Equal(t, "arr[2] = 1;", runtimeErr.SourceLine)

	_, err = run(t, "real arr[2]; print arr[-1];")
	requireRuntimeError(t, err, errors.E3001)

	_, err = run(t, "real arr[2]; print arr[0 / 0];")
	requireRuntimeError(t, err, errors.E3001)
}

func TestFractionalIndexTruncates(t *testing.T) {
	out, err := run(t, "real arr[2] = {4, 5}; print arr[1.9]; print arr[-0.5];")
	require.Nil(t, err)
	require.Equal(t, "54", out)
}

func TestPartialOutputIsKept(t *testing.T) {
	code, err := compiler.Compile("print 1; real a[1]; print a[3];")
	require.Error(t, err) // declaration after a statement
	require.Nil(t, code)

	code, err = compiler.Compile("real a[1]; print 1; print a[3];")
	require.Nil(t, err)
	machine := New(code)
	require.Error(t, machine.Run(context.Background()))
	require.Equal(t, "1", machine.Output())
}

func TestRunTwice(t *testing.T) {
	code, err := compiler.Compile("print 42;")
	require.Nil(t, err)
	machine := New(code)
	require.Nil(t, machine.Run(context.Background()))
	require.Nil(t, machine.Run(context.Background()))
	require.Equal(t, "42", machine.Output())
}

func TestStepLimit(t *testing.T) {
	_, err := run(t, "while (1 == 1) ;", WithStepLimit(1000))
	requireRuntimeError(t, err, errors.E3006)

	out, err := run(t, "print 1;", WithStepLimit(2))
	require.Nil(t, err)
	require.Equal(t, "1", out)
}

func TestContextCancellation(t *testing.T) {
	code, err := compiler.Compile("while (1 == 1) ;")
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, code, WithContextCheckInterval(10))
	runtimeErr := requireRuntimeError(t, err, errors.E3007)
	require.Contains(t, runtimeErr.Message, "context canceled")
}

func TestStackLimit(t *testing.T) {
	_, err := run(t, "real a[100];", WithStackLimit(10))
	requireRuntimeError(t, err, errors.E3005)
}

func TestStackSizeAboveLimit(t *testing.T) {
	b := bytecode.NewBuffer()
	b.EmitInt(op.SubSP, 1<<30)
	code := b.Code(bytecode.NewStringTable(), bytecode.CodeParams{StackSize: 1 << 40})
	_, err := Run(context.Background(), code, WithStackLimit(100))
	runtimeErr := requireRuntimeError(t, err, errors.E3005)
	require.Contains(t, runtimeErr.Message, "stack overflow")

	// Unreached allocations do not count against the limit.
	b = bytecode.NewBuffer()
	b.EmitConst(7)
	b.Emit(op.PrintReal)
	code = b.Code(bytecode.NewStringTable(), bytecode.CodeParams{StackSize: 1 << 40})
	out, err := Run(context.Background(), code)
	require.Nil(t, err)
	require.Equal(t, "7", out)
}

func TestMalformedBytecode(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *bytecode.Buffer)
		code  errors.ErrorCode
	}{
		{"unknown opcode", func(b *bytecode.Buffer) { b.Emit(op.Code(200)) }, errors.E3003},
		{"stack underflow", func(b *bytecode.Buffer) { b.Emit(op.Add) }, errors.E3004},
		{"release too much", func(b *bytecode.Buffer) { b.EmitInt(op.AddSP, 1) }, errors.E3004},
		{"negative allocation", func(b *bytecode.Buffer) { b.EmitInt(op.SubSP, -1) }, errors.E3004},
		{"load outside stack", func(b *bytecode.Buffer) { b.EmitInt(op.Load, 3) }, errors.E3004},
		{"jump outside code", func(b *bytecode.Buffer) { b.EmitInt(op.Jump, 1000) }, errors.E3004},
		{"invalid string", func(b *bytecode.Buffer) {
			b.EmitConst(7)
			b.Emit(op.PrintStr)
		}, errors.E3002},
		{"fractional string id", func(b *bytecode.Buffer) {
			b.EmitConst(0.5)
			b.Emit(op.PrintStr)
		}, errors.E3002},
		{"invalid array address", func(b *bytecode.Buffer) {
			b.EmitConst(4)
			b.Emit(op.PrintArr)
		}, errors.E3004},
		{"array length past stack", func(b *bytecode.Buffer) {
			b.EmitInt(op.SubSP, 1)
			b.EmitConst(5)
			b.EmitInt(op.Store, 0)
			b.EmitConst(0)
			b.Emit(op.PrintArr)
		}, errors.E3004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bytecode.NewBuffer()
			tt.build(b)
			_, err := Run(context.Background(), b.Code(bytecode.NewStringTable(), bytecode.CodeParams{}))
			requireRuntimeError(t, err, tt.code)
		})
	}
}

func TestTruncatedOperand(t *testing.T) {
	code := bytecode.NewCode(bytecode.CodeParams{Instructions: []byte{byte(op.LoadConst), 0, 0}})
	_, err := Run(context.Background(), code)
	requireRuntimeError(t, err, errors.E3004)
}

// Every opcode must be implemented by the dispatch loop. Each instruction
// runs on a stack holding a one element array at address 0 and two zeros.
func TestEveryOpcodeIsHandled(t *testing.T) {
	operands := map[op.Code]int32{
		op.SubSP: 1,
		op.AddSP: 1,
	}
	for _, code := range op.All() {
		t.Run(code.String(), func(t *testing.T) {
			b := bytecode.NewBuffer()
			b.EmitInt(op.SubSP, 4)
			b.EmitConst(1)
			b.EmitInt(op.Store, 0)
			b.EmitConst(0)
			b.EmitConst(0)
			switch op.GetInfo(code).Operand {
			case op.Int:
				if code == op.Jump || code == op.JumpIfZero {
					b.Emit(code)
					label := b.ReserveLabel()
					b.PatchLabel(label, int32(b.Len()))
				} else {
					b.EmitInt(code, operands[code])
				}
			case op.Float:
				b.EmitConst(1)
			default:
				b.Emit(code)
			}
			_, err := Run(context.Background(), b.Code(bytecode.NewStringTable(), bytecode.CodeParams{}))
			require.Nil(t, err)
		})
	}
}

func TestBinaryAndUnary(t *testing.T) {
	require.Equal(t, 1.0, binary(op.And, 2, -1))
	require.Equal(t, 0.0, binary(op.And, 1, 0))
	require.Equal(t, 1.0, binary(op.Or, 0, 3))
	require.Equal(t, 2.0, binary(op.Sub, 5, 3))
	require.Equal(t, 1.0, unary(op.Not, 0))
	require.Equal(t, 0.0, unary(op.Not, math.NaN()))
	require.Panics(t, func() { binary(op.Load, 1, 2) })
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "8", FormatNumber(8))
	require.Equal(t, "0.5", FormatNumber(0.5))
	require.Equal(t, "-2.25", FormatNumber(-2.25))
	require.Equal(t, "Infinity", FormatNumber(math.Inf(1)))
	require.Equal(t, "-Infinity", FormatNumber(math.Inf(-1)))
	require.Equal(t, "NaN", FormatNumber(math.NaN()))
	require.Equal(t, "100000000000000000000", FormatNumber(1e20))
	require.Equal(t, "1e+21", FormatNumber(1e21))
	require.Equal(t, "1e+300", FormatNumber(1e300))
	require.Equal(t, "-2.5e+22", FormatNumber(-2.5e22))
	require.Equal(t, "0.000001", FormatNumber(1e-6))
	require.Equal(t, "1.5e-7", FormatNumber(1.5e-7))
	require.Equal(t, "0", FormatNumber(0))
}
