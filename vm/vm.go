// Package vm provides a VirtualMachine that executes compiled taskvm
// bytecode.
//
// The machine state is an instruction pointer, a stack of float64 values and
// an output buffer. Variables occupy fixed stack slots addressed from the
// bottom of the stack; expression temporaries are pushed above them. Strings
// are represented on the stack by their id in the code's string table, and
// booleans by 1 and 0.
package vm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/op"
)

const (
	// DefaultContextCheckInterval is the number of instructions between
	// checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000

	// DefaultStackLimit is the default maximum number of stack slots.
	DefaultStackLimit = 1 << 22
)

// VirtualMachine executes one bytecode.Code. A VirtualMachine may be run
// more than once but not concurrently.
type VirtualMachine struct {
	code  *bytecode.Code
	ip    int // offset of the current instruction
	stack []float64
	out   strings.Builder
	steps int64

	// contextCheckInterval is the number of instructions between checks of
	// ctx.Done(). A value of 0 disables checking.
	contextCheckInterval int
	stepLimit            int64
	stackLimit           int
	observer             Observer
	observerCfg          ObserverConfig
	lastLine             int

	running  bool
	runMutex sync.Mutex
}

// New creates a new Virtual Machine for the given code.
func New(code *bytecode.Code, options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		code:                 code,
		contextCheckInterval: DefaultContextCheckInterval,
		stackLimit:           DefaultStackLimit,
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.observer != nil {
		vm.observerCfg = NormalizeConfig(vm.observer.Config())
	}
	return vm
}

// Output returns everything printed by the most recent run, including
// output produced before a runtime error.
func (vm *VirtualMachine) Output() string {
	return vm.out.String()
}

// StackDepth returns the number of values on the stack.
func (vm *VirtualMachine) StackDepth() int {
	return len(vm.stack)
}

// Steps returns the number of instructions executed by the most recent run.
func (vm *VirtualMachine) Steps() int64 {
	return vm.steps
}

func (vm *VirtualMachine) start() error {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return fmt.Errorf("vm is already running")
	}
	vm.running = true
	return nil
}

func (vm *VirtualMachine) stop() {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.running = false
}

// Run executes the code from the beginning. It returns nil when the
// instruction pointer reaches the end of the code and a *errors.RuntimeError
// when execution fails. Panics are translated to runtime errors.
func (vm *VirtualMachine) Run(ctx context.Context) (err error) {
	if vm.code == nil {
		return fmt.Errorf("no code available")
	}
	if err := vm.start(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = vm.fail(errors.E3008, "panic: %v", r)
		}
		vm.stop()
	}()
	vm.ip = 0
	vm.steps = 0
	vm.lastLine = 0
	// StackSize is a hint from the code; the limit is enforced as slots
	// are allocated.
	vm.stack = make([]float64, 0, max(0, min(vm.code.StackSize(), vm.stackLimit))+8)
	vm.out.Reset()
	return vm.eval(ctx)
}

func (vm *VirtualMachine) eval(ctx context.Context) error {
	var sinceCheck int
	checkInterval := vm.contextCheckInterval
	doneChan := ctx.Done()
	end := vm.code.Len()

	for vm.ip < end {
		if checkInterval > 0 && doneChan != nil {
			sinceCheck++
			if sinceCheck >= checkInterval {
				sinceCheck = 0
				select {
				case <-doneChan:
					return vm.fail(errors.E3007, "execution cancelled: %v", ctx.Err())
				default:
				}
			}
		}
		vm.steps++
		if vm.stepLimit > 0 && vm.steps > vm.stepLimit {
			return vm.fail(errors.E3006, "step limit of %d instructions exceeded", vm.stepLimit)
		}

		instr, err := vm.decode()
		if err != nil {
			return err
		}
		if vm.observer != nil && vm.shouldObserve() {
			if !vm.observer.OnStep(vm.stepEvent(instr)) {
				return vm.fail(errors.E3007, "execution halted by observer")
			}
		}
		next := vm.ip + instr.Size()

		switch instr.Op {
		case op.Load:
			addr, err := vm.address(instr.Int, 1)
			if err != nil {
				return err
			}
			if err := vm.push(vm.stack[addr]); err != nil {
				return err
			}
		case op.Store:
			value, err := vm.pop()
			if err != nil {
				return err
			}
			addr, err := vm.address(instr.Int, 1)
			if err != nil {
				return err
			}
			vm.stack[addr] = value
		case op.LoadArray:
			index, err := vm.pop()
			if err != nil {
				return err
			}
			slot, err := vm.element(instr.Int, index)
			if err != nil {
				return err
			}
			if err := vm.push(vm.stack[slot]); err != nil {
				return err
			}
		case op.StoreArray:
			value, err := vm.pop()
			if err != nil {
				return err
			}
			index, err := vm.pop()
			if err != nil {
				return err
			}
			slot, err := vm.element(instr.Int, index)
			if err != nil {
				return err
			}
			vm.stack[slot] = value
		case op.SubSP:
			n := int(instr.Int)
			if n < 0 {
				return vm.fail(errors.E3004, "invalid allocation size %d", n)
			}
			if len(vm.stack)+n > vm.stackLimit {
				return vm.fail(errors.E3005, "stack overflow: limit of %d slots exceeded", vm.stackLimit)
			}
			for i := 0; i < n; i++ {
				vm.stack = append(vm.stack, 0)
			}
		case op.AddSP:
			n := int(instr.Int)
			if n < 0 || n > len(vm.stack) {
				return vm.fail(errors.E3004, "stack underflow: cannot release %d slots from a stack of %d", n, len(vm.stack))
			}
			vm.stack = vm.stack[:len(vm.stack)-n]
		case op.Jump:
			target, err := vm.target(instr.Int)
			if err != nil {
				return err
			}
			next = target
		case op.JumpIfZero:
			cond, err := vm.pop()
			if err != nil {
				return err
			}
			target, err := vm.target(instr.Int)
			if err != nil {
				return err
			}
			if cond == 0 {
				next = target
			}
		case op.LoadConst:
			if err := vm.push(instr.Float); err != nil {
				return err
			}
		case op.Equal, op.NotEqual, op.Less, op.Greater, op.LessEqual, op.GreaterEqual,
			op.Add, op.Sub, op.Mul, op.Div, op.Or, op.And:
			right, err := vm.pop()
			if err != nil {
				return err
			}
			left, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.push(binary(instr.Op, left, right)); err != nil {
				return err
			}
		case op.Not, op.Neg, op.Sqrt:
			value, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.push(unary(instr.Op, value)); err != nil {
				return err
			}
		case op.PrintReal:
			value, err := vm.pop()
			if err != nil {
				return err
			}
			vm.out.WriteString(FormatNumber(value))
		case op.PrintStr:
			id, err := vm.pop()
			if err != nil {
				return err
			}
			s, err := vm.lookupString(id)
			if err != nil {
				return err
			}
			vm.out.WriteString(s)
		case op.PrintArr, op.PrintStrArr:
			base, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.printArray(base, instr.Op == op.PrintStrArr); err != nil {
				return err
			}
		default:
			return vm.fail(errors.E3003, "unknown opcode %d", instr.Op)
		}
		vm.ip = next
	}
	return nil
}

func (vm *VirtualMachine) decode() (bytecode.Instruction, error) {
	code := vm.code.OpAt(vm.ip)
	info := op.GetInfo(code)
	if !info.Valid() {
		return bytecode.Instruction{}, vm.fail(errors.E3003, "unknown opcode %d", code)
	}
	instr := bytecode.Instruction{Offset: vm.ip, Op: code}
	var err error
	switch info.Operand {
	case op.Int:
		instr.Int, err = vm.code.IntAt(vm.ip + 1)
	case op.Float:
		instr.Float, err = vm.code.FloatAt(vm.ip + 1)
	}
	if err != nil {
		return bytecode.Instruction{}, vm.fail(errors.E3004, "%v", err)
	}
	return instr, nil
}

func (vm *VirtualMachine) push(value float64) error {
	if len(vm.stack) >= vm.stackLimit {
		return vm.fail(errors.E3005, "stack overflow: limit of %d slots exceeded", vm.stackLimit)
	}
	vm.stack = append(vm.stack, value)
	return nil
}

func (vm *VirtualMachine) pop() (float64, error) {
	n := len(vm.stack)
	if n == 0 {
		return 0, vm.fail(errors.E3004, "stack underflow")
	}
	value := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return value, nil
}

// address validates that size slots starting at addr are on the stack.
func (vm *VirtualMachine) address(addr int32, size int) (int, error) {
	a := int(addr)
	if a < 0 || a+size > len(vm.stack) {
		return 0, vm.fail(errors.E3004, "address %d outside the stack (depth %d)", a, len(vm.stack))
	}
	return a, nil
}

// element returns the stack slot of element index of the array at base.
func (vm *VirtualMachine) element(base int32, index float64) (int, error) {
	b, err := vm.address(base, 1)
	if err != nil {
		return 0, err
	}
	length := vm.stack[b]
	i := math.Trunc(index)
	if math.IsNaN(i) || i < 0 || i >= length {
		return 0, vm.fail(errors.E3001, "array index was out of bounds: index %s, length %s",
			FormatNumber(index), FormatNumber(length))
	}
	if i >= float64(len(vm.stack)) {
		return 0, vm.fail(errors.E3004, "array at address %d extends past the stack", b)
	}
	slot := b + 1 + int(i)
	if slot >= len(vm.stack) {
		return 0, vm.fail(errors.E3004, "array at address %d extends past the stack", b)
	}
	return slot, nil
}

func (vm *VirtualMachine) target(t int32) (int, error) {
	if t < 0 || int(t) > vm.code.Len() {
		return 0, vm.fail(errors.E3004, "jump target %d outside the code", t)
	}
	return int(t), nil
}

func (vm *VirtualMachine) lookupString(id float64) (string, error) {
	if id != math.Trunc(id) || id < 0 || id >= float64(vm.code.StringCount()) {
		return "", vm.fail(errors.E3002, "invalid string pointer %s", FormatNumber(id))
	}
	s, _ := vm.code.StringAt(int(id))
	return s, nil
}

func (vm *VirtualMachine) printArray(base float64, strs bool) error {
	if base != math.Trunc(base) || base < 0 || base >= float64(len(vm.stack)) {
		return vm.fail(errors.E3004, "invalid array address %s", FormatNumber(base))
	}
	b := int(base)
	length := vm.stack[b]
	if length != math.Trunc(length) || length < 0 || float64(b)+length >= float64(len(vm.stack)) {
		return vm.fail(errors.E3004, "invalid array length %s at address %d", FormatNumber(length), b)
	}
	vm.out.WriteByte('[')
	for i := 0; i < int(length); i++ {
		if i > 0 {
			vm.out.WriteString(", ")
		}
		value := vm.stack[b+1+i]
		if !strs {
			vm.out.WriteString(FormatNumber(value))
			continue
		}
		s, err := vm.lookupString(value)
		if err != nil {
			return err
		}
		vm.out.WriteString(s)
	}
	vm.out.WriteByte(']')
	return nil
}

// fail returns a RuntimeError for the current instruction.
func (vm *VirtualMachine) fail(code errors.ErrorCode, format string, args ...any) *errors.RuntimeError {
	err := errors.NewRuntimeError(code, vm.ip, format, args...)
	if vm.ip < vm.code.Len() {
		if info := op.GetInfo(vm.code.OpAt(vm.ip)); info.Valid() {
			err.Op = info.Name
		}
	}
	if line := vm.code.LineAt(vm.ip); line > 0 {
		err.Line = line
		err.SourceLine = vm.code.GetSourceLine(line)
	}
	return err
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func binary(code op.Code, left, right float64) float64 {
	switch code {
	case op.Equal:
		return boolValue(left == right)
	case op.NotEqual:
		return boolValue(left != right)
	case op.Less:
		return boolValue(left < right)
	case op.Greater:
		return boolValue(left > right)
	case op.LessEqual:
		return boolValue(left <= right)
	case op.GreaterEqual:
		return boolValue(left >= right)
	case op.Add:
		return left + right
	case op.Sub:
		return left - right
	case op.Mul:
		return left * right
	case op.Div:
		return left / right
	case op.Or:
		return boolValue(left != 0 || right != 0)
	case op.And:
		return boolValue(left != 0 && right != 0)
	}
	panic(fmt.Sprintf("vm: %s is not a binary operator", code))
}

func unary(code op.Code, value float64) float64 {
	switch code {
	case op.Not:
		return boolValue(value == 0)
	case op.Neg:
		return -value
	case op.Sqrt:
		return math.Sqrt(value)
	}
	panic(fmt.Sprintf("vm: %s is not a unary operator", code))
}
