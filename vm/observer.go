package vm

import (
	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/op"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every SampleInterval instructions.
	StepSampled

	// StepOnLine calls OnStep when the source line changes.
	StepOnLine
)

// ObserverConfig specifies which events an observer wants to receive.
type ObserverConfig struct {
	StepMode StepMode

	// SampleInterval is used with StepSampled. Values <= 0 are treated as 1.
	SampleInterval int
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives VM execution events. It can be used for tracing,
// profiling or coverage without modifying the VM.
type Observer interface {
	// Config is called once when the VM is created.
	Config() ObserverConfig

	// OnStep is called before an instruction executes, as selected by the
	// StepMode. Returning false halts execution.
	OnStep(event StepEvent) bool
}

// StepEvent describes the instruction about to execute.
type StepEvent struct {
	IP          int
	Instruction bytecode.Instruction
	OpcodeName  string
	Line        int // 0 when the code carries no source locations
	StackDepth  int
}

// NoOpObserver observes every step and does nothing. Embed it to implement
// only part of Observer.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return ObserverConfig{StepMode: StepAll}
}

func (NoOpObserver) OnStep(StepEvent) bool { return true }

var _ Observer = NoOpObserver{}

func (vm *VirtualMachine) shouldObserve() bool {
	switch vm.observerCfg.StepMode {
	case StepAll:
		return true
	case StepSampled:
		return vm.steps%int64(vm.observerCfg.SampleInterval) == 0
	case StepOnLine:
		line := vm.code.LineAt(vm.ip)
		if line == vm.lastLine {
			return false
		}
		vm.lastLine = line
		return true
	}
	return false
}

func (vm *VirtualMachine) stepEvent(instr bytecode.Instruction) StepEvent {
	return StepEvent{
		IP:          vm.ip,
		Instruction: instr,
		OpcodeName:  op.GetInfo(instr.Op).Name,
		Line:        vm.code.LineAt(vm.ip),
		StackDepth:  len(vm.stack),
	}
}
