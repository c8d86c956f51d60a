package vm

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution, in number of instructions. A value of 0 disables checking. The
// default is DefaultContextCheckInterval.
//
// Lower values make cancellation more responsive at a small cost per
// instruction.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithStepLimit stops execution with a runtime error after the given number
// of instructions. A value of 0 means no limit.
func WithStepLimit(limit int64) Option {
	return func(vm *VirtualMachine) {
		vm.stepLimit = limit
	}
}

// WithStackLimit sets the maximum number of stack slots. Values <= 0 keep
// DefaultStackLimit.
func WithStackLimit(limit int) Option {
	return func(vm *VirtualMachine) {
		if limit > 0 {
			vm.stackLimit = limit
		}
	}
}

// WithObserver sets an observer for VM execution events.
//
// Observer methods are called synchronously during execution, so
// implementations should be fast. Returning false from OnStep halts
// execution with a runtime error.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}
