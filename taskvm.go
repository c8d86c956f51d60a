// Package taskvm compiles and runs programs written in the taskvm scripting
// language.
//
// A program is compiled once into an immutable bytecode.Code and may then be
// run any number of times, concurrently if desired:
//
//	code, err := taskvm.Compile(`real i = 0; while (i < 3) { print i; i = i + 1; }`)
//	if err != nil {
//		return err
//	}
//	out, err := taskvm.Run(ctx, code) // "012"
//
// CompileAndRun combines both steps and reports the outcome as a Result,
// which is what the task scheduler stores for every submitted program.
package taskvm

import (
	"context"
	"time"

	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/compiler"
	"github.com/taskvm/taskvm/vm"
)

// Option configures a compilation or execution.
type Option func(*options)

type options struct {
	filename   string
	stepLimit  int64
	stackLimit int
	timeout    time.Duration
	observer   vm.Observer
}

func collectOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) compilerOpts() []compiler.Option {
	var opts []compiler.Option
	if o.filename != "" {
		opts = append(opts, compiler.WithFilename(o.filename))
	}
	return opts
}

func (o *options) vmOpts() []vm.Option {
	var opts []vm.Option
	if o.stepLimit > 0 {
		opts = append(opts, vm.WithStepLimit(o.stepLimit))
	}
	if o.stackLimit > 0 {
		opts = append(opts, vm.WithStackLimit(o.stackLimit))
	}
	if o.observer != nil {
		opts = append(opts, vm.WithObserver(o.observer))
	}
	return opts
}

// WithFilename sets the filename reported in compile errors.
func WithFilename(filename string) Option {
	return func(o *options) {
		o.filename = filename
	}
}

// WithStepLimit stops execution after the given number of instructions.
func WithStepLimit(limit int64) Option {
	return func(o *options) {
		o.stepLimit = limit
	}
}

// WithStackLimit bounds the number of VM stack slots a program may use.
func WithStackLimit(limit int) Option {
	return func(o *options) {
		o.stackLimit = limit
	}
}

// WithTimeout cancels execution once the given duration has elapsed.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithObserver sets an observer for VM execution events.
func WithObserver(observer vm.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// Compile compiles source code into executable bytecode. The returned Code is
// immutable and safe for concurrent use.
func Compile(source string, opts ...Option) (*bytecode.Code, error) {
	o := collectOptions(opts...)
	return compiler.Compile(source, o.compilerOpts()...)
}

// Run executes compiled bytecode and returns everything the program printed.
// Each call creates a fresh VM.
func Run(ctx context.Context, code *bytecode.Code, opts ...Option) (string, error) {
	o := collectOptions(opts...)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return vm.Run(ctx, code, o.vmOpts()...)
}

// Result is the outcome of compiling and running one program.
type Result struct {
	Success       bool   `json:"success"`
	Output        string `json:"output"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ElapsedMillis int64  `json:"elapsed_ms"`
}

// CompileAndRun compiles and runs source. Compile and runtime failures are
// reported through Result.ErrorMessage; output printed before a runtime
// failure is discarded.
func CompileAndRun(ctx context.Context, source string, opts ...Option) Result {
	start := time.Now()
	result := Result{}
	code, err := Compile(source, opts...)
	if err == nil {
		result.Output, err = Run(ctx, code, opts...)
	}
	if err != nil {
		result.Output = ""
		result.ErrorMessage = err.Error()
	} else {
		result.Success = true
	}
	result.ElapsedMillis = time.Since(start).Milliseconds()
	return result
}
