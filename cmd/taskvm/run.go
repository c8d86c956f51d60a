package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/errors"
	"github.com/taskvm/taskvm/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [file...]",
	Short: "Compile and run programs",
	Example: `  taskvm run examples/loop.tvm
  taskvm run --code 'real a = 2; print a * 4;'
  echo 'println "hi";' | taskvm run --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		if err := checkFormat(format); err != nil {
			return err
		}
		programs, err := readPrograms(cmd, args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		timing, _ := cmd.Flags().GetBool("timing")
		trace, _ := cmd.Flags().GetBool("trace")
		return runPrograms(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), programs, runSettings{
			format:    strings.ToLower(format),
			timing:    timing,
			trace:     trace,
			stepLimit: viper.GetInt64("step-limit"),
		})
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringP("code", "c", "", "Code to run")
	flags.Bool("stdin", false, "Read code from stdin")
	flags.StringP("output", "o", "text", "Output format (text or json)")
	flags.Bool("timing", false, "Show execution time")
	flags.Bool("trace", false, "Print every executed instruction to stderr")
	flags.Int64("step-limit", 0, "Stop programs after this many instructions (0 for no limit)")
	viper.BindPFlag("step-limit", flags.Lookup("step-limit"))
	runCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp))
	rootCmd.AddCommand(runCmd)
}

type runSettings struct {
	format    string
	timing    bool
	trace     bool
	stepLimit int64
}

type runReport struct {
	Name string `json:"name"`
	taskvm.Result
}

// tracer prints one line per executed instruction.
type tracer struct {
	vm.NoOpObserver
	w io.Writer
}

func (t tracer) OnStep(e vm.StepEvent) bool {
	fmt.Fprintf(t.w, "%04d %-10s line %-4d depth %d\n", e.IP, e.OpcodeName, e.Line, e.StackDepth)
	return true
}

// runPrograms runs each program in turn. Program output goes to stdout and
// diagnostics to stderr. The returned error summarizes every failed program.
func runPrograms(ctx context.Context, stdout, stderr io.Writer, programs []program, s runSettings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		result  *multierror.Error
		reports []runReport
	)
	for _, p := range programs {
		opts := []taskvm.Option{
			taskvm.WithFilename(p.name),
			taskvm.WithStepLimit(s.stepLimit),
		}
		if s.trace {
			opts = append(opts, taskvm.WithObserver(tracer{w: stderr}))
		}
		start := time.Now()
		output, err := compileAndRun(ctx, p.source, opts...)
		elapsed := time.Since(start)

		if s.format == "json" {
			report := runReport{Name: p.name, Result: taskvm.Result{
				Success:       err == nil,
				Output:        output,
				ElapsedMillis: elapsed.Milliseconds(),
			}}
			if err != nil {
				report.ErrorMessage = err.Error()
			}
			reports = append(reports, report)
		} else {
			fmt.Fprint(stdout, output)
			if err != nil {
				fmt.Fprintln(stderr, describeError(err))
			}
		}
		if s.timing {
			fmt.Fprintf(stderr, "%s: %.03f ms\n", p.name, float64(elapsed.Microseconds())/1000.0)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	if s.format == "json" {
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		data, err := marshalJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%d of %d programs failed", len(result.Errors), len(programs))
	}
	return nil
}

func compileAndRun(ctx context.Context, source string, opts ...taskvm.Option) (string, error) {
	code, err := taskvm.Compile(source, opts...)
	if err != nil {
		return "", err
	}
	return taskvm.Run(ctx, code, opts...)
}

// describeError renders toolchain errors with source context.
func describeError(err error) string {
	if fe, ok := err.(errors.FormattableError); ok {
		return strings.TrimRight(errors.NewFormatter(!color.NoColor).Format(fe.ToFormatted()), "\n")
	}
	return err.Error()
}
