package testing

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// OutputConfig configures output formatting.
type OutputConfig struct {
	// Writer is where output is written.
	Writer io.Writer

	// Verbose prints a line for passing programs too.
	Verbose bool

	// UseColor enables ANSI color codes.
	UseColor bool
}

// Output prints results in the style of go test.
type Output struct {
	w        io.Writer
	verbose  bool
	useColor bool
}

// NewOutput creates a new Output formatter.
func NewOutput(cfg OutputConfig) *Output {
	return &Output{
		w:        cfg.Writer,
		verbose:  cfg.Verbose,
		useColor: cfg.UseColor,
	}
}

// Result prints the line for one program, followed by details for anything
// that did not pass.
func (o *Output) Result(r *Result) {
	if r.Status == StatusPassed && !o.verbose {
		return
	}
	var label string
	switch r.Status {
	case StatusPassed:
		label = o.colorize(color.FgGreen, "--- PASS:")
	case StatusFailed:
		label = o.colorize(color.FgRed, "--- FAIL:")
	case StatusSkipped:
		label = o.colorize(color.FgYellow, "--- SKIP:")
	default:
		label = o.colorize(color.FgRed, "--- ERROR:")
	}
	fmt.Fprintf(o.w, "%s %s (%.3fs)\n", label, r.Name, r.Duration.Seconds())
	if r.Message != "" {
		fmt.Fprintf(o.w, "    %s\n", r.Message)
	}
	if r.Status == StatusFailed {
		fmt.Fprintf(o.w, "        %s:  %q\n", o.colorize(color.FgRed, "got"), r.Got)
		fmt.Fprintf(o.w, "        %s: %q\n", o.colorize(color.FgGreen, "want"), r.Want)
	}
}

// Summary prints the final status and counts.
func (o *Output) Summary(summary *Summary) {
	fmt.Fprintln(o.w)
	if summary.Success() {
		fmt.Fprintln(o.w, o.colorize(color.FgGreen, "PASS"))
	} else {
		fmt.Fprintln(o.w, o.colorize(color.FgRed, "FAIL"))
	}

	var parts []string
	if summary.Passed > 0 {
		parts = append(parts, o.colorize(color.FgGreen, fmt.Sprintf("%d passed", summary.Passed)))
	}
	if summary.Failed > 0 {
		parts = append(parts, o.colorize(color.FgRed, fmt.Sprintf("%d failed", summary.Failed)))
	}
	if summary.Skipped > 0 {
		parts = append(parts, o.colorize(color.FgYellow, fmt.Sprintf("%d skipped", summary.Skipped)))
	}
	if summary.Errors > 0 {
		parts = append(parts, o.colorize(color.FgRed, fmt.Sprintf("%d errors", summary.Errors)))
	}
	if len(parts) > 0 {
		fmt.Fprintf(o.w, "%s (%.3fs)\n", strings.Join(parts, ", "), summary.Duration.Seconds())
	}
}

// PrintResults prints every result and the summary.
func (o *Output) PrintResults(summary *Summary) {
	for _, r := range summary.Results {
		o.Result(r)
	}
	o.Summary(summary)
}

func (o *Output) colorize(attr color.Attribute, s string) string {
	if !o.useColor {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}
