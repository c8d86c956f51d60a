package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Formatter renders errors in a Rust-like layout, optionally with ANSI colors.
type Formatter struct {
	// UseColor enables ANSI color codes in output.
	UseColor bool
}

// NewFormatter creates a new error formatter.
func NewFormatter(useColor bool) *Formatter {
	return &Formatter{UseColor: useColor}
}

type palette []color.Attribute

var (
	colorError     = palette{color.FgRed}
	colorErrorBold = palette{color.FgHiRed, color.Bold}
	colorCode      = palette{color.FgHiBlack}
	colorLocation  = palette{color.FgCyan}
	colorGutter    = palette{color.FgHiBlack}
	colorCaret     = palette{color.FgHiRed}
	colorHint      = palette{color.FgHiYellow}
	colorNote      = palette{color.FgHiBlue}
)

// FormattedError represents an error ready for display.
type FormattedError struct {
	Code        ErrorCode
	Kind        string // "lex error", "type error", "runtime error", ...
	Message     string
	Filename    string
	Line        int
	Column      int
	SourceLines []SourceLineEntry
	Hint        string // "Did you mean?" suggestion
	Note        string
}

// SourceLineEntry represents a line of source code with its number.
type SourceLineEntry struct {
	Number int
	Text   string
	IsMain bool // the line with the error
}

// Format formats the error as a string.
func (f *Formatter) Format(err *FormattedError) string {
	return f.FormatWithPrefix(err, "")
}

// FormatWithPrefix formats the error with an optional prefix like "1/5"
// shown in place of the error code.
func (f *Formatter) FormatWithPrefix(err *FormattedError, prefix string) string {
	var b strings.Builder
	width := 2
	if err.Line >= 100 {
		width = len(fmt.Sprintf("%d", err.Line))
	}
	pad := strings.Repeat(" ", width)

	label := err.Kind
	if label == "" {
		label = "error"
	}
	b.WriteString(f.paint(colorErrorBold, label))
	if err.Code != "" {
		b.WriteString(f.paint(colorCode, "["+string(err.Code)+"]"))
	} else if prefix != "" {
		b.WriteString(f.paint(colorCode, "["+prefix+"]"))
	}
	b.WriteString(f.paint(colorError, ": "))
	b.WriteString(err.Message)
	b.WriteString("\n")

	if err.Line > 0 || err.Filename != "" {
		loc := err.Filename
		if err.Line > 0 {
			if loc != "" {
				loc += ":"
			}
			loc += fmt.Sprintf("%d:%d", err.Line, err.Column)
		}
		b.WriteString(pad)
		b.WriteString(f.paint(colorLocation, "-->"))
		b.WriteString(" ")
		b.WriteString(f.paint(colorLocation, loc))
		b.WriteString("\n")
	}

	if len(err.SourceLines) > 0 {
		b.WriteString(pad)
		b.WriteString(f.paint(colorGutter, " |\n"))
		for _, line := range err.SourceLines {
			b.WriteString(f.paint(colorGutter, fmt.Sprintf("%*d | ", width, line.Number)))
			b.WriteString(line.Text)
			b.WriteString("\n")
			if line.IsMain && err.Column > 0 {
				b.WriteString(pad)
				b.WriteString(f.paint(colorGutter, " | "))
				b.WriteString(caretPadding(line.Text, err.Column))
				b.WriteString(f.paint(colorCaret, "^"))
				b.WriteString("\n")
			}
		}
	}

	if err.Hint != "" {
		b.WriteString(pad)
		b.WriteString(f.paint(colorGutter, " |\n"))
		b.WriteString(pad)
		b.WriteString(f.paint(colorGutter, " = "))
		b.WriteString(f.paint(colorHint, "hint: "))
		b.WriteString(err.Hint)
		b.WriteString("\n")
	}
	if err.Note != "" {
		b.WriteString(pad)
		b.WriteString(f.paint(colorGutter, " = "))
		b.WriteString(f.paint(colorNote, "note: "))
		b.WriteString(err.Note)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatMultiple formats several errors, numbering them when there is more
// than one.
func (f *Formatter) FormatMultiple(errs []*FormattedError) string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return f.Format(errs[0])
	}
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.FormatWithPrefix(err, fmt.Sprintf("%d/%d", i+1, len(errs))))
	}
	b.WriteString("\n")
	b.WriteString(f.paint(colorErrorBold, fmt.Sprintf("found %d errors", len(errs))))
	b.WriteString("\n")
	return b.String()
}

// paint ignores color.NoColor when UseColor is set, so callers that have
// already checked the terminal get colors even when stdout is redirected.
func (f *Formatter) paint(p palette, s string) string {
	if !f.UseColor {
		return s
	}
	c := color.New(p...)
	c.EnableColor()
	return c.Sprint(s)
}

// caretPadding keeps tabs in the source line so the caret lines up with
// the reported column.
func caretPadding(text string, column int) string {
	var b strings.Builder
	for i := 0; i < column-1; i++ {
		if i < len(text) && text[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
