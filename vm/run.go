package vm

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/taskvm/taskvm/bytecode"
)

// Run executes code in a new Virtual Machine and returns its output.
func Run(ctx context.Context, code *bytecode.Code, options ...Option) (string, error) {
	machine := New(code, options...)
	if err := machine.Run(ctx); err != nil {
		return "", err
	}
	return machine.Output(), nil
}

// FormatNumber renders a value the way print_real does: the shortest
// decimal form, with Infinity and NaN spelled out. Magnitudes of at least
// 1e21 or below 1e-6 use an exponent, as in 1e+21 and 1.5e-7.
func FormatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.IsNaN(v):
		return "NaN"
	}
	if abs := math.Abs(v); abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
