package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// program is a source text and the name it is reported under.
type program struct {
	name   string
	source string
}

// readPrograms determines what code is to be used. There are three
// possibilities:
//  1. --code <code>
//  2. --stdin, or no other input while stdin is not a terminal
//  3. one or more file paths as arguments
func readPrograms(cmd *cobra.Command, args []string, stdin io.Reader) ([]program, error) {
	codeSet := cmd.Flags().Changed("code")
	stdinSet, _ := cmd.Flags().GetBool("stdin")

	count := 0
	for _, set := range []bool{codeSet, stdinSet, len(args) > 0} {
		if set {
			count++
		}
	}
	if count > 1 {
		return nil, errors.New("multiple input sources specified")
	}
	if count == 0 {
		if !stdinIsPiped() {
			return nil, errors.New("no input provided")
		}
		stdinSet = true
	}

	switch {
	case codeSet:
		code, _ := cmd.Flags().GetString("code")
		return []program{{name: "<code>", source: code}}, nil
	case stdinSet:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		return []program{{name: "<stdin>", source: string(data)}}, nil
	}
	programs := make([]program, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		programs = append(programs, program{name: filepath.Base(path), source: string(data)})
	}
	return programs, nil
}

func stdinIsPiped() bool {
	fd := os.Stdin.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
