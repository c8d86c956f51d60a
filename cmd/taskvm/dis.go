package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/dis"
)

var disCmd = &cobra.Command{
	Use:   "dis [file]",
	Short: "Disassemble a program",
	Long: `Compile a program and print its bytecode.

By default a table is printed. --listing prints a plain text listing that
"taskvm exec" can assemble and run, and --json prints the bytecode document
that "taskvm exec" loads directly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		programs, err := readPrograms(cmd, args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		listing, _ := cmd.Flags().GetBool("listing")
		if asJSON && listing {
			return errors.New("--json and --listing are mutually exclusive")
		}
		mode := disTable
		switch {
		case asJSON:
			mode = disJSON
		case listing:
			mode = disListing
		}
		p := programs[0]
		return disassemble(cmd.OutOrStdout(), p, mode)
	},
}

func init() {
	flags := disCmd.Flags()
	flags.StringP("code", "c", "", "Code to disassemble")
	flags.Bool("stdin", false, "Read code from stdin")
	flags.Bool("json", false, "Print the bytecode as JSON")
	flags.Bool("listing", false, "Print an assemblable listing")
	rootCmd.AddCommand(disCmd)
}

type disMode int

const (
	disTable disMode = iota
	disListing
	disJSON
)

func disassemble(w io.Writer, p program, mode disMode) error {
	code, err := taskvm.Compile(p.source, taskvm.WithFilename(p.name))
	if err != nil {
		return errors.New(describeError(err))
	}
	if mode == disJSON {
		data, err := bytecode.Marshal(code)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	instructions, err := dis.Disassemble(code)
	if err != nil {
		return err
	}
	if mode == disListing {
		fmt.Fprint(w, dis.Format(instructions, code.Strings()))
		return nil
	}
	return dis.Print(instructions, w)
}
