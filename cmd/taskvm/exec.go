package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/bytecode"
	"github.com/taskvm/taskvm/dis"
)

var execCmd = &cobra.Command{
	Use:   "exec <file>",
	Short: "Run bytecode produced by \"taskvm dis --json\" or \"taskvm dis --listing\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt64("step-limit")
		if !cmd.Flags().Changed("step-limit") {
			limit = viper.GetInt64("step-limit")
		}
		return execBytecode(cmd.Context(), cmd.OutOrStdout(), data, limit)
	},
}

func init() {
	execCmd.Flags().Int64("step-limit", 0, "Stop the program after this many instructions (0 for no limit)")
	rootCmd.AddCommand(execCmd)
}

// loadBytecode accepts either a JSON bytecode document or a listing.
func loadBytecode(data []byte) (*bytecode.Code, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return bytecode.Unmarshal(trimmed)
	}
	instructions, strs, err := dis.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return dis.Assemble(instructions, strs)
}

func execBytecode(ctx context.Context, w io.Writer, data []byte, stepLimit int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	code, err := loadBytecode(data)
	if err != nil {
		return fmt.Errorf("invalid bytecode: %w", err)
	}
	output, err := taskvm.Run(ctx, code, taskvm.WithStepLimit(stepLimit))
	if err != nil {
		return err
	}
	fmt.Fprint(w, output)
	return nil
}
