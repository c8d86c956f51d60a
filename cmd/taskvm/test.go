package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	tvmtest "github.com/taskvm/taskvm/testing"
)

var testCmd = &cobra.Command{
	Use:   "test [patterns...]",
	Short: "Check programs against their expected output",
	Long: `Runs every *.tvm program matching the patterns and compares it with a
sibling .out file (exact output) or .err file (text the error must contain).

Patterns may be files, directories, globs, or "dir/..." to search recursively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		run, _ := cmd.Flags().GetString("run")
		verbose, _ := cmd.Flags().GetBool("verbose")
		limit, _ := cmd.Flags().GetInt64("step-limit")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		cfg := &tvmtest.Config{
			Patterns:   args,
			RunPattern: run,
			StepLimit:  limit,
			Timeout:    timeout,
		}
		return runTests(cmd, cmd.OutOrStdout(), cfg, verbose)
	},
}

func init() {
	testCmd.Flags().String("run", "", "Only check programs whose path matches this regex")
	testCmd.Flags().BoolP("verbose", "v", false, "Report passing programs too")
	testCmd.Flags().Int64("step-limit", 10_000_000, "Stop each program after this many instructions (0 for no limit)")
	testCmd.Flags().Duration("timeout", 10*time.Second, "Cancel each program after this long (0 for no limit)")
	rootCmd.AddCommand(testCmd)
}

func runTests(cmd *cobra.Command, w io.Writer, cfg *tvmtest.Config, verbose bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summary, err := tvmtest.Run(ctx, cfg)
	if err != nil {
		return err
	}
	if len(summary.Results) == 0 {
		return errors.New("no programs found")
	}
	tvmtest.NewOutput(tvmtest.OutputConfig{
		Writer:   w,
		Verbose:  verbose,
		UseColor: !color.NoColor,
	}).PrintResults(summary)
	if !summary.Success() {
		return fmt.Errorf("%d of %d programs failed", summary.Failed+summary.Errors, len(summary.Results))
	}
	return nil
}
