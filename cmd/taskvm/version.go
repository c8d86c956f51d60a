package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		if err := checkFormat(format); err != nil {
			return err
		}
		return printVersion(cmd.OutOrStdout(), format)
	},
}

func init() {
	versionCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

func printVersion(w io.Writer, format string) error {
	info := versionInfo{Version: version, Commit: commit, Date: date, Go: runtime.Version()}
	if format == "json" {
		data, err := marshalJSON(info)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	fmt.Fprintf(w, "taskvm %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.Date, info.Go)
	return nil
}
