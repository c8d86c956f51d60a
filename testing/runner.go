// Package testing checks taskvm programs against expected results.
//
// A program name.tvm is paired with name.out, holding the exact expected
// output, or name.err, holding text the compile or runtime error message
// must contain. Programs with neither file are skipped.
package testing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/taskvm/taskvm"
)

const (
	programExt = ".tvm"
	outputExt  = ".out"
	errorExt   = ".err"
)

// Config holds configuration for a run.
type Config struct {
	// Patterns lists files, directories, globs or "dir/..." for a recursive
	// search. Default is the current directory.
	Patterns []string

	// RunPattern filters programs by path regex.
	RunPattern string

	// StepLimit and Timeout bound each program. Zero means unlimited.
	StepLimit int64
	Timeout   time.Duration
}

// DiscoverFiles finds all *.tvm files matching the given patterns, in the
// order they are found.
func DiscoverFiles(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	var files []string
	seen := map[string]bool{}
	add := func(path string) {
		if isProgram(path) && !seen[path] {
			files = append(files, path)
			seen[path] = true
		}
	}

	for _, pattern := range patterns {
		if strings.Contains(pattern, "*") {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		recursive := strings.HasSuffix(pattern, "...")
		dir := pattern
		if recursive {
			dir = strings.TrimSuffix(strings.TrimSuffix(pattern, "..."), "/")
			if dir == "" {
				dir = "."
			}
		}
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("path not found: %s", dir)
		}
		if err != nil {
			return nil, err
		}
		switch {
		case !info.IsDir():
			add(pattern)
		case recursive:
			err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		default:
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !e.IsDir() {
					add(filepath.Join(dir, e.Name()))
				}
			}
		}
	}
	return files, nil
}

func isProgram(path string) bool {
	return strings.HasSuffix(path, programExt)
}

// Run checks every discovered program.
func Run(ctx context.Context, cfg *Config) (*Summary, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	files, err := DiscoverFiles(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	var runRe *regexp.Regexp
	if cfg.RunPattern != "" {
		runRe, err = regexp.Compile(cfg.RunPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid run pattern: %w", err)
		}
	}

	summary := &Summary{}
	start := time.Now()
	for _, file := range files {
		if runRe != nil && !runRe.MatchString(file) {
			continue
		}
		summary.Results = append(summary.Results, checkProgram(ctx, cfg, file))
	}
	summary.Duration = time.Since(start)
	summary.ComputeTotals()
	return summary, nil
}

// checkProgram runs one program and compares it with its expectation.
func checkProgram(ctx context.Context, cfg *Config, path string) *Result {
	result := &Result{Name: path}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	source, err := os.ReadFile(path)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}
	base := strings.TrimSuffix(path, programExt)
	want, wantErr, found, err := readExpectation(base)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}
	if !found {
		result.Status = StatusSkipped
		result.Message = fmt.Sprintf("no %s or %s file", base+outputExt, base+errorExt)
		return result
	}

	run := taskvm.CompileAndRun(ctx, string(source),
		taskvm.WithFilename(filepath.Base(path)),
		taskvm.WithStepLimit(cfg.StepLimit),
		taskvm.WithTimeout(cfg.Timeout))

	result.Want = want
	result.Status = StatusPassed
	switch {
	case wantErr && run.Success:
		result.Status = StatusFailed
		result.Got = run.Output
		result.Message = "program succeeded, expected an error"
	case wantErr && !strings.Contains(run.ErrorMessage, want):
		result.Status = StatusFailed
		result.Got = run.ErrorMessage
		result.Message = "error message does not match"
	case !wantErr && !run.Success:
		result.Status = StatusFailed
		result.Got = run.ErrorMessage
		result.Message = "program failed"
	case !wantErr && run.Output != want:
		result.Status = StatusFailed
		result.Got = run.Output
		result.Message = "output does not match"
	}
	return result
}

// readExpectation loads base.out or, failing that, base.err. Trailing
// whitespace of an .err file is ignored.
func readExpectation(base string) (want string, wantErr bool, found bool, err error) {
	data, err := os.ReadFile(base + outputExt)
	if err == nil {
		return string(data), false, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", false, false, err
	}
	data, err = os.ReadFile(base + errorExt)
	if err == nil {
		return strings.TrimSpace(string(data)), true, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", false, false, err
	}
	return "", false, false, nil
}
