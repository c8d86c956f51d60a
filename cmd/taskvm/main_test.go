package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/taskvm/taskvm/internal/config"
	tvmtest "github.com/taskvm/taskvm/testing"
)

func init() {
	color.NoColor = true
}

func newInputCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("code", "c", "", "")
	cmd.Flags().Bool("stdin", false, "")
	return cmd
}

func TestReadPrograms(t *testing.T) {
	cmd := newInputCmd()
	require.Nil(t, cmd.Flags().Set("code", "print 1;"))
	programs, err := readPrograms(cmd, nil, strings.NewReader(""))
	require.Nil(t, err)
	require.Equal(t, []program{{name: "<code>", source: "print 1;"}}, programs)

	cmd = newInputCmd()
	require.Nil(t, cmd.Flags().Set("stdin", "true"))
	programs, err = readPrograms(cmd, nil, strings.NewReader("print 2;"))
	require.Nil(t, err)
	require.Equal(t, "print 2;", programs[0].source)

	dir := t.TempDir()
	a := filepath.Join(dir, "a.tvm")
	b := filepath.Join(dir, "b.tvm")
	require.Nil(t, os.WriteFile(a, []byte("print 1;"), 0o644))
	require.Nil(t, os.WriteFile(b, []byte("print 2;"), 0o644))
	programs, err = readPrograms(newInputCmd(), []string{a, b}, nil)
	require.Nil(t, err)
	require.Equal(t, []program{{name: "a.tvm", source: "print 1;"}, {name: "b.tvm", source: "print 2;"}}, programs)

	cmd = newInputCmd()
	require.Nil(t, cmd.Flags().Set("code", "print 1;"))
	_, err = readPrograms(cmd, []string{a}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple input sources")

	_, err = readPrograms(newInputCmd(), []string{filepath.Join(dir, "missing.tvm")}, nil)
	require.Error(t, err)
}

func TestRunProgramsText(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runPrograms(context.Background(), &stdout, &stderr, []program{
		{name: "a", source: "real i = 0; while (i < 3) { print i; i = i + 1; }"},
		{name: "b", source: `println "done";`},
	}, runSettings{format: "text"})
	require.Nil(t, err)
	require.Equal(t, "012done\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunProgramsReportsErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runPrograms(context.Background(), &stdout, &stderr, []program{
		{name: "bad.tvm", source: "real a;\nprint b;"},
		{name: "ok.tvm", source: "print 1;"},
	}, runSettings{format: "text"})
	require.Error(t, err)
	require.Equal(t, "1 of 2 programs failed", err.Error())
	require.Equal(t, "1", stdout.String())
	require.Contains(t, stderr.String(), "undeclared identifier b")
	require.Contains(t, stderr.String(), "print b;")
}

func TestRunProgramsJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runPrograms(context.Background(), &stdout, &stderr, []program{
		{name: "a", source: "print 2 * 4;"},
	}, runSettings{format: "json"})
	require.Nil(t, err)
	var report runReport
	require.Nil(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Equal(t, "a", report.Name)
	require.True(t, report.Success)
	require.Equal(t, "8", report.Output)
}

func TestRunProgramsTraceAndTiming(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runPrograms(context.Background(), &stdout, &stderr, []program{
		{name: "a", source: "print 1;"},
	}, runSettings{format: "text", trace: true, timing: true})
	require.Nil(t, err)
	require.Equal(t, "1", stdout.String())
	require.Contains(t, stderr.String(), "0000 ld_const")
	require.Contains(t, stderr.String(), "0009 print_real")
	require.Contains(t, stderr.String(), "a: ")
}

func TestRunProgramsStepLimit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runPrograms(context.Background(), &stdout, &stderr, []program{
		{name: "loop", source: "while (1 == 1) ;"},
	}, runSettings{format: "text", stepLimit: 100})
	require.Error(t, err)
	require.Contains(t, stderr.String(), "step limit")
}

func TestDisassembleModes(t *testing.T) {
	p := program{name: "p", source: `string s = "hi"; println s;`}

	var table bytes.Buffer
	require.Nil(t, disassemble(&table, p, disTable))
	require.Contains(t, table.String(), "OPCODE")
	require.Contains(t, table.String(), "print_str")

	var listing bytes.Buffer
	require.Nil(t, disassemble(&listing, p, disListing))
	require.True(t, strings.HasPrefix(listing.String(), ".strings\n0 \"\"\n"))

	var doc bytes.Buffer
	require.Nil(t, disassemble(&doc, p, disJSON))
	require.Contains(t, doc.String(), `"version":1`)

	// Both forms run through exec with the same output.
	for _, data := range [][]byte{listing.Bytes(), doc.Bytes()} {
		var out bytes.Buffer
		require.Nil(t, execBytecode(context.Background(), &out, data, 0))
		require.Equal(t, "hi\n", out.String())
	}

	err := disassemble(io.Discard, program{name: "bad", source: "print ;"}, disTable)
	require.Error(t, err)
	require.Contains(t, err.Error(), "syntax error")
}

func TestExecRejectsGarbage(t *testing.T) {
	err := execBytecode(context.Background(), io.Discard, []byte("hello"), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid bytecode")

	err = execBytecode(context.Background(), io.Discard, []byte(`{"version": 2}`), 0)
	require.Error(t, err)
}

func TestPrintVersion(t *testing.T) {
	var text bytes.Buffer
	require.Nil(t, printVersion(&text, "text"))
	require.True(t, strings.HasPrefix(text.String(), "taskvm dev"))

	var js bytes.Buffer
	require.Nil(t, printVersion(&js, "json"))
	var info versionInfo
	require.Nil(t, json.Unmarshal(js.Bytes(), &info))
	require.Equal(t, "dev", info.Version)

	require.Error(t, checkFormat("yaml"))
}

func TestStoreURL(t *testing.T) {
	url, err := storeURL("sqlite", "/tmp/tasks.db")
	require.Nil(t, err)
	require.Equal(t, "sqlite:/tmp/tasks.db", url)

	url, err = storeURL("postgres", "postgres://localhost/tasks")
	require.Nil(t, err)
	require.Equal(t, "postgres://localhost/tasks", url)

	url, err = storeURL("memory", "")
	require.Nil(t, err)
	require.Equal(t, "memory:", url)

	_, err = storeURL("sqlite", "")
	require.Error(t, err)
	_, err = storeURL("oracle", "x")
	require.Error(t, err)
}

func TestLoadServeConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	path := filepath.Join(dir, "taskvm.toml")
	require.Nil(t, os.WriteFile(path, []byte("[scheduler]\nworkers = 3\n[server]\naddr = \":1\"\n"), 0o644))

	viper.Set("config", path)
	viper.Set("addr", "127.0.0.1:9999")
	viper.Set("db-driver", "memory")
	cfg, err := loadServeConfig()
	require.Nil(t, err)
	require.Equal(t, 3, cfg.Scheduler.Workers)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	require.Equal(t, "memory:", cfg.Store.URL)

	viper.Set("workers", 0)
	_, err = loadServeConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheduler.workers")
}

func TestServe(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Store.URL = "memory:"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, io.Discard, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/run", addr), "application/json",
		strings.NewReader(`{"source": "print 6 / 4;"}`))
	require.Nil(t, err)
	var result struct {
		Output string `json:"output"`
	}
	require.Nil(t, json.NewDecoder(resp.Body).Decode(&result))
	resp.Body.Close()
	require.Equal(t, "1.5", result.Output)

	cancel()
	select {
	case err := <-done:
		require.Nil(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunTests(t *testing.T) {
	var buf bytes.Buffer
	err := runTests(&cobra.Command{}, &buf, &tvmtest.Config{
		Patterns:  []string{"../../examples"},
		StepLimit: 1_000_000,
	}, true)
	require.Nil(t, err)
	require.Contains(t, buf.String(), "--- PASS:")
	require.Contains(t, buf.String(), "PASS\n")

	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "bad.tvm"), []byte("print 1;"), 0o644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "bad.out"), []byte("2"), 0o644))
	buf.Reset()
	err = runTests(&cobra.Command{}, &buf, &tvmtest.Config{Patterns: []string{dir}}, false)
	require.Error(t, err)
	require.Equal(t, "1 of 1 programs failed", err.Error())
	require.Contains(t, buf.String(), "--- FAIL:")

	err = runTests(&cobra.Command{}, &buf, &tvmtest.Config{Patterns: []string{t.TempDir()}}, false)
	require.EqualError(t, err, "no programs found")
}
