package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleInput = "alice\tX\t1\nbob\tY\t1\nalice\tZ\t1\ncarol\tW\t1\nbob\tV\t1\nbob\tU\t1\n"

// runCLI executes castrank with args and returns the exit code and output.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// testWorkdir creates a workdir holding the example input and a config that
// keeps logs quiet.
func testWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "actors.tsv"), []byte(exampleInput), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "castrank.yaml"), []byte("logging:\n  level: error\n"), 0o644))
	return dir
}

func readResult(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "OutputDataForPartTwo"))
	require.NoError(t, err)
	return string(b)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"two inputs", []string{"a.tsv", "b.tsv"}},
		{"run without input", []string{"run"}},
		{"unknown flag", []string{"run", "--bogus", "a.tsv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, stderr, "Usage:")
		})
	}
}

func TestRun_Example(t *testing.T) {
	dir := testWorkdir(t)

	code, _, stderr := runCLI(t, "-w", dir, "run", "actors.tsv")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "3\tbob\n2\talice\n1\tcarol\n", readResult(t, dir))

	_, err := os.Stat(filepath.Join(dir, "output", "PartTwo"))
	assert.True(t, os.IsNotExist(err), "intermediate tree should be removed")
}

func TestRootCommandRunsPipeline(t *testing.T) {
	dir := testWorkdir(t)

	code, _, stderr := runCLI(t, "-w", dir, "actors.tsv")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "3\tbob\n2\talice\n1\tcarol\n", readResult(t, dir))
}

func TestRun_SentinelAndFlags(t *testing.T) {
	dir := testWorkdir(t)
	result := filepath.Join(dir, "ranked.tsv")

	code, _, stderr := runCLI(t, "-w", dir, "run", "--emit", "sentinel", "--result", result, "--keep-intermediate", "actors.tsv")
	require.Equal(t, 0, code, stderr)

	b, err := os.ReadFile(result)
	require.NoError(t, err)
	assert.Equal(t, "3\tsuccess\n2\tsuccess\n1\tsuccess\n", string(b))

	_, err = os.Stat(filepath.Join(dir, "output", "PartTwo", "job2", "part-r-00000"))
	assert.NoError(t, err)
}

func TestRun_InvalidEmit(t *testing.T) {
	dir := testWorkdir(t)
	code, _, _ := runCLI(t, "-w", dir, "run", "--emit", "loud", "actors.tsv")
	assert.Equal(t, 2, code)
}

func TestRun_MissingInput(t *testing.T) {
	dir := testWorkdir(t)
	code, _, stderr := runCLI(t, "-w", dir, "run", "missing.tsv")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing.tsv")

	_, err := os.Stat(filepath.Join(dir, "OutputDataForPartTwo"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ResultInsideRoot(t *testing.T) {
	dir := testWorkdir(t)
	code, _, stderr := runCLI(t, "-w", dir, "run", "--root", "out", "--result", "out/r.tsv", "actors.tsv")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "must not be inside")
}

func TestRun_InputInsideRoot(t *testing.T) {
	dir := testWorkdir(t)
	input := filepath.Join(dir, "data", "actors.tsv")
	require.NoError(t, os.MkdirAll(filepath.Dir(input), 0o755))
	require.NoError(t, os.WriteFile(input, []byte(exampleInput), 0o644))

	code, _, stderr := runCLI(t, "-w", dir, "run", "--root", "data", "data/actors.tsv")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "input lies inside")

	b, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, exampleInput, string(b))
}

func TestRun_MissingConfigFile(t *testing.T) {
	dir := testWorkdir(t)
	code, _, _ := runCLI(t, "-w", dir, "--config", "nope.yaml", "run", "actors.tsv")
	assert.Equal(t, 1, code)
}

func TestRun_Summary(t *testing.T) {
	dir := testWorkdir(t)
	code, stdout, stderr := runCLI(t, "-w", dir, "run", "--summary", "2", "actors.tsv")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "bob")
	assert.Contains(t, stdout, "alice")
	assert.NotContains(t, stdout, "carol")
}

func TestRun_DumpConfig(t *testing.T) {
	dir := testWorkdir(t)
	code, _, stderr := runCLI(t, "-w", dir, "run", "--dump-config", "--workers", "3", "actors.tsv")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "workers: 3")
	assert.Contains(t, stderr, "emit: key")
}

func TestSQLiteExportAndTop(t *testing.T) {
	dir := testWorkdir(t)

	code, _, stderr := runCLI(t, "-w", dir, "run", "--sqlite", "runs.db", "actors.tsv")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runCLI(t, "-w", dir, "top", "--db", "runs.db", "-n", "1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "bob")
	assert.NotContains(t, stdout, "alice")

	code, stdout, stderr = runCLI(t, "-w", dir, "runs", "--db", "runs.db")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "3 keys, 6 total")
}

func TestTop_NoDatabase(t *testing.T) {
	dir := testWorkdir(t)
	code, _, _ := runCLI(t, "-w", dir, "top")
	assert.Equal(t, 2, code)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()

	code, stdout, stderr := runCLI(t, "-w", dir, "config", "init")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "castrank.yaml")

	code, _, stderr = runCLI(t, "-w", dir, "config", "init")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = runCLI(t, "-w", dir, "config", "init", "--force")
	require.Equal(t, 0, code, stderr)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "castrank.yaml"),
		[]byte("rank_sort:\n  emit: sentinel\nlogging:\n  level: error\n"), 0o644))
	code, stdout, stderr = runCLI(t, "-w", dir, "config", "show")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.Contains(stdout, "emit: sentinel"), stdout)
}
