package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T) Layout {
	t.Helper()
	dir := t.TempDir()
	return NewLayout(filepath.Join(dir, "output", "PartTwo"), "", "", filepath.Join(dir, "OutputDataForPartTwo"))
}

func TestNewLayout_Defaults(t *testing.T) {
	l := NewLayout("", "", "", "")
	assert.Equal(t, "output/PartTwo", filepath.ToSlash(l.Root))
	assert.Equal(t, l.Root, l.Stage1Dir)
	assert.Equal(t, "output/PartTwo/job2", filepath.ToSlash(l.Stage2Dir))
	assert.Equal(t, "output/PartTwo/part-r-00000", filepath.ToSlash(l.Stage1Part()))
	assert.Equal(t, "output/PartTwo/job2/part-r-00000", filepath.ToSlash(l.Stage2Part()))
	assert.Equal(t, "OutputDataForPartTwo", l.ResultPath)
}

func TestReset(t *testing.T) {
	l := testLayout(t)

	// Absent root is fine.
	require.NoError(t, Reset(l))

	f, err := CreatePart(l.Stage2Dir, l.PartName)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Reset(l))
	_, err = os.Stat(l.Root)
	assert.True(t, os.IsNotExist(err))
}

func TestReset_WriteProtected(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	l := testLayout(t)
	f, err := CreatePart(l.Stage2Dir, l.PartName)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.Chmod(l.Stage2Dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(l.Stage2Dir, 0o755) })

	err = Reset(l)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkspaceDelete))
	assert.Contains(t, err.Error(), l.Root)
}

func TestCreatePart_Truncates(t *testing.T) {
	l := testLayout(t)
	require.NoError(t, os.MkdirAll(l.Stage1Dir, 0o755))
	require.NoError(t, os.WriteFile(l.Stage1Part(), []byte("stale\n"), 0o644))

	f, err := CreatePart(l.Stage1Dir, l.PartName)
	require.NoError(t, err)
	_, err = f.WriteString("1\tfresh\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(l.Stage1Part())
	require.NoError(t, err)
	assert.Equal(t, "1\tfresh\n", string(b))
}

func TestPromote_Overwrites(t *testing.T) {
	l := testLayout(t)
	f, err := CreatePart(l.Stage2Dir, l.PartName)
	require.NoError(t, err)
	_, err = f.WriteString("3\tbob\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(l.ResultPath, []byte("old result that is longer\n"), 0o644))
	require.NoError(t, Promote(l.Stage2Part(), l.ResultPath))

	b, err := os.ReadFile(l.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, "3\tbob\n", string(b))

	entries, err := os.ReadDir(filepath.Dir(l.ResultPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}

func TestPromote_MissingSource(t *testing.T) {
	l := testLayout(t)
	err := Promote(l.Stage2Part(), l.ResultPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPromote))
	assert.Contains(t, err.Error(), l.ResultPath)
}

func TestCleanup_RemovesBothStages(t *testing.T) {
	l := testLayout(t)
	for _, dir := range []string{l.Stage1Dir, l.Stage2Dir} {
		f, err := CreatePart(dir, l.PartName)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	require.NoError(t, Cleanup(l))
	_, err := os.Stat(l.Root)
	assert.True(t, os.IsNotExist(err))
	// Cleaning an absent tree is a no-op.
	require.NoError(t, Cleanup(l))
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"out/PartTwo", "out/PartTwo", true},
		{"out/PartTwo", "out/PartTwo/", true},
		{"out/PartTwo", "out/PartTwo/job2/part-r-00000", true},
		{"out/PartTwo", "out/./PartTwo/x/../result", true},
		{"out/PartTwo", "out/PartTwoResult", false},
		{"out/PartTwo", "out/result", false},
		{"out/PartTwo", "out", false},
		{"out/PartTwo", "..", false},
	}
	for _, tt := range tests {
		got, err := Within(tt.root, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Within(%q, %q)", tt.root, tt.path)
	}
}

func TestCheckInput(t *testing.T) {
	l := testLayout(t)
	err := CheckInput(l, filepath.Join(l.Root, "actors.tsv"))
	assert.True(t, errors.Is(err, ErrInputInWorkspace))

	assert.NoError(t, CheckInput(l, filepath.Join(filepath.Dir(l.Root), "actors.tsv")))
}
