// Package workspace owns the on-disk artifacts of a castrank run: the
// intermediate directory tree shared by both stages and the promoted result file.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultRoot         = "output/PartTwo"
	DefaultStage2Subdir = "job2"
	DefaultPartName     = "part-r-00000"
	DefaultResultPath   = "OutputDataForPartTwo"
)

var (
	// ErrWorkspaceDelete means a stale intermediate tree could not be removed.
	ErrWorkspaceDelete = errors.New("unable to delete intermediate directory")
	// ErrWorkspaceDirty means the intermediate tree still exists after removal
	// reported success.
	ErrWorkspaceDirty = errors.New("intermediate directory still present after delete")
	// ErrPromote means the final output could not be copied to the result path.
	ErrPromote = errors.New("unable to copy final output to result path")
	// ErrInputInWorkspace means the input file lies inside the intermediate tree,
	// which Reset would delete before it is read.
	ErrInputInWorkspace = errors.New("input lies inside the intermediate directory")
)

// Layout names every path a run touches. Stage2Dir is nested under Root so one
// recursive delete of Root removes both stages' artifacts.
type Layout struct {
	Root       string
	Stage1Dir  string
	Stage2Dir  string
	PartName   string
	ResultPath string
}

// NewLayout builds a layout rooted at root. Empty arguments take the defaults.
func NewLayout(root, stage2Subdir, partName, resultPath string) Layout {
	if root == "" {
		root = DefaultRoot
	}
	if stage2Subdir == "" {
		stage2Subdir = DefaultStage2Subdir
	}
	if partName == "" {
		partName = DefaultPartName
	}
	if resultPath == "" {
		resultPath = DefaultResultPath
	}
	return Layout{
		Root:       root,
		Stage1Dir:  root,
		Stage2Dir:  filepath.Join(root, stage2Subdir),
		PartName:   partName,
		ResultPath: resultPath,
	}
}

// Stage1Part is the single output partition of the group-count stage.
func (l Layout) Stage1Part() string { return filepath.Join(l.Stage1Dir, l.PartName) }

// Stage2Part is the single output partition of the rank-sort stage.
func (l Layout) Stage2Part() string { return filepath.Join(l.Stage2Dir, l.PartName) }

// Within reports whether path is root itself or lies below it. Both paths are
// made absolute and cleaned; symlinks are not resolved.
func Within(root, path string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		// Different volumes.
		return false, nil
	}
	if rel == "." {
		return true, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// CheckInput rejects an input path that Reset or Cleanup would delete.
func CheckInput(l Layout, input string) error {
	inside, err := Within(l.Root, input)
	if err != nil {
		return fmt.Errorf("resolve input %s: %w", input, err)
	}
	if inside {
		return fmt.Errorf("%w: %s is under %s", ErrInputInWorkspace, input, l.Root)
	}
	return nil
}

// Reset removes any intermediate tree left by an earlier run.
func Reset(l Layout) error {
	if _, err := os.Lstat(l.Root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w %s: %v", ErrWorkspaceDelete, l.Root, err)
	}
	if err := os.RemoveAll(l.Root); err != nil {
		return fmt.Errorf("%w %s (is it write protected?): %v", ErrWorkspaceDelete, l.Root, err)
	}
	if _, err := os.Lstat(l.Root); err == nil {
		return fmt.Errorf("%w: %s", ErrWorkspaceDirty, l.Root)
	}
	return nil
}

// CreatePart creates dir if needed and creates (or truncates) the partition file
// inside it. The caller owns the returned file.
func CreatePart(dir, partName string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, partName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create partition %s: %w", path, err)
	}
	return f, nil
}

// Promote copies src to dst, replacing dst atomically: the bytes go to a temp
// file in dst's directory which is synced and then renamed over dst.
func Promote(src, dst string) error {
	if err := promote(src, dst); err != nil {
		return fmt.Errorf("%w %s: %v", ErrPromote, dst, err)
	}
	return nil
}

func promote(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Cleanup deletes the whole intermediate tree.
func Cleanup(l Layout) error {
	if err := os.RemoveAll(l.Root); err != nil {
		return fmt.Errorf("delete intermediate directory %s: %w", l.Root, err)
	}
	return nil
}
