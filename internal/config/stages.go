package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"castrank/internal/groupcount"
	"castrank/internal/ranksort"
	"castrank/internal/workspace"
)

// WorkspaceConfig locates the intermediate tree and the result file.
type WorkspaceConfig struct {
	Root             string `yaml:"root"`
	Stage2Subdir     string `yaml:"stage2_subdir"`
	PartName         string `yaml:"part_name"`
	ResultPath       string `yaml:"result_path"`
	KeepIntermediate bool   `yaml:"keep_intermediate"`
}

// GroupCountConfig configures stage 1.
type GroupCountConfig struct {
	Workers          int `yaml:"workers"` // 0 = one per CPU
	ChunkLines       int `yaml:"chunk_lines"`
	OutputPartitions int `yaml:"output_partitions"`
}

// RankSortConfig configures stage 2.
type RankSortConfig struct {
	Emit             string `yaml:"emit"`     // key, sentinel
	Sentinel         string `yaml:"sentinel"` // written instead of the key when emit=sentinel
	OutputPartitions int    `yaml:"output_partitions"`
}

func (w WorkspaceConfig) validate() error {
	if strings.TrimSpace(w.Root) == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if strings.TrimSpace(w.ResultPath) == "" {
		return fmt.Errorf("workspace.result_path must not be empty")
	}
	// Empty names take the defaults.
	if w.Stage2Subdir != "" && !isPlainName(w.Stage2Subdir) {
		return fmt.Errorf("workspace.stage2_subdir must be a single directory name, got %q", w.Stage2Subdir)
	}
	if w.PartName != "" && !isPlainName(w.PartName) {
		return fmt.Errorf("workspace.part_name must be a single file name, got %q", w.PartName)
	}

	l := w.Layout()
	if filepath.Clean(l.Stage2Dir) == filepath.Clean(l.Stage1Dir) {
		return fmt.Errorf("workspace.stage2_subdir must name a directory below workspace.root")
	}
	if filepath.Base(l.Stage2Dir) == l.PartName {
		return fmt.Errorf("workspace.part_name must differ from workspace.stage2_subdir (both %q)", l.PartName)
	}

	// Cleanup removes everything under root, including a result promoted there.
	inside, err := workspace.Within(l.Root, l.ResultPath)
	if err != nil {
		return fmt.Errorf("workspace.result_path: %w", err)
	}
	if inside {
		return fmt.Errorf("workspace.result_path %q must not be inside workspace.root %q", l.ResultPath, l.Root)
	}
	return nil
}

// isPlainName reports whether name is one path element other than . and ..
func isPlainName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// Layout resolves the workspace paths.
func (w WorkspaceConfig) Layout() workspace.Layout {
	return workspace.NewLayout(w.Root, w.Stage2Subdir, w.PartName, w.ResultPath)
}

// StageConfig converts the section for groupcount.New.
func (g GroupCountConfig) StageConfig() groupcount.Config {
	return groupcount.Config{
		Workers:          g.Workers,
		ChunkLines:       g.ChunkLines,
		OutputPartitions: g.OutputPartitions,
	}
}

// StageConfig converts the section for ranksort.New. The comparator is always
// the descending one; it is not a user setting.
func (r RankSortConfig) StageConfig() ranksort.Config {
	return ranksort.Config{
		Compare:          ranksort.Descending,
		Emit:             ranksort.EmitMode(r.Emit),
		Sentinel:         r.Sentinel,
		OutputPartitions: r.OutputPartitions,
	}
}
