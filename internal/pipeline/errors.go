package pipeline

import (
	"errors"

	"castrank/internal/workspace"
)

// ErrUsage marks a command-line usage error.
var ErrUsage = errors.New("usage error")

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	// ExitDirtyWorkspace: the intermediate tree survived a successful delete.
	ExitDirtyWorkspace = 99
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, workspace.ErrWorkspaceDirty):
		return ExitDirtyWorkspace
	default:
		return ExitFailure
	}
}
