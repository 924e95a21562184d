// Package worktree manages the isolated git checkouts backing workspaces.
//
// Each workspace gets its own git worktree on a dedicated branch:
//
//	<worktreesDir>/<repositoryID>/<workspaceID>   on branch <prefix>/<name>
//
// All git invocations go through exec.CommandExecutor with an argument
// vector, so branch names and paths are never interpreted by a shell.
package worktree

import (
	"path/filepath"

	pexec "github.com/zhubert/eve/exec"
)

// DefaultBranchPrefix is used when the service is built without a prefix.
const DefaultBranchPrefix = "eve"

// Service provides worktree operations with explicit dependency injection.
type Service struct {
	executor     pexec.CommandExecutor
	worktreesDir string
	branchPrefix string
}

// NewService creates a Service rooted at worktreesDir that names branches
// "<branchPrefix>/<name>".
func NewService(executor pexec.CommandExecutor, worktreesDir, branchPrefix string) *Service {
	if branchPrefix == "" {
		branchPrefix = DefaultBranchPrefix
	}
	return &Service{
		executor:     executor,
		worktreesDir: worktreesDir,
		branchPrefix: branchPrefix,
	}
}

// Path returns the deterministic worktree location for a workspace.
func (s *Service) Path(repositoryID, workspaceID string) string {
	return filepath.Join(s.worktreesDir, repositoryID, workspaceID)
}

// BranchName returns the branch a workspace named label is checked out on.
func (s *Service) BranchName(label string) string {
	return s.branchPrefix + "/" + label
}

// Dir returns the root directory holding every repository's worktrees.
func (s *Service) Dir() string {
	return s.worktreesDir
}
