package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zhubert/eve/logger"
)

// MaxBranchNameLength bounds user-provided workspace names.
const MaxBranchNameLength = 100

// validBranchNameRegex matches the characters allowed in a workspace name.
// Git rejects space, ~, ^, :, ?, *, [, \ and control characters.
var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName checks that name can be used as the last component of a
// workspace branch.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > MaxBranchNameLength {
		return fmt.Errorf("name too long (max %d characters)", MaxBranchNameLength)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("name cannot start with '-'")
	}
	if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("name cannot end with '.lock', '/' or '.'")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return fmt.Errorf("name cannot contain '..' or '//'")
	}
	if !validBranchNameRegex.MatchString(name) {
		return fmt.Errorf("name contains invalid characters (use letters, numbers, /, _, ., -)")
	}
	return nil
}

// Worktree describes one checkout registered with a repository.
type Worktree struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
	Head   string `json:"head,omitempty"`
}

// Create adds a worktree for the workspace on branch "<prefix>/<label>",
// based on baseBranch or, when empty, the repository's current branch. If the
// branch already exists the worktree is attached to it instead.
func (s *Service) Create(ctx context.Context, repoRoot, repositoryID, workspaceID, label, baseBranch string) (*Worktree, error) {
	log := logger.WithComponent("worktree")
	startTime := time.Now()

	worktreePath := s.Path(repositoryID, workspaceID)
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktrees directory: %w", err)
	}

	base := baseBranch
	if base == "" {
		current, err := s.CurrentBranch(ctx, repoRoot)
		if err != nil {
			return nil, err
		}
		base = current
	}

	branch := s.BranchName(label)
	log.Info("creating git worktree",
		"repoRoot", repoRoot,
		"branch", branch,
		"worktreePath", worktreePath,
		"base", base)

	output, err := s.executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "add", "-b", branch, worktreePath, base)
	if err != nil {
		if !strings.Contains(string(output), "already exists") {
			log.Error("failed to create worktree", "output", string(output), "error", err)
			return nil, fmt.Errorf("failed to create worktree: %s: %w", strings.TrimSpace(string(output)), err)
		}

		log.Info("branch already exists, attaching worktree to it", "branch", branch)
		output, err = s.executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "add", worktreePath, branch)
		if err != nil {
			log.Error("failed to attach worktree", "output", string(output), "error", err)
			return nil, fmt.Errorf("failed to create worktree: %s: %w", strings.TrimSpace(string(output)), err)
		}
	}

	log.Info("worktree created", "worktreePath", worktreePath, "duration", time.Since(startTime))
	return &Worktree{Path: worktreePath, Branch: branch}, nil
}

// Remove deletes a worktree and its branch. It never fails because the
// worktree is already gone: a failed "git worktree remove" falls back to
// deleting the directory and pruning stale metadata, and branch deletion is
// best-effort.
func (s *Service) Remove(ctx context.Context, repoRoot, worktreePath, branch string) error {
	log := logger.WithComponent("worktree")
	log.Info("removing worktree", "worktreePath", worktreePath, "branch", branch)

	output, err := s.executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "remove", worktreePath, "--force")
	if err != nil {
		log.Warn("git worktree remove failed, removing directory", "output", strings.TrimSpace(string(output)), "error", err)
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("failed to remove worktree directory: %w", err)
		}
		if output, err := s.executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "prune"); err != nil {
			log.Warn("worktree prune failed (best-effort)", "output", strings.TrimSpace(string(output)), "error", err)
		}
	}

	if branch != "" {
		if output, err := s.executor.CombinedOutput(ctx, repoRoot, "git", "branch", "-D", branch); err != nil {
			log.Warn("failed to delete branch (may already be deleted)", "branch", branch, "output", strings.TrimSpace(string(output)))
		} else {
			log.Debug("branch deleted", "branch", branch)
		}
	}
	return nil
}

// List returns every worktree registered with the repository, main checkout
// included, parsed from "git worktree list --porcelain".
func (s *Service) List(ctx context.Context, repoRoot string) ([]Worktree, error) {
	output, err := s.executor.Output(ctx, repoRoot, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list failed: %w", err)
	}
	return parseWorktreeList(string(output)), nil
}

func parseWorktreeList(output string) []Worktree {
	var worktrees []Worktree
	var current *Worktree

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, *current)
			}
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees
}

// CurrentBranch returns the branch checked out in repoPath.
func (s *Service) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to determine current branch: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsGitRepo reports whether path is inside a git repository.
func (s *Service) IsGitRepo(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_, _, err := s.executor.Run(ctx, path, "git", "rev-parse", "--git-dir")
	return err == nil
}
