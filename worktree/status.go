package worktree

import (
	"context"
	"fmt"
	"strings"
)

// Status counts the uncommitted paths in a worktree.
type Status struct {
	Modified  int `json:"modified"`
	Untracked int `json:"untracked"`
	Staged    int `json:"staged"`
}

// Status parses "git status --porcelain" for worktreePath. A path with both
// staged and unstaged changes counts as staged.
func (s *Service) Status(ctx context.Context, worktreePath string) (*Status, error) {
	output, err := s.executor.Output(ctx, worktreePath, "git", "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return parseStatus(string(output)), nil
}

func parseStatus(output string) *Status {
	status := &Status{}
	for _, line := range strings.Split(output, "\n") {
		// Leading space is significant: " M file" is unstaged only.
		if len(line) < 2 {
			continue
		}
		code := line[:2]
		switch {
		case strings.Contains(code, "?"):
			status.Untracked++
		case code[0] != ' ':
			status.Staged++
		case code[1] != ' ':
			status.Modified++
		}
	}
	return status
}

// Diff returns the unstaged diff of the worktree.
func (s *Service) Diff(ctx context.Context, worktreePath string) (string, error) {
	// --no-ext-diff keeps output on stdout even if an external diff tool is configured
	output, err := s.executor.Output(ctx, worktreePath, "git", "diff", "--no-ext-diff")
	if err != nil {
		return "", fmt.Errorf("git diff failed: %w", err)
	}
	return string(output), nil
}
