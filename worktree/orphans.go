package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zhubert/eve/logger"
)

// Orphan is a worktree directory with no live workspace record.
type Orphan struct {
	Path         string // Full path to the worktree
	RepoPath     string // Owning repository, empty if the .git file is unreadable
	RepositoryID string
	WorkspaceID  string
}

// FindOrphaned scans <worktreesDir>/<repositoryID>/<workspaceID> for
// directories whose workspace id is not in known.
func (s *Service) FindOrphaned(known map[string]bool) ([]Orphan, error) {
	log := logger.WithComponent("worktree")

	repoDirs, err := os.ReadDir(s.worktreesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read worktrees directory: %w", err)
	}

	var orphans []Orphan
	for _, repoDir := range repoDirs {
		if !repoDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.worktreesDir, repoDir.Name()))
		if err != nil {
			log.Warn("failed to read repository worktrees", "repositoryID", repoDir.Name(), "error", err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || known[entry.Name()] {
				continue
			}
			path := filepath.Join(s.worktreesDir, repoDir.Name(), entry.Name())
			repoPath, err := worktreeRepoPath(path)
			if err != nil {
				log.Debug("could not resolve worktree repository", "path", path, "error", err)
			}
			orphans = append(orphans, Orphan{
				Path:         path,
				RepoPath:     repoPath,
				RepositoryID: repoDir.Name(),
				WorkspaceID:  entry.Name(),
			})
		}
	}

	log.Info("orphaned worktree search complete", "count", len(orphans))
	return orphans, nil
}

// worktreeRepoPath reads the worktree's .git file, which points at
// <repo>/.git/worktrees/<name>, and returns <repo>.
func worktreeRepoPath(worktreePath string) (string, error) {
	content, err := os.ReadFile(filepath.Join(worktreePath, ".git"))
	if err != nil {
		return "", fmt.Errorf("failed to read .git file: %w", err)
	}

	line := strings.TrimSpace(string(content))
	gitdir, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok {
		return "", fmt.Errorf("invalid .git file format: %s", line)
	}
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(worktreePath, gitdir)
	}

	parts := strings.Split(filepath.Clean(gitdir), string(filepath.Separator))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == ".git" {
			return filepath.Join(string(filepath.Separator), filepath.Join(parts[:i]...)), nil
		}
	}
	return "", fmt.Errorf("could not find .git directory in path: %s", gitdir)
}

// PruneOrphaned removes the given orphans and their branches. Repositories
// are processed in parallel; orphans of one repository run sequentially so
// git never sees concurrent worktree operations on the same repo.
func (s *Service) PruneOrphaned(ctx context.Context, orphans []Orphan) int {
	log := logger.WithComponent("worktree")

	byRepo := make(map[string][]Orphan)
	for _, o := range orphans {
		byRepo[o.RepoPath] = append(byRepo[o.RepoPath], o)
	}

	var mu sync.Mutex
	pruned := 0

	var wg sync.WaitGroup
	for repoPath, repoOrphans := range byRepo {
		wg.Add(1)
		go func(repoPath string, repoOrphans []Orphan) {
			defer wg.Done()
			for _, o := range repoOrphans {
				log.Info("pruning orphaned worktree", "path", o.Path)

				if repoPath == "" {
					if err := os.RemoveAll(o.Path); err != nil {
						log.Error("failed to remove orphan", "path", o.Path, "error", err)
						continue
					}
				} else {
					branch := s.detectBranch(ctx, o.Path)
					if err := s.Remove(ctx, repoPath, o.Path, branch); err != nil {
						log.Error("failed to remove orphan", "path", o.Path, "error", err)
						continue
					}
				}

				mu.Lock()
				pruned++
				mu.Unlock()
			}
		}(repoPath, repoOrphans)
	}
	wg.Wait()

	// Drop repository directories left empty; os.Remove refuses non-empty ones.
	for _, o := range orphans {
		os.Remove(filepath.Dir(o.Path))
	}
	return pruned
}

// detectBranch returns the branch checked out in a worktree, or "" for a
// detached HEAD or unreadable worktree.
func (s *Service) detectBranch(ctx context.Context, worktreePath string) string {
	branch, err := s.CurrentBranch(ctx, worktreePath)
	if err != nil || branch == "HEAD" {
		return ""
	}
	return branch
}
