// Package hooks runs a repository's setup and archive scripts.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 5 * time.Minute

// Context describes the workspace a script runs for. It is exported to the
// script as EVE_* environment variables.
type Context struct {
	RepositoryID string
	RepoPath     string
	WorkspaceID  string
	Workspace    string
	Branch       string
	WorkTree     string
	Port         int
}

// envVars returns the hook context as environment variable pairs.
func (hc Context) envVars() []string {
	env := []string{
		fmt.Sprintf("EVE_REPOSITORY_ID=%s", hc.RepositoryID),
		fmt.Sprintf("EVE_REPO_PATH=%s", hc.RepoPath),
		fmt.Sprintf("EVE_WORKSPACE_ID=%s", hc.WorkspaceID),
		fmt.Sprintf("EVE_WORKSPACE_NAME=%s", hc.Workspace),
		fmt.Sprintf("EVE_BRANCH=%s", hc.Branch),
		fmt.Sprintf("EVE_WORKTREE=%s", hc.WorkTree),
	}
	if hc.Port > 0 {
		env = append(env, "EVE_PORT="+strconv.Itoa(hc.Port), "PORT="+strconv.Itoa(hc.Port))
	}
	return env
}

// Runner executes scripts with sh -c.
type Runner struct {
	Timeout time.Duration
}

// NewRunner returns a Runner using DefaultTimeout.
func NewRunner() *Runner {
	return &Runner{Timeout: DefaultTimeout}
}

// Run executes script in the workspace's worktree (or the repository root if
// the worktree does not exist) with extra env on top of the hook context.
// Failures are logged and returned; callers treat them as non-fatal.
func (r *Runner) Run(ctx context.Context, name, script string, hc Context, extra map[string]string, logger *slog.Logger) error {
	if script == "" {
		return nil
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := hc.WorkTree
	if _, err := os.Stat(dir); dir == "" || err != nil {
		dir = hc.RepoPath
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = dir
	// Children of sh can hold the output pipe open after sh is killed.
	cmd.WaitDelay = time.Second
	cmd.Env = os.Environ()
	for k, v := range extra {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, hc.envVars()...)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Warn("hook failed",
			"hook", name,
			"command", script,
			"error", err,
			"output", string(output),
		)
		return fmt.Errorf("%s script failed: %w", name, err)
	}

	logger.Debug("hook completed",
		"hook", name,
		"duration", time.Since(start),
		"output", string(output),
	)
	return nil
}
