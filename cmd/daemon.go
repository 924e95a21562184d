package cmd

import (
	"context"
	"fmt"

	"github.com/zhubert/eve/config"
	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/hooks"
	"github.com/zhubert/eve/paths"
	"github.com/zhubert/eve/repository"
	"github.com/zhubert/eve/server"
	"github.com/zhubert/eve/session"
	"github.com/zhubert/eve/store"
	"github.com/zhubert/eve/tmux"
	"github.com/zhubert/eve/workspace"
	"github.com/zhubert/eve/worktree"
)

// daemon holds the wired services of a running eve.
type daemon struct {
	store      store.Store
	worktrees  *worktree.Service
	sessions   *session.Manager
	workspaces *workspace.Service
	repos      *repository.Service
	tmux       *tmux.Client
	prefix     string
}

// newDaemon wires every service on top of st. git and tmux run through
// executor.
func newDaemon(cfg *config.Config, st store.Store, executor pexec.CommandExecutor) (*daemon, error) {
	worktreesDir, err := paths.WorktreesDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve worktrees directory: %w", err)
	}

	wt := worktree.NewService(executor, worktreesDir, cfg.BranchPrefix)
	tc := tmux.NewClient(executor)
	sessions := session.NewManager(tc, st, session.Options{
		AgentCommand:     cfg.AgentCommand,
		CaptureInterval:  cfg.CaptureInterval,
		CaptureDepth:     cfg.CaptureDepth,
		SubscriberBuffer: cfg.SubscriberBuffer,
	})
	workspaces := workspace.NewService(st, wt, sessions, hooks.NewRunner(), cfg.SessionPrefix)

	return &daemon{
		store:      st,
		worktrees:  wt,
		sessions:   sessions,
		workspaces: workspaces,
		repos:      repository.NewService(st, wt, workspaces),
		tmux:       tc,
		prefix:     cfg.SessionPrefix,
	}, nil
}

// knownWorkspaces returns the ids of every workspace record.
func (d *daemon) knownWorkspaces(ctx context.Context) (map[string]bool, error) {
	all, err := d.store.ListWorkspaces(ctx, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for _, ws := range all {
		known[ws.ID] = true
	}
	return known, nil
}

// knownSessions returns the tmux session name of every workspace record.
func (d *daemon) knownSessions(ctx context.Context) (map[string]bool, error) {
	all, err := d.store.ListWorkspaces(ctx, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for _, ws := range all {
		name := ws.TmuxSession
		if name == "" {
			name = tmux.SessionName(d.prefix, ws.ID)
		}
		known[name] = true
	}
	return known, nil
}

func (d *daemon) newServer() *server.Server {
	return server.New(d.repos, d.workspaces, version)
}

// close stops capture loops, leaving tmux sessions running, and closes the
// store.
func (d *daemon) close() error {
	d.sessions.Shutdown()
	return d.store.Close()
}
