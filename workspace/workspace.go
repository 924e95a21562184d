package workspace

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/eve/hooks"
	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/tmux"
	"github.com/zhubert/eve/worktree"
)

// CreateRequest is the input to Create.
type CreateRequest struct {
	Name       string `json:"name"`
	BaseBranch string `json:"baseBranch,omitempty"`
}

// Create builds a workspace under repo: worktree and branch, port, record,
// setup script and agent session. If the session fails to start the record
// is kept with status error and the failure is returned.
func (s *Service) Create(ctx context.Context, repo *model.Repository, req CreateRequest) (*model.Workspace, error) {
	if err := worktree.ValidateBranchName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	id := uuid.New().String()
	log := logger.WithWorkspace(id).With("component", "workspace", "repositoryID", repo.ID)
	startTime := time.Now()
	log.Info("creating workspace", "name", req.Name, "baseBranch", req.BaseBranch)

	wt, err := s.worktrees.Create(ctx, repo.RootPath, repo.ID, id, req.Name, req.BaseBranch)
	if err != nil {
		return nil, err
	}

	ws, err := s.saveNew(ctx, repo, id, req.Name, wt)
	if err != nil {
		return nil, err
	}

	if repo.Config.SetupScript != "" {
		// Non-fatal: a broken setup script still leaves a usable workspace.
		s.hooks.Run(ctx, "setup", repo.Config.SetupScript, hookContext(repo, ws), repo.Config.Env, log)
	}

	if err := s.sessions.StartSession(ctx, ws, sessionEnv(repo, ws)); err != nil {
		log.Error("failed to start session", "error", err)
		ws.Status = model.StatusError
		ws.SetError(err)
		ws.UpdatedAt = model.NewTimestamp(s.now())
		if saveErr := s.store.SaveWorkspace(ctx, ws); saveErr != nil {
			log.Error("failed to persist error status", "error", saveErr)
		}
		return nil, fmt.Errorf("failed to start session for workspace %s: %w", id, err)
	}

	ws.Status = model.StatusIdle
	ws.Touch(s.now())
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return nil, err
	}

	log.Info("workspace created", "port", ws.AllocatedPort, "duration", time.Since(startTime))
	return ws, nil
}

// saveNew allocates the port and persists the creating record. The
// repository lock is held from listing the existing workspaces through the
// save so concurrent creates never pick the same port.
func (s *Service) saveNew(ctx context.Context, repo *model.Repository, id, name string, wt *worktree.Worktree) (*model.Workspace, error) {
	mu := s.repoLock(repo.ID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.store.ListWorkspaces(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	cfg := repo.Config.WithDefaults()

	now := model.NewTimestamp(s.now())
	ws := &model.Workspace{
		ID:             id,
		RepositoryID:   repo.ID,
		Name:           name,
		BranchName:     wt.Branch,
		WorktreePath:   wt.Path,
		TmuxSession:    tmux.SessionName(s.sessionPrefix, id),
		Status:         model.StatusCreating,
		AllocatedPort:  AllocatePort(usedPorts(existing), cfg.PortBase, cfg.PortIncrement),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Get returns the workspace, or nil if it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*model.Workspace, error) {
	return s.store.GetWorkspace(ctx, id)
}

// List returns the workspaces of repositoryID (all when empty), most recent
// activity first.
func (s *Service) List(ctx context.Context, repositoryID string) ([]*model.Workspace, error) {
	return s.store.ListWorkspaces(ctx, repositoryID)
}

// getUsable loads a workspace that exists and is not archived.
func (s *Service) getUsable(ctx context.Context, id string) (*model.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace %s: %w", id, model.ErrNotFound)
	}
	if ws.IsArchived() {
		return nil, fmt.Errorf("workspace %s is archived: %w", id, model.ErrInvalidState)
	}
	return ws, nil
}

// SendInput forwards text to the workspace's session.
func (s *Service) SendInput(ctx context.Context, id, text string) error {
	mu := s.workspaceLock(id)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.getUsable(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.SendInput(ctx, id, text); err != nil {
		return err
	}
	return s.touch(ctx, id)
}

// Resume starts the workspace's session if none is running. A tmux session
// that survived a daemon restart is reattached.
func (s *Service) Resume(ctx context.Context, id string) error {
	mu := s.workspaceLock(id)
	mu.Lock()
	defer mu.Unlock()

	ws, err := s.getUsable(ctx, id)
	if err != nil {
		return err
	}

	if s.sessions.GetSession(id) == nil {
		repo, err := s.store.GetRepository(ctx, ws.RepositoryID)
		if err != nil {
			return err
		}
		logger.WithWorkspace(id).Info("resuming session", "tmuxSession", ws.TmuxSession)
		if err := s.sessions.StartSession(ctx, ws, sessionEnv(repo, ws)); err != nil {
			return err
		}
	}
	return s.touch(ctx, id)
}

// touch reloads the record and bumps its last-activity time so status
// changes made by the session manager are not overwritten.
func (s *Service) touch(ctx context.Context, id string) error {
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil || ws == nil {
		return err
	}
	ws.LastActivityAt = model.NewTimestamp(s.now())
	return s.store.SaveWorkspace(ctx, ws)
}

// Archive runs the archive script, stops the session, removes the worktree
// and branch and marks the workspace archived. Archiving an archived
// workspace is a no-op.
func (s *Service) Archive(ctx context.Context, id string) error {
	mu := s.workspaceLock(id)
	mu.Lock()
	defer mu.Unlock()

	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if ws == nil {
		return fmt.Errorf("workspace %s: %w", id, model.ErrNotFound)
	}
	if ws.IsArchived() {
		return nil
	}

	log := logger.WithWorkspace(id).With("component", "workspace")
	log.Info("archiving workspace", "worktree", ws.WorktreePath)

	repo, err := s.store.GetRepository(ctx, ws.RepositoryID)
	if err != nil {
		return err
	}

	if repo != nil && repo.Config.ArchiveScript != "" {
		s.hooks.Run(ctx, "archive", repo.Config.ArchiveScript, hookContext(repo, ws), repo.Config.Env, log)
	}

	if err := s.sessions.StopSession(ctx, id); err != nil {
		log.Warn("failed to stop session", "error", err)
	}
	// A session left over from before a restart is not in the registry.
	if s.sessions.HasExternalSession(ctx, ws.TmuxSession) {
		if err := s.sessions.KillExternalSession(ctx, ws.TmuxSession); err != nil {
			log.Warn("failed to kill tmux session", "tmuxSession", ws.TmuxSession, "error", err)
		}
	}

	if repo != nil {
		if err := s.worktrees.Remove(ctx, repo.RootPath, ws.WorktreePath, ws.BranchName); err != nil {
			return err
		}
	} else {
		log.Warn("repository missing, removing worktree directory only", "repositoryID", ws.RepositoryID)
		if err := os.RemoveAll(ws.WorktreePath); err != nil {
			return fmt.Errorf("failed to remove worktree directory: %w", err)
		}
	}

	ws.Status = model.StatusArchived
	ws.UpdatedAt = model.NewTimestamp(s.now())
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return err
	}
	log.Info("workspace archived")
	return nil
}

// Delete archives the workspace if needed and removes its record. Deleting
// an unknown id is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if ws == nil {
		return nil
	}

	if !ws.IsArchived() {
		if err := s.Archive(ctx, id); err != nil {
			return err
		}
	}
	if err := s.store.DeleteWorkspace(ctx, id); err != nil {
		return err
	}
	s.forgetWorkspaceLock(id)
	return nil
}

// GitStatus returns the uncommitted change counts of the workspace worktree.
func (s *Service) GitStatus(ctx context.Context, id string) (*worktree.Status, error) {
	ws, err := s.getUsable(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.worktrees.Status(ctx, ws.WorktreePath)
}

// Diff returns the unstaged diff of the workspace worktree.
func (s *Service) Diff(ctx context.Context, id string) (string, error) {
	ws, err := s.getUsable(ctx, id)
	if err != nil {
		return "", err
	}
	return s.worktrees.Diff(ctx, ws.WorktreePath)
}

// Restore reattaches every non-archived workspace whose tmux session is
// still running, and returns how many were reattached.
func (s *Service) Restore(ctx context.Context) (int, error) {
	log := logger.WithComponent("workspace")

	workspaces, err := s.store.ListWorkspaces(ctx, "")
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, ws := range workspaces {
		if ws.IsArchived() || !s.sessions.HasExternalSession(ctx, ws.TmuxSession) {
			continue
		}
		repo, err := s.store.GetRepository(ctx, ws.RepositoryID)
		if err != nil {
			return restored, err
		}
		if err := s.sessions.StartSession(ctx, ws, sessionEnv(repo, ws)); err != nil {
			log.Warn("failed to reattach session", "workspaceID", ws.ID, "error", err)
			continue
		}
		restored++
	}

	log.Info("sessions restored", "count", restored, "workspaces", len(workspaces))
	return restored, nil
}

// sessionEnv is the environment of a new agent session: the repository's
// env overrides plus the workspace's identity and port.
func sessionEnv(repo *model.Repository, ws *model.Workspace) map[string]string {
	env := make(map[string]string)
	if repo != nil {
		for k, v := range repo.Config.Env {
			env[k] = v
		}
	}
	env["EVE_WORKSPACE_ID"] = ws.ID
	env["EVE_REPOSITORY_ID"] = ws.RepositoryID
	if ws.AllocatedPort > 0 {
		env["PORT"] = strconv.Itoa(ws.AllocatedPort)
	}
	return env
}

func hookContext(repo *model.Repository, ws *model.Workspace) hooks.Context {
	return hooks.Context{
		RepositoryID: repo.ID,
		RepoPath:     repo.RootPath,
		WorkspaceID:  ws.ID,
		Workspace:    ws.Name,
		Branch:       ws.BranchName,
		WorkTree:     ws.WorktreePath,
		Port:         ws.AllocatedPort,
	}
}
