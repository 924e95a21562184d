// Package repository registers the git repositories that own workspaces.
package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/store"
	"github.com/zhubert/eve/workspace"
	"github.com/zhubert/eve/worktree"
)

// CreateRequest is the input to Create.
type CreateRequest struct {
	Name     string                  `json:"name"`
	RootPath string                  `json:"rootPath"`
	Config   *model.RepositoryConfig `json:"config,omitempty"`
}

// UpdateRequest carries the fields Update may change. Nil fields are left
// alone; config is merged into the existing one.
type UpdateRequest struct {
	Name   *string                 `json:"name,omitempty"`
	Config *model.RepositoryConfig `json:"config,omitempty"`
}

// WithWorkspaces is a repository together with its workspaces.
type WithWorkspaces struct {
	Repository *model.Repository  `json:"repository"`
	Workspaces []*model.Workspace `json:"workspaces"`
}

// Service implements the repository operations.
type Service struct {
	store      store.Store
	worktrees  *worktree.Service
	workspaces *workspace.Service
	now        func() time.Time
}

// NewService creates a Service. Deletes cascade through workspaces.
func NewService(st store.Store, worktrees *worktree.Service, workspaces *workspace.Service) *Service {
	return &Service{
		store:      st,
		worktrees:  worktrees,
		workspaces: workspaces,
		now:        time.Now,
	}
}

// Create registers the repository at req.RootPath, which must be an
// absolute path to a git repository.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Repository, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if req.RootPath == "" || !filepath.IsAbs(req.RootPath) {
		return nil, fmt.Errorf("%w: rootPath must be an absolute path", model.ErrValidation)
	}
	root := filepath.Clean(req.RootPath)
	if !s.worktrees.IsGitRepo(ctx, root) {
		return nil, fmt.Errorf("%w: %s is not a git repository", model.ErrValidation, root)
	}

	var cfg model.RepositoryConfig
	if req.Config != nil {
		cfg = *req.Config
	}

	now := model.NewTimestamp(s.now())
	repo := &model.Repository{
		ID:        uuid.New().String(),
		Name:      name,
		RootPath:  root,
		Config:    cfg.WithDefaults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveRepository(ctx, repo); err != nil {
		return nil, err
	}

	logger.WithComponent("repository").Info("repository registered", "repositoryID", repo.ID, "name", repo.Name, "rootPath", repo.RootPath)
	return repo, nil
}

// Get returns the repository, or nil if it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*model.Repository, error) {
	return s.store.GetRepository(ctx, id)
}

// GetWithWorkspaces returns the repository and its workspaces, or nil if the
// repository does not exist.
func (s *Service) GetWithWorkspaces(ctx context.Context, id string) (*WithWorkspaces, error) {
	repo, err := s.store.GetRepository(ctx, id)
	if err != nil || repo == nil {
		return nil, err
	}
	workspaces, err := s.workspaces.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if workspaces == nil {
		workspaces = []*model.Workspace{}
	}
	return &WithWorkspaces{Repository: repo, Workspaces: workspaces}, nil
}

// List returns every repository, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*model.Repository, error) {
	return s.store.ListRepositories(ctx)
}

// Update renames the repository and/or merges req.Config into its config.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*model.Repository, error) {
	repo, err := s.store.GetRepository(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %s: %w", id, model.ErrNotFound)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", model.ErrValidation)
		}
		repo.Name = name
	}
	if req.Config != nil {
		repo.Config = repo.Config.Merge(*req.Config)
	}
	repo.UpdatedAt = model.NewTimestamp(s.now())

	if err := s.store.SaveRepository(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// Delete deletes every workspace of the repository, then the repository.
// Deleting an unknown id is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	repo, err := s.store.GetRepository(ctx, id)
	if err != nil || repo == nil {
		return err
	}

	log := logger.WithComponent("repository").With("repositoryID", id)
	workspaces, err := s.workspaces.List(ctx, id)
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if err := s.workspaces.Delete(ctx, ws.ID); err != nil {
			return fmt.Errorf("failed to delete workspace %s: %w", ws.ID, err)
		}
	}

	if err := s.store.DeleteRepository(ctx, id); err != nil {
		return err
	}
	log.Info("repository deleted", "workspaces", len(workspaces))
	return nil
}
