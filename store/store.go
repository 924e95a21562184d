// Package store persists repository and workspace records.
//
// Two backends implement Store:
//
//   - FileStore: one JSON document per record under the data directory
//     (repositories/<id>.json, workspaces/<id>.json)
//   - SQLiteStore: one row per record holding the same JSON document
//
// Both follow "most recent write wins": there is no versioning or locking
// beyond what a single daemon process needs. Get methods return (nil, nil)
// for an unknown id.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/zhubert/eve/config"
	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/paths"
)

// Store is the keyed record store consumed by the repository and workspace
// services.
type Store interface {
	SaveRepository(ctx context.Context, repo *model.Repository) error
	// GetRepository returns nil, nil when no repository has the id.
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	// ListRepositories returns all repositories, most recently updated first.
	ListRepositories(ctx context.Context) ([]*model.Repository, error)
	// DeleteRepository removes the record; deleting an unknown id is a no-op.
	DeleteRepository(ctx context.Context, id string) error

	SaveWorkspace(ctx context.Context, ws *model.Workspace) error
	// GetWorkspace returns nil, nil when no workspace has the id.
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	// ListWorkspaces returns the workspaces of repositoryID (all when empty),
	// most recent activity first.
	ListWorkspaces(ctx context.Context, repositoryID string) ([]*model.Workspace, error)
	// DeleteWorkspace removes the record; deleting an unknown id is a no-op.
	DeleteWorkspace(ctx context.Context, id string) error

	Close() error
}

// Open returns the backend selected by cfg.Store rooted in the default data
// directory.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		path, err := paths.DatabasePath()
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(path)
	case config.StoreFile, "":
		dir, err := paths.DataDir()
		if err != nil {
			return nil, err
		}
		return NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func sortRepositories(repos []*model.Repository) {
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].UpdatedAt > repos[j].UpdatedAt
	})
}

func sortWorkspaces(workspaces []*model.Workspace) {
	sort.SliceStable(workspaces, func(i, j int) bool {
		return workspaces[i].LastActivityAt > workspaces[j].LastActivityAt
	})
}
