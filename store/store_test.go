package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/eve/config"
	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/paths"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "eve.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		fs.Close()
		sq.Close()
	})
	return map[string]Store{"file": fs, "sqlite": sq}
}

func TestStore_RepositoryCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.GetRepository(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, got)

			repo := &model.Repository{
				ID:        "r1",
				Name:      "api",
				RootPath:  "/src/api",
				Config:    model.RepositoryConfig{PortBase: 4000, PortIncrement: 5, Env: map[string]string{"A": "1"}},
				CreatedAt: 100,
				UpdatedAt: 100,
			}
			require.NoError(t, s.SaveRepository(ctx, repo))

			got, err = s.GetRepository(ctx, "r1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, repo, got)

			repo.Name = "api-renamed"
			repo.UpdatedAt = 200
			require.NoError(t, s.SaveRepository(ctx, repo))
			got, err = s.GetRepository(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "api-renamed", got.Name)

			require.NoError(t, s.DeleteRepository(ctx, "r1"))
			got, err = s.GetRepository(ctx, "r1")
			require.NoError(t, err)
			assert.Nil(t, got)

			// Deleting again is a no-op.
			assert.NoError(t, s.DeleteRepository(ctx, "r1"))
		})
	}
}

func TestStore_ListRepositoriesOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, r := range []*model.Repository{
				{ID: "old", Name: "old", UpdatedAt: 10},
				{ID: "new", Name: "new", UpdatedAt: 30},
				{ID: "mid", Name: "mid", UpdatedAt: 20},
			} {
				require.NoError(t, s.SaveRepository(ctx, r))
			}

			repos, err := s.ListRepositories(ctx)
			require.NoError(t, err)
			require.Len(t, repos, 3)
			assert.Equal(t, "new", repos[0].ID)
			assert.Equal(t, "mid", repos[1].ID)
			assert.Equal(t, "old", repos[2].ID)
		})
	}
}

func TestStore_WorkspaceCRUDAndFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			all, err := s.ListWorkspaces(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, all)

			workspaces := []*model.Workspace{
				{ID: "w1", RepositoryID: "r1", Name: "a", Status: model.StatusIdle, AllocatedPort: 3000, LastActivityAt: 10},
				{ID: "w2", RepositoryID: "r1", Name: "b", Status: model.StatusActive, AllocatedPort: 3010, LastActivityAt: 50},
				{ID: "w3", RepositoryID: "r2", Name: "c", Status: model.StatusArchived, AllocatedPort: 3000, LastActivityAt: 30},
			}
			for _, ws := range workspaces {
				require.NoError(t, s.SaveWorkspace(ctx, ws))
			}

			got, err := s.GetWorkspace(ctx, "w2")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, model.StatusActive, got.Status)
			assert.Equal(t, 3010, got.AllocatedPort)

			r1, err := s.ListWorkspaces(ctx, "r1")
			require.NoError(t, err)
			require.Len(t, r1, 2)
			assert.Equal(t, "w2", r1[0].ID, "most recent activity first")
			assert.Equal(t, "w1", r1[1].ID)

			all, err = s.ListWorkspaces(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"w2", "w3", "w1"}, []string{all[0].ID, all[1].ID, all[2].ID})

			none, err := s.ListWorkspaces(ctx, "unknown")
			require.NoError(t, err)
			assert.Empty(t, none)

			require.NoError(t, s.DeleteWorkspace(ctx, "w1"))
			got, err = s.GetWorkspace(ctx, "w1")
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.NoError(t, s.DeleteWorkspace(ctx, "w1"))
		})
	}
}

func TestStore_WorkspaceMetadataPreserved(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ws := &model.Workspace{ID: "w1", RepositoryID: "r1", Status: model.StatusError}
			ws.SetError(assert.AnError)
			require.NoError(t, s.SaveWorkspace(ctx, ws))

			got, err := s.GetWorkspace(ctx, "w1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, assert.AnError.Error(), got.Metadata["error"])
		})
	}
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../escape", `a\b`} {
		err := s.SaveWorkspace(ctx, &model.Workspace{ID: id})
		assert.Error(t, err, "id %q", id)

		got, err := s.GetWorkspace(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestFileStore_IgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveRepository(ctx, &model.Repository{ID: "r1"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repositories", "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repositories", ".r2.123.tmp"), []byte("{"), 0644))

	repos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "r1", repos[0].ID)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspaces", "bad.json"), []byte("{not json"), 0644))
	_, err = s.GetWorkspace(context.Background(), "bad")
	assert.ErrorContains(t, err, "failed to parse")
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "eve.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.SaveRepository(context.Background(), &model.Repository{ID: "r1", Name: "kept"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRepository(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept", got.Name)
}

func TestOpen(t *testing.T) {
	t.Setenv("EVE_HOME", t.TempDir())
	paths.Reset()
	t.Cleanup(paths.Reset)

	tests := []struct {
		store   string
		want    any
		wantErr bool
	}{
		{config.StoreFile, &FileStore{}, false},
		{config.StoreSQLite, &SQLiteStore{}, false},
		{"postgres", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store = tt.store
			s, err := Open(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
