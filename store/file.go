package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zhubert/eve/model"
)

// FileStore keeps one indented JSON document per record.
type FileStore struct {
	mu              sync.RWMutex
	repositoriesDir string
	workspacesDir   string
}

// NewFileStore creates the repositories/ and workspaces/ directories under
// dataDir and returns a store rooted there.
func NewFileStore(dataDir string) (*FileStore, error) {
	s := &FileStore{
		repositoriesDir: filepath.Join(dataDir, "repositories"),
		workspacesDir:   filepath.Join(dataDir, "workspaces"),
	}
	for _, dir := range []string{s.repositoriesDir, s.workspacesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// validID rejects ids that could escape the store directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func docPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// writeDoc writes v atomically: a temp file in the same directory is renamed
// over the target so readers never observe a partial document.
func writeDoc(dir, id string, v any) error {
	if !validID(id) {
		return fmt.Errorf("invalid record id %q", id)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+id+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, docPath(dir, id)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readDoc decodes the document for id into v. It reports false when the
// document does not exist.
func readDoc(dir, id string, v any) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	data, err := os.ReadFile(docPath(dir, id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", docPath(dir, id), err)
	}
	return true, nil
}

func removeDoc(dir, id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(docPath(dir, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// listIDs returns the ids of every document in dir.
func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *FileStore) SaveRepository(_ context.Context, repo *model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeDoc(s.repositoriesDir, repo.ID, repo)
}

func (s *FileStore) GetRepository(_ context.Context, id string) (*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var repo model.Repository
	found, err := readDoc(s.repositoriesDir, id, &repo)
	if err != nil || !found {
		return nil, err
	}
	return &repo, nil
}

func (s *FileStore) ListRepositories(_ context.Context) ([]*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := listIDs(s.repositoriesDir)
	if err != nil {
		return nil, err
	}
	repos := make([]*model.Repository, 0, len(ids))
	for _, id := range ids {
		var repo model.Repository
		found, err := readDoc(s.repositoriesDir, id, &repo)
		if err != nil {
			return nil, err
		}
		if found {
			repos = append(repos, &repo)
		}
	}
	sortRepositories(repos)
	return repos, nil
}

func (s *FileStore) DeleteRepository(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeDoc(s.repositoriesDir, id)
}

func (s *FileStore) SaveWorkspace(_ context.Context, ws *model.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeDoc(s.workspacesDir, ws.ID, ws)
}

func (s *FileStore) GetWorkspace(_ context.Context, id string) (*model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ws model.Workspace
	found, err := readDoc(s.workspacesDir, id, &ws)
	if err != nil || !found {
		return nil, err
	}
	return &ws, nil
}

func (s *FileStore) ListWorkspaces(_ context.Context, repositoryID string) ([]*model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := listIDs(s.workspacesDir)
	if err != nil {
		return nil, err
	}
	workspaces := make([]*model.Workspace, 0, len(ids))
	for _, id := range ids {
		var ws model.Workspace
		found, err := readDoc(s.workspacesDir, id, &ws)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if repositoryID == "" || ws.RepositoryID == repositoryID {
			workspaces = append(workspaces, &ws)
		}
	}
	sortWorkspaces(workspaces)
	return workspaces, nil
}

func (s *FileStore) DeleteWorkspace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeDoc(s.workspacesDir, id)
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
