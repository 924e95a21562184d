package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhubert/eve/model"
)

// SQLiteStore keeps records as JSON documents in a SQLite database. The
// columns next to the document exist only for filtering and ordering.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps WAL semantics simple.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		last_activity_at INTEGER NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workspaces_repository ON workspaces(repository_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) SaveRepository(ctx context.Context, repo *model.Repository) error {
	doc, err := json.Marshal(repo)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, updated_at, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, doc = excluded.doc`,
		repo.ID, int64(repo.UpdatedAt), string(doc))
	if err != nil {
		return fmt.Errorf("failed to save repository %s: %w", repo.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM repositories WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repository %s: %w", id, err)
	}
	var repo model.Repository
	if err := json.Unmarshal([]byte(doc), &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository %s: %w", id, err)
	}
	return &repo, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM repositories`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*model.Repository
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var repo model.Repository
		if err := json.Unmarshal([]byte(doc), &repo); err != nil {
			return nil, err
		}
		repos = append(repos, &repo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRepositories(repos)
	return repos, nil
}

func (s *SQLiteStore) DeleteRepository(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete repository %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SaveWorkspace(ctx context.Context, ws *model.Workspace) error {
	doc, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, repository_id, last_activity_at, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repository_id = excluded.repository_id,
			last_activity_at = excluded.last_activity_at,
			doc = excluded.doc`,
		ws.ID, ws.RepositoryID, int64(ws.LastActivityAt), string(doc))
	if err != nil {
		return fmt.Errorf("failed to save workspace %s: %w", ws.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM workspaces WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %s: %w", id, err)
	}
	var ws model.Workspace
	if err := json.Unmarshal([]byte(doc), &ws); err != nil {
		return nil, fmt.Errorf("failed to parse workspace %s: %w", id, err)
	}
	return &ws, nil
}

func (s *SQLiteStore) ListWorkspaces(ctx context.Context, repositoryID string) ([]*model.Workspace, error) {
	query := `SELECT doc FROM workspaces`
	var args []any
	if repositoryID != "" {
		query += ` WHERE repository_id = ?`
		args = append(args, repositoryID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*model.Workspace
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ws model.Workspace
		if err := json.Unmarshal([]byte(doc), &ws); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, &ws)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortWorkspaces(workspaces)
	return workspaces, nil
}

func (s *SQLiteStore) DeleteWorkspace(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
