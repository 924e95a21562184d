// Package model defines the records Eve persists (repositories and
// workspaces), the workspace status state machine and the event messages
// streamed to clients.
package model

import (
	"errors"
	"time"
)

// Error taxonomy. Callers branch on these with errors.Is; the transport maps
// them to client-visible status codes.
var (
	// ErrValidation marks malformed requests and invalid repository roots.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown repository or workspace id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation the workspace's status forbids.
	ErrInvalidState = errors.New("invalid state")
)

// Default port allocation parameters for a repository.
const (
	DefaultPortBase      = 3000
	DefaultPortIncrement = 10
)

// RepositoryConfig holds per-repository workspace settings.
type RepositoryConfig struct {
	SetupScript   string            `json:"setupScript,omitempty"`
	ArchiveScript string            `json:"archiveScript,omitempty"`
	PortBase      int               `json:"portBase"`
	PortIncrement int               `json:"portIncrement"`
	Env           map[string]string `json:"env,omitempty"`
}

// WithDefaults returns a copy with zero port settings replaced by defaults.
func (c RepositoryConfig) WithDefaults() RepositoryConfig {
	if c.PortBase <= 0 {
		c.PortBase = DefaultPortBase
	}
	if c.PortIncrement <= 0 {
		c.PortIncrement = DefaultPortIncrement
	}
	return c
}

// Merge overlays the non-zero fields of update onto c. Env entries are
// merged key by key.
func (c RepositoryConfig) Merge(update RepositoryConfig) RepositoryConfig {
	if update.SetupScript != "" {
		c.SetupScript = update.SetupScript
	}
	if update.ArchiveScript != "" {
		c.ArchiveScript = update.ArchiveScript
	}
	if update.PortBase > 0 {
		c.PortBase = update.PortBase
	}
	if update.PortIncrement > 0 {
		c.PortIncrement = update.PortIncrement
	}
	if len(update.Env) > 0 {
		env := make(map[string]string, len(c.Env)+len(update.Env))
		for k, v := range c.Env {
			env[k] = v
		}
		for k, v := range update.Env {
			env[k] = v
		}
		c.Env = env
	}
	return c
}

// Repository is a registered git repository that owns workspaces.
type Repository struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	RootPath  string           `json:"rootPath"`
	Config    RepositoryConfig `json:"config"`
	CreatedAt Timestamp        `json:"createdAt"`
	UpdatedAt Timestamp        `json:"updatedAt"`
}

// Status is the lifecycle state of a workspace.
type Status string

const (
	// StatusCreating: worktree being created, agent launching.
	StatusCreating Status = "creating"
	// StatusActive: the agent is processing input.
	StatusActive Status = "active"
	// StatusWaiting is reserved for a signal from the agent itself; nothing
	// in the daemon sets it.
	StatusWaiting Status = "waiting"
	// StatusIdle: the agent is waiting for the next prompt.
	StatusIdle Status = "idle"
	// StatusError: creation or startup failed, see Metadata["error"].
	StatusError Status = "error"
	// StatusArchived: worktree and session torn down, record kept.
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreating, StatusActive, StatusWaiting, StatusIdle, StatusError, StatusArchived:
		return true
	}
	return false
}

// Workspace is an isolated unit of work: a worktree, a branch, a port and a
// managed agent session.
type Workspace struct {
	ID             string         `json:"id"`
	RepositoryID   string         `json:"repositoryId"`
	Name           string         `json:"name"`
	BranchName     string         `json:"branchName"`
	WorktreePath   string         `json:"worktreePath"`
	TmuxSession    string         `json:"tmuxSession"`
	Status         Status         `json:"status"`
	AllocatedPort  int            `json:"allocatedPort,omitempty"`
	CreatedAt      Timestamp      `json:"createdAt"`
	UpdatedAt      Timestamp      `json:"updatedAt"`
	LastActivityAt Timestamp      `json:"lastActivityAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// IsArchived reports whether the workspace has been archived.
func (w *Workspace) IsArchived() bool {
	return w.Status == StatusArchived
}

// Touch sets the update and last-activity timestamps to now.
func (w *Workspace) Touch(now time.Time) {
	w.UpdatedAt = NewTimestamp(now)
	w.LastActivityAt = NewTimestamp(now)
}

// SetError records a failure message in the metadata bag.
func (w *Workspace) SetError(err error) {
	if w.Metadata == nil {
		w.Metadata = make(map[string]any)
	}
	w.Metadata["error"] = err.Error()
}
