// Package workspace orchestrates the lifecycle of workspaces: an isolated
// git worktree, a branch, an allocated port and a managed agent session.
//
// Status transitions:
//
//	creating → idle | error
//	idle ↔ active
//	any non-archived → archived → (record deleted)
//
// The persisted record says what a workspace should be; the session
// registry says what is actually running. Resume and Restore reconcile the
// two.
package workspace

import (
	"sync"
	"time"

	"github.com/zhubert/eve/hooks"
	"github.com/zhubert/eve/session"
	"github.com/zhubert/eve/store"
	"github.com/zhubert/eve/worktree"
)

// DefaultSessionPrefix names tmux sessions "eve-<id8>".
const DefaultSessionPrefix = "eve"

// Service implements the workspace operations.
type Service struct {
	store     store.Store
	worktrees *worktree.Service
	sessions  *session.Manager
	hooks     *hooks.Runner

	sessionPrefix string

	// repoLocks serializes port allocation per repository. wsLocks
	// serializes input, resume and archive per workspace.
	locksMu   sync.Mutex
	repoLocks map[string]*sync.Mutex
	wsLocks   map[string]*sync.Mutex

	now func() time.Time
}

// NewService wires a Service to its collaborators.
func NewService(st store.Store, worktrees *worktree.Service, sessions *session.Manager, hookRunner *hooks.Runner, sessionPrefix string) *Service {
	if sessionPrefix == "" {
		sessionPrefix = DefaultSessionPrefix
	}
	if hookRunner == nil {
		hookRunner = hooks.NewRunner()
	}
	return &Service{
		store:         st,
		worktrees:     worktrees,
		sessions:      sessions,
		hooks:         hookRunner,
		sessionPrefix: sessionPrefix,
		repoLocks:     make(map[string]*sync.Mutex),
		wsLocks:       make(map[string]*sync.Mutex),
		now:           time.Now,
	}
}

// Sessions returns the session manager, for stream subscriptions.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Worktrees returns the worktree service.
func (s *Service) Worktrees() *worktree.Service {
	return s.worktrees
}

func (s *Service) repoLock(repositoryID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.repoLocks[repositoryID]
	if !ok {
		mu = &sync.Mutex{}
		s.repoLocks[repositoryID] = mu
	}
	return mu
}

func (s *Service) workspaceLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.wsLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.wsLocks[id] = mu
	}
	return mu
}

func (s *Service) forgetWorkspaceLock(id string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.wsLocks, id)
}
