package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/tmux"
)

// Capture defaults.
const (
	DefaultCaptureInterval = 500 * time.Millisecond
	DefaultCaptureDepth    = 100
)

// DefaultAgentCommand runs the coding assistant with no arguments.
var DefaultAgentCommand = []string{"claude"}

// WorkspaceStore is the subset of the record store the Manager needs to
// persist status changes.
type WorkspaceStore interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	SaveWorkspace(ctx context.Context, ws *model.Workspace) error
}

// Options configures a Manager. Zero fields take their defaults.
type Options struct {
	AgentCommand     []string
	CaptureInterval  time.Duration
	CaptureDepth     int
	SubscriberBuffer int
}

func (o Options) withDefaults() Options {
	if len(o.AgentCommand) == 0 {
		o.AgentCommand = DefaultAgentCommand
	}
	if o.CaptureInterval <= 0 {
		o.CaptureInterval = DefaultCaptureInterval
	}
	if o.CaptureDepth <= 0 {
		o.CaptureDepth = DefaultCaptureDepth
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = DefaultSubscriberBuffer
	}
	return o
}

// Session is the in-memory record of one workspace's agent session.
type Session struct {
	broadcaster *Broadcaster

	mu          sync.Mutex
	tmuxSession string
	live        bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// TmuxSession returns the tmux session name, or "" for a placeholder.
func (s *Session) TmuxSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tmuxSession
}

// Live reports whether the capture loop is running.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Subscribers returns the number of active subscriptions.
func (s *Session) Subscribers() int {
	return s.broadcaster.Len()
}

// stop cancels the capture loop and waits for it to exit.
func (s *Session) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.live = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Manager owns the session registry and the capture loops.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// startMu serializes StartSession so two callers never both create the
	// same tmux session.
	startMu sync.Mutex

	tmux  *tmux.Client
	store WorkspaceStore
	opts  Options
}

// NewManager creates a Manager.
func NewManager(tmuxClient *tmux.Client, store WorkspaceStore, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		tmux:     tmuxClient,
		store:    store,
		opts:     opts.withDefaults(),
	}
}

// HasExternalSession reports whether the tmux session exists, whether or not
// it is registered.
func (m *Manager) HasExternalSession(ctx context.Context, tmuxSession string) bool {
	return m.tmux.HasSession(ctx, tmuxSession)
}

// KillExternalSession terminates a tmux session that has no registry entry,
// e.g. one left running across a daemon restart.
func (m *Manager) KillExternalSession(ctx context.Context, tmuxSession string) error {
	return m.tmux.KillSession(ctx, tmuxSession)
}

// StartSession attaches the workspace to its tmux session and begins
// capture. An existing tmux session is reattached; otherwise a new one is
// created in the worktree running the agent command with env. Only a newly
// created session sets the workspace status to idle.
func (m *Manager) StartSession(ctx context.Context, ws *model.Workspace, env map[string]string) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	log := logger.WithWorkspace(ws.ID).With("component", "session", "tmuxSession", ws.TmuxSession)

	if s := m.GetSession(ws.ID); s != nil {
		log.Debug("session already running")
		return nil
	}

	created := false
	if m.tmux.HasSession(ctx, ws.TmuxSession) {
		log.Info("reattaching to existing tmux session")
	} else {
		log.Info("starting tmux session", "worktree", ws.WorktreePath, "command", m.opts.AgentCommand)
		if err := m.tmux.NewSession(ctx, ws.TmuxSession, ws.WorktreePath, env, m.opts.AgentCommand); err != nil {
			return err
		}
		created = true
	}

	m.mu.Lock()
	s, ok := m.sessions[ws.ID]
	if !ok {
		s = &Session{broadcaster: NewBroadcaster(m.opts.SubscriberBuffer, log)}
		m.sessions[ws.ID] = s
	}
	m.mu.Unlock()

	captureCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.tmuxSession = ws.TmuxSession
	s.live = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go m.capture(captureCtx, s, ws.TmuxSession, done, log)

	if created {
		if err := m.UpdateWorkspaceStatus(ctx, ws.ID, model.StatusIdle); err != nil {
			log.Warn("failed to persist idle status", "error", err)
		}
	}
	return nil
}

// capture samples the pane until ctx is cancelled or the tmux session
// disappears.
func (m *Manager) capture(ctx context.Context, s *Session, tmuxSession string, done chan struct{}, log *slog.Logger) {
	defer close(done)

	ticker := time.NewTicker(m.opts.CaptureInterval)
	defer ticker.Stop()

	var last string
	failing := false
	for {
		out, err := m.tmux.CapturePane(ctx, tmuxSession, m.opts.CaptureDepth)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			if !m.tmux.HasSession(ctx, tmuxSession) {
				if ctx.Err() != nil {
					return
				}
				log.Warn("tmux session ended, stopping capture")
				s.mu.Lock()
				if s.cancel != nil {
					s.cancel()
				}
				s.live = false
				s.cancel, s.done = nil, nil
				s.mu.Unlock()
				s.broadcaster.Publish(model.ErrorEvent("agent session exited"))
				return
			}
			log.Warn("capture failed", "error", err)
			if !failing {
				failing = true
				s.broadcaster.Publish(model.ErrorEvent(fmt.Sprintf("output capture failed: %v", err)))
			}
		default:
			failing = false
			if delta, ok := NewContent(last, out); ok {
				s.broadcaster.Publish(model.OutputEvent(delta))
			}
			last = out
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SendInput types text into the workspace's session followed by Enter and
// marks the workspace active.
func (m *Manager) SendInput(ctx context.Context, workspaceID, text string) error {
	s := m.GetSession(workspaceID)
	if s == nil {
		return fmt.Errorf("no session for workspace %s: %w", workspaceID, model.ErrNotFound)
	}

	if err := m.tmux.SendKeys(ctx, s.TmuxSession(), text); err != nil {
		return err
	}
	return m.UpdateWorkspaceStatus(ctx, workspaceID, model.StatusActive)
}

// StopSession kills the tmux session, stops capture, releases every
// subscriber and removes the record. Unknown ids are a no-op.
func (m *Manager) StopSession(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	s, ok := m.sessions[workspaceID]
	delete(m.sessions, workspaceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	log := logger.WithWorkspace(workspaceID).With("component", "session")

	if name := s.TmuxSession(); name != "" {
		if err := m.tmux.KillSession(ctx, name); err != nil {
			log.Warn("failed to kill tmux session", "tmuxSession", name, "error", err)
		}
	}
	s.stop()
	s.broadcaster.Close()
	log.Info("session stopped")
	return nil
}

// Subscribe registers fn for the workspace's events and returns a function
// that removes exactly that subscription. A placeholder record is created
// when the workspace has no session yet.
func (m *Manager) Subscribe(workspaceID string, fn func(model.Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[workspaceID]
	if !ok {
		s = &Session{broadcaster: NewBroadcaster(m.opts.SubscriberBuffer, logger.WithWorkspace(workspaceID))}
		m.sessions[workspaceID] = s
	}
	return s.broadcaster.Subscribe(fn)
}

// GetSession returns the workspace's session if its capture loop is
// running, and nil otherwise. Placeholder records are not returned.
func (m *Manager) GetSession(workspaceID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[workspaceID]
	m.mu.RUnlock()
	if !ok || !s.Live() {
		return nil
	}
	return s
}

// UpdateWorkspaceStatus persists status, touches the workspace timestamps
// and notifies subscribers. A missing workspace record is ignored. An
// archived record never changes status.
func (m *Manager) UpdateWorkspaceStatus(ctx context.Context, workspaceID string, status model.Status) error {
	ws, err := m.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws == nil {
		return nil
	}
	if ws.IsArchived() && status != model.StatusArchived {
		return fmt.Errorf("workspace %s is archived: %w", workspaceID, model.ErrInvalidState)
	}

	ws.Status = status
	ws.Touch(time.Now())
	if err := m.store.SaveWorkspace(ctx, ws); err != nil {
		return err
	}

	m.mu.RLock()
	s, ok := m.sessions[workspaceID]
	m.mu.RUnlock()
	if ok {
		s.broadcaster.Publish(model.StatusEvent(status))
	}
	return nil
}

// Shutdown stops every capture loop and releases subscribers without killing
// the tmux sessions, so a restarted daemon can reattach.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop()
		s.broadcaster.Close()
	}
}
