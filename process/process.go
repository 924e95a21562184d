// Package process finds and removes agent tmux sessions that no workspace
// record owns, such as those left behind when the store was wiped while the
// daemon was down.
package process

import (
	"context"
	"strings"

	"github.com/zhubert/eve/logger"
)

// SessionClient is the subset of the tmux client the sweeper needs.
type SessionClient interface {
	ListSessions(ctx context.Context) ([]string, error)
	KillSession(ctx context.Context, name string) error
}

// OrphanedSession is a tmux session carrying the eve prefix that matches no
// known workspace.
type OrphanedSession struct {
	Name string // e.g. "eve-0f8fad5b"
}

// FindOrphanedSessions lists sessions named "<prefix>-*" that are not in
// known. Sessions without the prefix belong to the user and are never
// reported.
func FindOrphanedSessions(ctx context.Context, client SessionClient, prefix string, known map[string]bool) ([]OrphanedSession, error) {
	names, err := client.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var orphans []OrphanedSession
	for _, name := range names {
		if !strings.HasPrefix(name, prefix+"-") || known[name] {
			continue
		}
		orphans = append(orphans, OrphanedSession{Name: name})
		log.Info("found orphaned session", "session", name)
	}

	log.Debug("found orphaned sessions", "count", len(orphans))
	return orphans, nil
}

// CleanupOrphanedSessions kills the given sessions and returns how many were
// killed. Failures are logged and skipped.
func CleanupOrphanedSessions(ctx context.Context, client SessionClient, orphans []OrphanedSession) int {
	log := logger.WithComponent("process")
	killed := 0
	for _, o := range orphans {
		log.Info("killing orphaned session", "session", o.Name)
		if err := client.KillSession(ctx, o.Name); err != nil {
			log.Error("failed to kill session", "session", o.Name, "error", err)
			continue
		}
		killed++
	}
	return killed
}
