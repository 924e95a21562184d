package process

import (
	"context"
	"errors"
	"testing"

	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/tmux"
)

var ctx = context.Background()

func TestFindOrphanedSessions(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("tmux", []string{"list-sessions"}, pexec.MockResponse{
		Stdout: []byte("eve-aaaaaaaa\neve-bbbbbbbb\nwork\nevening\n"),
	})
	client := tmux.NewClient(mock)

	known := map[string]bool{"eve-aaaaaaaa": true}
	orphans, err := FindOrphanedSessions(ctx, client, "eve", known)
	if err != nil {
		t.Fatalf("FindOrphanedSessions: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Name != "eve-bbbbbbbb" {
		t.Errorf("orphans = %+v, want only eve-bbbbbbbb", orphans)
	}
}

func TestFindOrphanedSessions_ListError(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("tmux", []string{"list-sessions"}, pexec.MockResponse{
		Stderr: []byte("boom"),
		Err:    errors.New("exit status 1"),
	})

	if _, err := FindOrphanedSessions(ctx, tmux.NewClient(mock), "eve", nil); err == nil {
		t.Error("expected error")
	}
}

func TestCleanupOrphanedSessions(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("tmux", []string{"kill-session", "-t", "=eve-bad"}, pexec.MockResponse{
		Stdout: []byte("permission denied"),
		Err:    errors.New("exit status 1"),
	})
	mock.AddPrefixMatch("tmux", []string{"kill-session"}, pexec.MockResponse{})
	client := tmux.NewClient(mock)

	orphans := []OrphanedSession{{Name: "eve-one"}, {Name: "eve-bad"}, {Name: "eve-two"}}
	if killed := CleanupOrphanedSessions(ctx, client, orphans); killed != 2 {
		t.Errorf("killed = %d, want 2", killed)
	}
	if n := len(mock.CallsMatching(pexec.PrefixMatcher("tmux", "kill-session"))); n != 3 {
		t.Errorf("kill-session calls = %d, want 3", n)
	}
}
