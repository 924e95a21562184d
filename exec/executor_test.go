package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRealExecutor_Run(t *testing.T) {
	executor := NewRealExecutor()

	stdout, stderr, err := executor.Run(context.Background(), "", "echo", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stdout) != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", string(stdout))
	}
	if len(stderr) != 0 {
		t.Errorf("expected empty stderr, got %q", string(stderr))
	}
}

func TestRealExecutor_Dir(t *testing.T) {
	dir := t.TempDir()

	output, err := NewRealExecutor().Output(context.Background(), dir, "pwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(output); got == "" {
		t.Error("expected pwd output")
	}
}

func TestRealExecutor_ArgumentsAreNotShellExpanded(t *testing.T) {
	output, err := NewRealExecutor().CombinedOutput(context.Background(), "", "echo", `$HOME "quoted" $(id)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := string(output), "$HOME \"quoted\" $(id)\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRealExecutor_Failure(t *testing.T) {
	_, err := NewRealExecutor().CombinedOutput(context.Background(), "", "false")
	if err == nil {
		t.Fatal("expected error from false")
	}
}

func TestMockExecutor_ExactMatch(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"status"}, MockResponse{Stdout: []byte("On branch main")})

	stdout, _, err := mock.Run(context.Background(), "/repo", "git", "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stdout) != "On branch main" {
		t.Errorf("unexpected stdout %q", stdout)
	}

	// Extra args should not match the exact rule and fall through to empty success.
	stdout, _, err = mock.Run(context.Background(), "/repo", "git", "status", "--porcelain")
	if err != nil || len(stdout) != 0 {
		t.Errorf("expected empty success for unmatched command, got %q, %v", stdout, err)
	}

	calls := mock.GetCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Dir != "/repo" || calls[0].Name != "git" {
		t.Errorf("unexpected call %+v", calls[0])
	}
}

func TestMockExecutor_PrefixMatch(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("tmux", []string{"capture-pane"}, MockResponse{Stdout: []byte("pane")})

	out, err := mock.Output(context.Background(), "", "tmux", "capture-pane", "-t", "eve-1", "-p")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "pane" {
		t.Errorf("got %q", out)
	}

	out, _ = mock.Output(context.Background(), "", "tmux", "kill-session")
	if len(out) != 0 {
		t.Errorf("kill-session should not match capture-pane prefix, got %q", out)
	}
}

func TestMockExecutor_Error(t *testing.T) {
	mock := NewMockExecutor(nil)
	wantErr := errors.New("exit status 128")
	mock.AddExactMatch("git", []string{"rev-parse", "--git-dir"}, MockResponse{
		Stderr: []byte("fatal: not a git repository"),
		Err:    wantErr,
	})

	out, err := mock.CombinedOutput(context.Background(), "/tmp", "git", "rev-parse", "--git-dir")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if string(out) != "fatal: not a git repository" {
		t.Errorf("expected stderr in combined output, got %q", out)
	}
}

func TestMockExecutor_Sequence(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddSequence(PrefixMatcher("tmux", "capture-pane"),
		MockResponse{Stdout: []byte("a")},
		MockResponse{Stdout: []byte("a\nb")},
		MockResponse{Stdout: []byte("a\nb\nc")},
	)

	want := []string{"a", "a\nb", "a\nb\nc", "a\nb\nc"}
	for i, w := range want {
		out, err := mock.Output(context.Background(), "", "tmux", "capture-pane")
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != w {
			t.Errorf("call %d: got %q, want %q", i, out, w)
		}
	}
}

func TestMockExecutor_RuleOrder(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree"}, MockResponse{Stdout: []byte("first")})
	mock.AddPrefixMatch("git", []string{"worktree", "add"}, MockResponse{Stdout: []byte("second")})

	out, _ := mock.Output(context.Background(), "", "git", "worktree", "add")
	if string(out) != "first" {
		t.Errorf("expected first registered rule to win, got %q", out)
	}
}

func TestMockExecutor_Fallback(t *testing.T) {
	mock := NewMockExecutor(NewRealExecutor())
	mock.AddExactMatch("echo", []string{"mocked"}, MockResponse{Stdout: []byte("intercepted")})

	out, err := mock.Output(context.Background(), "", "echo", "mocked")
	if err != nil || string(out) != "intercepted" {
		t.Errorf("got %q, %v", out, err)
	}

	out, err = mock.Output(context.Background(), "", "echo", "real")
	if err != nil || string(out) != "real\n" {
		t.Errorf("expected fallback to real executor, got %q, %v", out, err)
	}
}

func TestMockExecutor_CallsMatchingAndClear(t *testing.T) {
	mock := NewMockExecutor(nil)
	ctx := context.Background()
	mock.Run(ctx, "", "tmux", "has-session", "-t", "eve-1")
	mock.Run(ctx, "", "git", "status")
	mock.Run(ctx, "", "tmux", "kill-session", "-t", "eve-1")

	if got := len(mock.CallsMatching(PrefixMatcher("tmux"))); got != 2 {
		t.Errorf("expected 2 tmux calls, got %d", got)
	}
	if got := len(mock.CallsMatching(ExactMatcher("git", "status"))); got != 1 {
		t.Errorf("expected 1 git status call, got %d", got)
	}

	mock.ClearCalls()
	if len(mock.GetCalls()) != 0 {
		t.Error("expected calls to be cleared")
	}
}

func TestMockExecutor_RecordedArgsAreCopied(t *testing.T) {
	mock := NewMockExecutor(nil)
	args := []string{"send-keys", "-l", "hello"}
	mock.Run(context.Background(), "", "tmux", args...)
	args[2] = "mutated"

	if got := mock.GetCalls()[0].Args[2]; got != "hello" {
		t.Errorf("recorded args should be a copy, got %q", got)
	}
}

func TestMockExecutor_ConcurrentAccess(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("tmux", nil, MockResponse{Stdout: []byte("ok")})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Output(context.Background(), "", "tmux", "capture-pane")
		}()
	}
	wg.Wait()

	if got := len(mock.GetCalls()); got != 50 {
		t.Errorf("expected 50 calls, got %d", got)
	}
}
