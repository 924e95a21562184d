package hooks

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "output.txt")

	err := NewRunner().Run(context.Background(), "setup", "echo hello > "+outFile, Context{WorkTree: dir}, nil, testLogger)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("hook output file not created: %v", err)
	}
	if got := string(data); got != "hello\n" {
		t.Errorf("hook output: got %q, want %q", got, "hello\n")
	}
}

func TestRun_Failure(t *testing.T) {
	err := NewRunner().Run(context.Background(), "archive", "exit 3", Context{RepoPath: t.TempDir()}, nil, testLogger)
	if err == nil {
		t.Fatal("expected error from failing script")
	}
	if !strings.Contains(err.Error(), "archive script failed") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_EmptyScript(t *testing.T) {
	if err := NewRunner().Run(context.Background(), "setup", "", Context{}, nil, testLogger); err != nil {
		t.Errorf("empty script should be a no-op, got %v", err)
	}
}

func TestRun_EnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "env.txt")

	hc := Context{
		RepositoryID: "r1",
		RepoPath:     dir,
		WorkspaceID:  "w1",
		Workspace:    "feature-x",
		Branch:       "eve/feature-x",
		WorkTree:     dir,
		Port:         3010,
	}
	script := `echo "$EVE_REPOSITORY_ID $EVE_WORKSPACE_ID $EVE_WORKSPACE_NAME $EVE_BRANCH $PORT $EVE_PORT $CUSTOM" > ` + outFile
	if err := NewRunner().Run(context.Background(), "setup", script, hc, map[string]string{"CUSTOM": "yes"}, testLogger); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("failed to read env output: %v", err)
	}
	want := "r1 w1 feature-x eve/feature-x 3010 3010 yes\n"
	if string(data) != want {
		t.Errorf("env output = %q, want %q", string(data), want)
	}
}

func TestRun_FallsBackToRepoPath(t *testing.T) {
	repo := t.TempDir()
	hc := Context{RepoPath: repo, WorkTree: filepath.Join(repo, "missing")}

	if err := NewRunner().Run(context.Background(), "archive", "pwd > where.txt", hc, nil, testLogger); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "where.txt")); err != nil {
		t.Errorf("script should run in repo root when worktree is missing: %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := &Runner{Timeout: 100 * time.Millisecond}
	start := time.Now()
	err := r.Run(context.Background(), "setup", "sleep 5", Context{RepoPath: t.TempDir()}, nil, testLogger)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}
