package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	pexec "github.com/zhubert/eve/exec"
)

var ctx = context.Background()

// fakePath reports the named tools as installed under /usr/bin.
func fakePath(installed ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range installed {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func newTestChecker(mock *pexec.MockExecutor, installed ...string) *Checker {
	c := NewChecker(mock)
	c.lookPath = fakePath(installed...)
	return c
}

func TestDefaultPrerequisites(t *testing.T) {
	prereqs := DefaultPrerequisites("")

	required := map[string]bool{"git": false, "tmux": false, "claude": false}
	for _, prereq := range prereqs {
		if _, ok := required[prereq.Name]; ok {
			required[prereq.Name] = true
			if !prereq.Required {
				t.Errorf("Prerequisite %q should be required", prereq.Name)
			}
		}
	}
	for name, found := range required {
		if !found {
			t.Errorf("Expected prerequisite %q not found", name)
		}
	}
}

func TestDefaultPrerequisites_CustomAgent(t *testing.T) {
	prereqs := DefaultPrerequisites("aider")

	last := prereqs[len(prereqs)-1]
	if last.Name != "aider" || !last.Required {
		t.Errorf("agent prerequisite = %+v", last)
	}
	for _, p := range prereqs {
		if p.Name == "claude" {
			t.Error("claude should not be required when another agent is configured")
		}
	}
}

func TestCheck(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddExactMatch("tmux", []string{"--version"}, pexec.MockResponse{Err: errors.New("unknown option")})
	mock.AddExactMatch("tmux", []string{"-V"}, pexec.MockResponse{Stdout: []byte("tmux 3.4\n")})
	c := newTestChecker(mock, "tmux")

	result := c.Check(ctx, Prerequisite{Name: "tmux", Required: true})
	if !result.Found || result.Path != "/usr/bin/tmux" {
		t.Fatalf("Check = %+v", result)
	}
	if result.Version != "tmux 3.4" {
		t.Errorf("Version = %q, want %q", result.Version, "tmux 3.4")
	}

	missing := c.Check(ctx, Prerequisite{Name: "git", Required: true})
	if missing.Found || missing.Path != "" || missing.Error == nil {
		t.Errorf("missing tool result = %+v", missing)
	}
	if len(mock.CallsMatching(pexec.PrefixMatcher("git"))) != 0 {
		t.Error("missing tool should not be probed for a version")
	}
}

func TestCheck_LongVersionTruncated(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("claude", nil, pexec.MockResponse{Stdout: []byte(strings.Repeat("v", 150) + "\nsecond line")})
	c := newTestChecker(mock, "claude")

	result := c.Check(ctx, Prerequisite{Name: "claude"})
	if len(result.Version) != 103 || !strings.HasSuffix(result.Version, "...") {
		t.Errorf("Version = %q", result.Version)
	}
}

func TestCheckAll(t *testing.T) {
	c := newTestChecker(pexec.NewMockExecutor(nil), "git")

	results := c.CheckAll(ctx, DefaultPrerequisites(""))
	if len(results) != 3 {
		t.Fatalf("CheckAll returned %d results, want 3", len(results))
	}
	for _, r := range results {
		if want := r.Prerequisite.Name == "git"; r.Found != want {
			t.Errorf("%s Found = %v, want %v", r.Prerequisite.Name, r.Found, want)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	prereqs := []Prerequisite{
		{Name: "git", Required: true, Description: "Git"},
		{Name: "tmux", Required: true, Description: "tmux", InstallURL: "http://example.com"},
		{Name: "gh", Required: false, Description: "optional"},
	}

	if err := newTestChecker(pexec.NewMockExecutor(nil), "git", "tmux").ValidateRequired(prereqs); err != nil {
		t.Errorf("optional tool missing should not fail: %v", err)
	}

	err := newTestChecker(pexec.NewMockExecutor(nil), "git").ValidateRequired(prereqs)
	if err == nil {
		t.Fatal("expected error when tmux is missing")
	}
	if !strings.Contains(err.Error(), "tmux") || !strings.Contains(err.Error(), "http://example.com") {
		t.Errorf("error should name the tool and install URL: %v", err)
	}
	if strings.Contains(err.Error(), "gh") {
		t.Errorf("optional tool should not be listed: %v", err)
	}
}

func TestFormatCheckResults(t *testing.T) {
	results := []CheckResult{
		{
			Prerequisite: Prerequisite{Name: "found-cmd", Required: true},
			Found:        true,
			Path:         "/usr/bin/found-cmd",
			Version:      "1.0.0",
		},
		{Prerequisite: Prerequisite{Name: "missing-required", Required: true}},
		{Prerequisite: Prerequisite{Name: "missing-optional", Required: false}},
	}

	output := FormatCheckResults(results)

	for _, want := range []string{"CLI Prerequisites", "✓ found-cmd (1.0.0)", "✗ missing-required [REQUIRED]", "○ missing-optional [optional]"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
