// Package cli checks that the external tools the daemon drives are
// installed.
package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	pexec "github.com/zhubert/eve/exec"
)

// versionTimeout bounds each "--version" probe.
const versionTimeout = 5 * time.Second

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string // Command name (e.g., "tmux", "git")
	Required    bool   // Whether the daemon can run without it
	Description string // Human-readable description
	InstallURL  string // URL for installation instructions
}

// DefaultPrerequisites returns the tools the daemon needs, with agent as the
// command started in each workspace session ("claude" when empty).
func DefaultPrerequisites(agent string) []Prerequisite {
	if agent == "" {
		agent = "claude"
	}
	agentPrereq := Prerequisite{
		Name:        agent,
		Required:    true,
		Description: "Coding agent started in each workspace",
	}
	if agent == "claude" {
		agentPrereq.Description = "Claude Code CLI"
		agentPrereq.InstallURL = "https://claude.ai/code"
	}

	return []Prerequisite{
		{
			Name:        "git",
			Required:    true,
			Description: "Git version control (worktree support)",
			InstallURL:  "https://git-scm.com/downloads",
		},
		{
			Name:        "tmux",
			Required:    true,
			Description: "Terminal multiplexer hosting agent sessions",
			InstallURL:  "https://github.com/tmux/tmux/wiki/Installing",
		},
		agentPrereq,
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Checker locates tools and probes their versions.
type Checker struct {
	executor pexec.CommandExecutor
	lookPath func(string) (string, error)
}

// NewChecker returns a Checker that searches PATH and runs version probes
// through executor.
func NewChecker(executor pexec.CommandExecutor) *Checker {
	return &Checker{executor: executor, lookPath: exec.LookPath}
}

// Check verifies that a CLI tool is available in PATH
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := c.lookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = c.version(ctx, prereq.Name)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(ctx, prereq)
	}
	return results
}

// ValidateRequired returns an error naming every missing required tool.
func (c *Checker) ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		if _, err := c.lookPath(prereq.Name); err != nil {
			line := fmt.Sprintf("  - %s (%s)", prereq.Name, prereq.Description)
			if prereq.InstallURL != "" {
				line += "\n    Install: " + prereq.InstallURL
			}
			missing = append(missing, line)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// version returns the first line printed by the tool's version flag.
// tmux only understands -V.
func (c *Checker) version(ctx context.Context, name string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	for _, flag := range []string{"--version", "-V", "version"} {
		output, err := c.executor.Output(ctx, "", name, flag)
		if err != nil {
			continue
		}
		line, _, _ := strings.Cut(string(output), "\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 100 {
			line = line[:100] + "..."
		}
		return line
	}
	return ""
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		if r.Found && r.Version != "" {
			fmt.Fprintf(&sb, " (%s)", r.Version)
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
