// Package tmux drives the terminal multiplexer sessions that host each
// workspace's agent process.
//
// Every call is an argument vector passed to exec.CommandExecutor. Text sent
// with SendKeys uses "send-keys -l" so tmux types it literally, and no shell
// ever sees user input.
package tmux

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/logger"
)

// SessionIDLength is how many characters of the workspace id appear in the
// session name.
const SessionIDLength = 8

// SessionName returns "<prefix>-<first 8 chars of workspaceID>".
func SessionName(prefix, workspaceID string) string {
	id := workspaceID
	if len(id) > SessionIDLength {
		id = id[:SessionIDLength]
	}
	return prefix + "-" + id
}

// sessionTarget matches exactly the session called name. A bare name would
// let tmux fall back to prefix and pattern matching.
func sessionTarget(name string) string {
	return "=" + name
}

// paneTarget addresses the active pane of exactly the session called name.
func paneTarget(name string) string {
	return "=" + name + ":"
}

// Client runs tmux commands.
type Client struct {
	executor pexec.CommandExecutor
}

// NewClient returns a Client that runs tmux through executor.
func NewClient(executor pexec.CommandExecutor) *Client {
	return &Client{executor: executor}
}

// HasSession reports whether a session named name exists.
func (c *Client) HasSession(ctx context.Context, name string) bool {
	_, _, err := c.executor.Run(ctx, "", "tmux", "has-session", "-t", sessionTarget(name))
	return err == nil
}

// NewSession starts a detached session running argv in dir with the given
// extra environment.
func (c *Client) NewSession(ctx context.Context, name, dir string, env map[string]string, argv []string) error {
	args := []string{"new-session", "-d", "-s", name, "-c", dir}
	for _, k := range slices.Sorted(maps.Keys(env)) {
		args = append(args, "-e", k+"="+env[k])
	}
	if len(argv) > 0 {
		args = append(args, "--")
		args = append(args, argv...)
	}

	logger.WithComponent("tmux").Debug("creating session", "session", name, "dir", dir, "argv", argv)
	output, err := c.executor.CombinedOutput(ctx, "", "tmux", args...)
	if err != nil {
		return fmt.Errorf("failed to create tmux session %s: %s: %w", name, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// SendKeys types text literally into the session's active pane and presses
// Enter.
func (c *Client) SendKeys(ctx context.Context, name, text string) error {
	if text != "" {
		output, err := c.executor.CombinedOutput(ctx, "", "tmux", "send-keys", "-t", paneTarget(name), "-l", "--", text)
		if err != nil {
			return fmt.Errorf("failed to send input to %s: %s: %w", name, strings.TrimSpace(string(output)), err)
		}
	}
	output, err := c.executor.CombinedOutput(ctx, "", "tmux", "send-keys", "-t", paneTarget(name), "Enter")
	if err != nil {
		return fmt.Errorf("failed to send Enter to %s: %s: %w", name, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// CapturePane returns the visible pane content plus depth lines of
// scrollback.
func (c *Client) CapturePane(ctx context.Context, name string, depth int) (string, error) {
	stdout, stderr, err := c.executor.Run(ctx, "", "tmux", "capture-pane", "-t", paneTarget(name), "-p", "-S", "-"+strconv.Itoa(depth))
	if err != nil {
		return "", fmt.Errorf("failed to capture pane of %s: %s: %w", name, strings.TrimSpace(string(stderr)), err)
	}
	return string(stdout), nil
}

// KillSession terminates the session. A session that is already gone is not
// an error.
func (c *Client) KillSession(ctx context.Context, name string) error {
	output, err := c.executor.CombinedOutput(ctx, "", "tmux", "kill-session", "-t", sessionTarget(name))
	if err != nil {
		if isGone(string(output)) {
			return nil
		}
		return fmt.Errorf("failed to kill tmux session %s: %s: %w", name, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// ListSessions returns the names of all sessions on the server. No running
// server means no sessions.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	stdout, stderr, err := c.executor.Run(ctx, "", "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if isGone(string(stderr)) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tmux sessions: %s: %w", strings.TrimSpace(string(stderr)), err)
	}
	var names []string
	for line := range strings.SplitSeq(strings.TrimSpace(string(stdout)), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// isGone matches tmux's messages for a missing session or server.
func isGone(output string) bool {
	return strings.Contains(output, "can't find session") ||
		strings.Contains(output, "no server running") ||
		strings.Contains(output, "session not found") ||
		strings.Contains(output, "error connecting to")
}
