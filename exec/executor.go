// Package exec provides an abstraction over command execution for testability.
// Production code runs git and tmux through RealExecutor while tests inject a
// MockExecutor that returns pre-recorded responses and records every call.
//
// Commands are always invoked with an argument vector; nothing is ever passed
// through a shell, so user-supplied values never need quoting.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"slices"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// CombinedOutput executes a command and returns combined stdout+stderr.
	CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func command(ctx context.Context, dir, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := command(ctx, dir, name, args)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Output executes a command and returns stdout.
func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return command(ctx, dir, name, args).Output()
}

// CombinedOutput executes a command and returns combined stdout+stderr.
func (e *RealExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return command(ctx, dir, name, args).CombinedOutput()
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

// mockRule pairs a matcher with the responses it hands out. When more than
// one response is configured they are returned in order and the last one
// repeats.
type mockRule struct {
	match     CommandMatcher
	responses []MockResponse
	served    int
}

func (r *mockRule) next() MockResponse {
	resp := r.responses[min(r.served, len(r.responses)-1)]
	r.served++
	return resp
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// MockExecutor returns pre-recorded responses for commands.
// Rules are matched in registration order; the first match wins.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []*mockRule
	calls    []MockCall
	fallback CommandExecutor
}

// NewMockExecutor creates a new MockExecutor.
// If fallback is provided, unmatched commands will be delegated to it.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{
		fallback: fallback,
	}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.AddSequence(match, response)
}

// AddSequence adds a rule that answers successive matching calls with the
// given responses in order, repeating the last one once exhausted.
func (e *MockExecutor) AddSequence(match CommandMatcher, responses ...MockResponse) {
	if len(responses) == 0 {
		responses = []MockResponse{{}}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &mockRule{match: match, responses: responses})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(ExactMatcher(name, args...), response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(PrefixMatcher(name, prefixArgs...), response)
}

// ExactMatcher matches name invoked with exactly args.
func ExactMatcher(name string, args ...string) CommandMatcher {
	return func(_ string, n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}
}

// PrefixMatcher matches name invoked with args starting with prefixArgs.
func PrefixMatcher(name string, prefixArgs ...string) CommandMatcher {
	return func(_ string, n string, a []string) bool {
		return n == name && len(a) >= len(prefixArgs) && slices.Equal(a[:len(prefixArgs)], prefixArgs)
	}
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// CallsMatching returns the recorded invocations accepted by match.
func (e *MockExecutor) CallsMatching(match CommandMatcher) []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []MockCall
	for _, c := range e.calls {
		if match(c.Dir, c.Name, c.Args) {
			out = append(out, c)
		}
	}
	return out
}

// ClearCalls clears the recorded command invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// respond records the call and returns the matching response, if any.
func (e *MockExecutor) respond(dir, name string, args []string) (MockResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, MockCall{Dir: dir, Name: name, Args: slices.Clone(args)})
	for _, rule := range e.rules {
		if rule.match(dir, name, args) {
			return rule.next(), true
		}
	}
	return MockResponse{}, false
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	if resp, ok := e.respond(dir, name, args); ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.Run(ctx, dir, name, args...)
	}
	return nil, nil, nil
}

// Output executes a mocked command.
func (e *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if resp, ok := e.respond(dir, name, args); ok {
		return resp.Stdout, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.Output(ctx, dir, name, args...)
	}
	return nil, nil
}

// CombinedOutput executes a mocked command.
func (e *MockExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if resp, ok := e.respond(dir, name, args); ok {
		combined := append(slices.Clone(resp.Stdout), resp.Stderr...)
		return combined, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.CombinedOutput(ctx, dir, name, args...)
	}
	return nil, nil
}

// Ensure implementations satisfy the interface.
var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)
