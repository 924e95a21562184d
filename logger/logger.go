package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	charmlog "github.com/charmbracelet/log"

	"github.com/zhubert/eve/paths"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	console  *charmlog.Logger
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path for the daemon.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "eve.log"), nil
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
	if console != nil {
		console.SetLevel(charmLevel())
	}
}

func charmLevel() charmlog.Level {
	if levelVar.Level() <= slog.LevelDebug {
		return charmlog.DebugLevel
	}
	return charmlog.InfoLevel
}

// Init initializes the logger with a custom path. Must be called before logging.
// If not called, the default path will be used on first log call.
// Returns an error if the log file cannot be opened.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	if err := openFile(path); err != nil {
		return err
	}
	root.Info("logger initialized", "path", path)
	return nil
}

// InitConsole mirrors every log record to w using a charmbracelet/log
// handler. Used by `eve serve --foreground`.
func InitConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	console = charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "eve",
		Level:           charmLevel(),
	})

	if root == nil {
		root = slog.New(console)
		return
	}
	root = slog.New(teeHandler{root.Handler(), console})
}

// openFile opens path for appending and installs the file handler.
// Caller must hold mu.
func openFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logPath = path
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	return nil
}

// ensureInit initializes the logger with default settings if not already initialized.
// Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}

	defaultPath, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}

	if err := openFile(defaultPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	root.Info("logger initialized", "path", defaultPath)
}

// Get returns the root logger instance.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithWorkspace returns a logger with the workspace ID attached.
//
// Example:
//
//	log := logger.WithWorkspace(ws.ID)
//	log.Info("session started", "tmuxSession", ws.TmuxSession)
//	// Output: level=INFO msg="session started" workspaceID=abc123 tmuxSession=eve-abc12345
func WithWorkspace(workspaceID string) *slog.Logger {
	return Get().With("workspaceID", workspaceID)
}

// WithComponent returns a logger with the component name attached.
//
// Example:
//
//	log := logger.WithComponent("worktree")
//	log.Info("worktree created", "path", path)
//	// Output: level=INFO msg="worktree created" component=worktree path=/path
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Path returns the path of the active log file, or "" before initialization.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
	console = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	console = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes the daemon log file. Returns the number of files removed.
func ClearLogs() (int, error) {
	defaultPath, err := DefaultLogPath()
	if err != nil {
		return 0, fmt.Errorf("failed to get default log path: %w", err)
	}

	if err := os.Remove(defaultPath); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return 1, nil
}

// teeHandler duplicates records to two handlers.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errA, errB error
	if t.a.Enabled(ctx, r.Level) {
		errA = t.a.Handle(ctx, r.Clone())
	}
	if t.b.Enabled(ctx, r.Level) {
		errB = t.b.Handle(ctx, r.Clone())
	}
	if errA != nil {
		return errA
	}
	return errB
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}
