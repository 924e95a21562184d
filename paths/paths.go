// Package paths provides centralized path resolution for Eve's data directories.
//
// Eve supports the XDG Base Directory Specification for organizing files:
//
//   - Config (XDG_CONFIG_HOME): config.yaml (daemon settings)
//   - Data (XDG_DATA_HOME): repositories/, workspaces/, worktrees/, eve.db
//   - State (XDG_STATE_HOME): logs/ (transient log files)
//
// Resolution order:
//  1. EVE_HOME set → everything under that directory
//  2. If ~/.eve/ exists → use the flat layout (all paths under ~/.eve/)
//  3. If XDG env vars are set → use XDG layout with proper separation
//  4. Fresh install, no XDG vars → default to ~/.eve/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	configDir string
	dataDir   string
	stateDir  string
	flat      bool
}

func flatLayout(dir string) *resolvedPaths {
	return &resolvedPaths{
		configDir: dir,
		dataDir:   dir,
		stateDir:  dir,
		flat:      true,
	}
}

// resolve computes the path layout once and caches it.
func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	if home := os.Getenv("EVE_HOME"); home != "" {
		resolved = flatLayout(home)
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	eveDir := filepath.Join(home, ".eve")

	if info, err := os.Stat(eveDir); err == nil && info.IsDir() {
		resolved = flatLayout(eveDir)
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgData := os.Getenv("XDG_DATA_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")

	if xdgConfig != "" || xdgData != "" || xdgState != "" {
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		if xdgData == "" {
			xdgData = filepath.Join(home, ".local", "share")
		}
		if xdgState == "" {
			xdgState = filepath.Join(home, ".local", "state")
		}
		resolved = &resolvedPaths{
			configDir: filepath.Join(xdgConfig, "eve"),
			dataDir:   filepath.Join(xdgData, "eve"),
			stateDir:  filepath.Join(xdgState, "eve"),
		}
		return resolved, nil
	}

	resolved = flatLayout(eveDir)
	return resolved, nil
}

// ConfigDir returns the directory for configuration files (config.yaml).
func ConfigDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.configDir, nil
}

// DataDir returns the directory for persistent data files.
func DataDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.dataDir, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func dataSubdir(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// RepositoriesDir returns the directory holding one JSON document per repository.
func RepositoriesDir() (string, error) {
	return dataSubdir("repositories")
}

// WorkspacesDir returns the directory holding one JSON document per workspace.
func WorkspacesDir() (string, error) {
	return dataSubdir("workspaces")
}

// WorktreesDir returns the directory for centralized git worktrees.
func WorktreesDir() (string, error) {
	return dataSubdir("worktrees")
}

// DatabasePath returns the path of the SQLite record store.
func DatabasePath() (string, error) {
	return dataSubdir("eve.db")
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// IsFlatLayout returns true if using the ~/.eve/ (or EVE_HOME) flat layout.
func IsFlatLayout() bool {
	r, err := resolve()
	if err != nil {
		return true
	}
	return r.flat
}

// Reset clears the cached path resolution. This is intended for testing only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
