// Package config loads the daemon configuration from config.yaml.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/eve/paths"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Defaults applied to any field left unset in config.yaml.
const (
	DefaultPort             = 4778
	DefaultBranchPrefix     = "eve"
	DefaultSessionPrefix    = "eve"
	DefaultCaptureInterval  = 500 * time.Millisecond
	DefaultCaptureDepth     = 100
	DefaultSubscriberBuffer = 256
)

// DefaultAgentCommand is the interactive coding assistant started in each
// workspace's tmux session.
var DefaultAgentCommand = []string{"claude"}

// Config holds the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":4778" or "127.0.0.1:4778".
	Listen string `yaml:"listen"`

	// BranchPrefix is prepended to workspace branch names ("eve/<name>").
	BranchPrefix string `yaml:"branch_prefix"`

	// SessionPrefix names tmux sessions ("eve-<id8>").
	SessionPrefix string `yaml:"session_prefix"`

	// AgentCommand is the argv run inside each new tmux session.
	AgentCommand []string `yaml:"agent_command"`

	// CaptureInterval is how often the pane is sampled for new output.
	CaptureInterval time.Duration `yaml:"capture_interval"`

	// CaptureDepth is how many scrollback lines each sample includes.
	CaptureDepth int `yaml:"capture_depth"`

	// SubscriberBuffer bounds the events queued per stream subscriber.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// Store selects the record store backend: "file" or "sqlite".
	Store string `yaml:"store"`

	filePath string
}

// Default returns a config with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config.yaml from path, or from the default config location when
// path is empty. A missing file yields the defaults. EVE_PORT overrides the
// listen port.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := paths.ConfigFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()

	if port := os.Getenv("EVE_PORT"); port != "" {
		if err := cfg.SetPort(port); err != nil {
			return nil, fmt.Errorf("invalid EVE_PORT: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = fmt.Sprintf(":%d", DefaultPort)
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.SessionPrefix == "" {
		c.SessionPrefix = DefaultSessionPrefix
	}
	if len(c.AgentCommand) == 0 {
		c.AgentCommand = append([]string(nil), DefaultAgentCommand...)
	}
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = DefaultCaptureInterval
	}
	if c.CaptureDepth <= 0 {
		c.CaptureDepth = DefaultCaptureDepth
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Store == "" {
		c.Store = StoreFile
	}
}

// SetPort replaces the port of the listen address, keeping its host.
func (c *Config) SetPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be 1-65535, got %q", port)
	}
	host := ""
	if h, _, err := net.SplitHostPort(c.Listen); err == nil {
		host = h
	}
	c.Listen = net.JoinHostPort(host, port)
	return nil
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if strings.ContainsAny(c.BranchPrefix, " ~^:?*[\\") || strings.HasPrefix(c.BranchPrefix, "-") {
		return fmt.Errorf("invalid branch_prefix %q", c.BranchPrefix)
	}
	// tmux treats ':' and '.' in target names as window/pane separators.
	if strings.ContainsAny(c.SessionPrefix, ":. ") {
		return fmt.Errorf("invalid session_prefix %q", c.SessionPrefix)
	}
	if c.AgentCommand[0] == "" {
		return fmt.Errorf("agent_command must not be empty")
	}
	if c.CaptureInterval < 50*time.Millisecond {
		return fmt.Errorf("capture_interval must be at least 50ms, got %s", c.CaptureInterval)
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %q or %q)", c.Store, StoreFile, StoreSQLite)
	}
	return nil
}

// FilePath returns the path the config was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// Save writes the config back to its file as YAML.
func (c *Config) Save() error {
	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}
