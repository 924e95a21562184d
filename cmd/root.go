// Package cmd implements the eve command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/eve/config"
	"github.com/zhubert/eve/logger"
)

var (
	debugMode             bool
	configPath            string
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "eve",
	Short: "Daemon that runs coding agents in isolated git worktrees",
	Long: `Eve manages workspaces: each one is a git worktree on its own branch,
an allocated port and a coding agent running in a tmux session. Clients
drive workspaces over HTTP and stream agent output over WebSocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: <config dir>/config.yaml)")
}

func initConfig() {
	logger.SetDebug(debugMode)
}

// loadConfig reads the config selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("eve %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("eve %s\n", version)
}
