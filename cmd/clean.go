package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/process"
	"github.com/zhubert/eve/store"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphaned worktrees, tmux sessions and log files",
	Long: `Removes worktree directories that no workspace record refers to, along
with their branches. Kills tmux sessions carrying the session prefix that no
workspace owns, and deletes the daemon log file.

Run it while the daemon is stopped. It prompts for confirmation unless --yes
is given.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("error opening store: %w", err)
	}
	d, err := newDaemon(cfg, st, pexec.NewRealExecutor())
	if err != nil {
		st.Close()
		return err
	}
	defer d.close()

	return runCleanWith(cmd.Context(), d, os.Stdin, cmd.OutOrStdout())
}

// runCleanWith allows injecting the daemon and input for testing.
func runCleanWith(ctx context.Context, d *daemon, input io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	known, err := d.knownWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("error listing workspaces: %w", err)
	}
	orphans, err := d.worktrees.FindOrphaned(known)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding orphaned worktrees: %v\n", err)
	}

	knownSessions, err := d.knownSessions(ctx)
	if err != nil {
		return fmt.Errorf("error listing workspaces: %w", err)
	}
	sessions, err := process.FindOrphanedSessions(ctx, d.tmux, d.prefix, knownSessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding orphaned sessions: %v\n", err)
	}

	if len(orphans) == 0 && len(sessions) == 0 {
		fmt.Fprintln(out, "No orphaned worktrees or sessions found.")
		return nil
	}

	fmt.Fprintln(out, "This will clean:")
	if len(orphans) > 0 {
		fmt.Fprintf(out, "  - %d orphaned worktree(s)\n", len(orphans))
		for _, o := range orphans {
			fmt.Fprintf(out, "      %s\n", o.Path)
		}
	}
	if len(sessions) > 0 {
		fmt.Fprintf(out, "  - %d orphaned tmux session(s)\n", len(sessions))
		for _, o := range sessions {
			fmt.Fprintf(out, "      %s\n", o.Name)
		}
	}
	fmt.Fprintln(out, "  - The daemon log file")

	if !skipConfirm {
		if !confirm(input, out, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	pruned := d.worktrees.PruneOrphaned(ctx, orphans)
	killed := process.CleanupOrphanedSessions(ctx, d.tmux, sessions)

	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error clearing logs: %v\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Cleaned:")
	fmt.Fprintf(out, "  - %d orphaned worktree(s) pruned\n", pruned)
	fmt.Fprintf(out, "  - %d orphaned tmux session(s) killed\n", killed)
	if logsCleared > 0 {
		fmt.Fprintf(out, "  - %d log file(s) removed\n", logsCleared)
	}
	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
