package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/eve/cli"
	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/logger"
	"github.com/zhubert/eve/store"
)

var foreground bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the eve daemon",
	Long: `Starts the HTTP API and WebSocket stream. Agent sessions that survived a
previous run are reattached before the server accepts connections.

On SIGINT or SIGTERM the server shuts down gracefully; tmux sessions keep
running so the next start can pick them up.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&foreground, "foreground", false, "Also write logs to stderr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	executor := pexec.NewRealExecutor()
	checker := cli.NewChecker(executor)
	if err := checker.ValidateRequired(cli.DefaultPrerequisites(cfg.AgentCommand[0])); err != nil {
		return fmt.Errorf("%v\n\nRun 'eve doctor' to see all prerequisites", err)
	}

	defer logger.Close()
	if foreground {
		logger.InitConsole(os.Stderr)
	}
	log := logger.WithComponent("daemon")

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("error opening store: %w", err)
	}
	d, err := newDaemon(cfg, st, executor)
	if err != nil {
		st.Close()
		return err
	}
	defer func() {
		if err := d.close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down gracefully", "signal", sig)
		cancel()
		// On second signal, force exit
		sig = <-sigCh
		log.Warn("received second signal, force exiting", "signal", sig)
		os.Exit(1)
	}()

	restored, err := d.workspaces.Restore(ctx)
	if err != nil {
		log.Warn("failed to restore sessions", "error", err)
	}

	log.Info("eve daemon starting", "version", version, "listen", cfg.Listen, "store", cfg.Store, "log", logger.Path(), "restored", restored)
	fmt.Fprintf(cmd.OutOrStdout(), "eve %s listening on %s\n", version, cfg.Listen)

	return d.newServer().ListenAndServe(ctx, cfg.Listen)
}
