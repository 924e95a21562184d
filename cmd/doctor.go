package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/eve/cli"
	pexec "github.com/zhubert/eve/exec"
	"github.com/zhubert/eve/paths"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check prerequisites and show where eve keeps its files",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	checker := cli.NewChecker(pexec.NewRealExecutor())
	prereqs := cli.DefaultPrerequisites(cfg.AgentCommand[0])
	fmt.Fprint(out, cli.FormatCheckResults(checker.CheckAll(cmd.Context(), prereqs)))

	fmt.Fprintln(out, "\nPaths:")
	for _, p := range []struct {
		label string
		fn    func() (string, error)
	}{
		{"config", paths.ConfigFilePath},
		{"data", paths.DataDir},
		{"worktrees", paths.WorktreesDir},
		{"logs", paths.LogsDir},
	} {
		dir, err := p.fn()
		if err != nil {
			dir = "error: " + err.Error()
		}
		fmt.Fprintf(out, "  %-10s %s\n", p.label, dir)
	}
	fmt.Fprintf(out, "\nStore: %s\nListen: %s\n", cfg.Store, cfg.Listen)

	return checker.ValidateRequired(prereqs)
}
