package commands

import (
	"github.com/spf13/cobra"

	"github.com/msageha/hatloop/internal/setup"
)

func newInitCmd(g *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create hatloop.yml, PROMPT.md and the state directory",
		Long: `Initialize a hatloop workspace with the default planner/builder preset.

Creates:
  • hatloop.yml - loop and hat configuration
  • PROMPT.md   - the objective (kept if it already exists)
  • .hatloop/   - logs, event history and run summaries

Use --force to overwrite an existing hatloop.yml (the old file is kept as hatloop.yml.bak).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, g)
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			res, err := setup.Run(dir, setup.Options{Force: force})
			if err != nil {
				return p.Error("Initialization failed", err.Error(), []string{"Re-run with --force to overwrite."})
			}
			for _, f := range res.Created {
				p.Success("created %s", f)
			}
			for _, f := range res.Skipped {
				p.Info("  kept existing %s", f)
			}
			p.Step("edit PROMPT.md, then run: hatloop run")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing hatloop.yml")
	return cmd
}
