// Package commands implements the hatloop command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/hatloop/internal/model"
	"github.com/msageha/hatloop/internal/printer"
)

// buildInfo is filled in by main through SetVersionInfo.
var buildInfo struct {
	version, commit, date string
}

// ExitError carries a process exit status through cobra.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "hatloop",
		Short: "hatloop - event-driven loop orchestrator for AI coding agents",
		Long: `hatloop repeatedly runs an AI coding agent CLI under a sequence of hats.

Each iteration runs one hat. The agent publishes events such as
<event topic="build.done">...</event> in its output. Those events pick the
hat for the next iteration. The loop ends when a terminating hat prints the
completion promise or when a safeguard trips.`,
		Version: versionString(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", model.DefaultConfigFile, "path to hatloop.yml")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print event payloads and debug logs")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newInitCmd(g),
		newEventsCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// SetVersionInfo sets the version reported by --version and "hatloop version".
func SetVersionInfo(v, c, d string) {
	buildInfo.version, buildInfo.commit, buildInfo.date = v, c, d
}

func versionString() string {
	if buildInfo.version == "" {
		return "dev"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", buildInfo.version, buildInfo.commit, buildInfo.date)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hatloop version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hatloop %s\n", versionString())
		},
	}
}

func newPrinter(cmd *cobra.Command, g *globalOptions) *printer.Printer {
	return &printer.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Verbose: g.verbose}
}

// loadConfig loads the config file. The default path may be absent; an
// explicitly named file must exist.
func loadConfig(cmd *cobra.Command, g *globalOptions) (model.Config, error) {
	if cmd.Flags().Changed("config") {
		return model.Load(g.configPath)
	}
	return model.LoadOptional(g.configPath)
}
