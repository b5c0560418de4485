package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/topic"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the hat configuration without running an agent",
		Long: `Validate loads hatloop.yml and checks the hat topology:

  • no two hats claim the same trigger pattern
  • at least one hat is terminating
  • every hat is reachable from the entry hat (an error with --strict)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, g)
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return loadFailure(p, err)
			}
			reg, _, err := buildRegistry(p, cfg, strict || cfg.EventLoop.StrictValidation)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "starting topic: %s\n", reg.StartingTopic())
			fmt.Fprintf(out, "entry hat:      %s\n", reg.Entry())
			if fb := reg.Fallback(); fb != "" {
				fmt.Fprintf(out, "fallback hat:   %s\n", fb)
			}
			if rec := reg.Recovery(); rec != "" {
				fmt.Fprintf(out, "recovery hat:   %s\n", rec)
			}
			fmt.Fprintln(out)
			for _, h := range reg.All() {
				flags := ""
				if h.Terminating {
					flags = " [terminating]"
				}
				fmt.Fprintf(out, "%s%s\n", h.DisplayName(), flags)
				fmt.Fprintf(out, "  triggers:  %s\n", strings.Join(h.Triggers, ", "))
				if len(h.Publishes) > 0 {
					fmt.Fprintf(out, "  publishes: %s\n", strings.Join(h.Publishes, ", "))
				}
				if next := reg.Successors(h.ID); len(next) > 0 {
					fmt.Fprintf(out, "  next:      %s\n", strings.Join(next, ", "))
				}
			}
			printRouting(out, reg)
			p.Success("%d hat(s) valid", reg.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on hats unreachable from the entry hat")
	return cmd
}

// printRouting lists the trigger index in match order and notes published
// topics that more than one hat could handle.
func printRouting(out io.Writer, reg *hat.Registry) {
	fmt.Fprintln(out, "\nrouting (most specific first):")
	for _, b := range reg.Bindings() {
		note := ""
		switch {
		case b.Pattern == topic.Wildcard:
			note = "  (fallback)"
		case topic.IsWildcard(b.Pattern):
			note = "  (wildcard)"
		}
		fmt.Fprintf(out, "  %-24s -> %s%s\n", b.Pattern, b.HatID, note)
	}

	seen := make(map[string]bool)
	for _, h := range reg.All() {
		for _, t := range h.Publishes {
			if seen[t] || topic.IsWildcard(t) {
				continue
			}
			seen[t] = true
			var subs []string
			for _, id := range reg.Subscribers(t) {
				if id != reg.Fallback() {
					subs = append(subs, id)
				}
			}
			if len(subs) < 2 {
				continue
			}
			if b, ok := reg.Match(t); ok {
				fmt.Fprintf(out, "  note: %s matches %s; routed to %s\n", t, strings.Join(subs, ", "), b.HatID)
			}
		}
	}
}
