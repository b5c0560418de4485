package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/model"
	"github.com/msageha/hatloop/internal/topic"
)

func newEventsCmd(g *globalOptions) *cobra.Command {
	var (
		last    int
		pattern string
		runID   string
		file    string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event history",
		Long: `Events prints the append-only event history of the workspace.

Use --topic with a pattern such as build.* to filter, --run to select one
run, and --last to limit the output to the most recent records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, g)
			if err := topic.ValidatePattern(pattern); err != nil {
				return p.Error("Invalid topic pattern", err.Error(), nil)
			}
			if runID != "" && runID != latestRun && !model.ValidateRunID(runID) {
				return p.Error("Invalid run id", fmt.Sprintf("%q is not a run id", runID), []string{
					"Run ids look like run_1700000000_1a2b3c4d; see run_id in summary.yml.",
					"Use --run latest for the most recent run.",
				})
			}
			if file == "" {
				cfg, err := loadConfig(cmd, g)
				if err != nil {
					return loadFailure(p, err)
				}
				file = filepath.Join(cfg.Core.StateDir, historyFile)
			}

			recs, skipped, err := events.ReadHistory(file)
			if errors.Is(err, fs.ErrNotExist) {
				p.Info("no events recorded yet (%s)", file)
				return nil
			}
			if err != nil {
				return p.Error("Cannot read event history", err.Error(), nil)
			}
			if skipped > 0 {
				p.Warning("skipped %d unreadable line(s) in %s", skipped, file)
			}

			recs = filterRecords(recs, pattern, resolveRun(recs, runID), last)
			for _, r := range recs {
				if asJSON {
					line, err := json.Marshal(r)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(line))
					continue
				}
				p.Record(r)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&last, "last", "n", 0, "show only the last N matching records")
	f.StringVarP(&pattern, "topic", "t", topic.Wildcard, "topic pattern to match")
	f.StringVar(&runID, "run", "", "only records of this run id, or \"latest\"")
	f.StringVar(&file, "file", "", "history file (default <state_dir>/events.jsonl)")
	f.BoolVar(&asJSON, "json", false, "print raw JSON lines")
	return cmd
}

const latestRun = "latest"

// resolveRun maps "latest" to the run id of the newest record.
func resolveRun(recs []events.Record, runID string) string {
	if runID != latestRun {
		return runID
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].RunID != "" {
			return recs[i].RunID
		}
	}
	return ""
}

func filterRecords(recs []events.Record, pattern, runID string, last int) []events.Record {
	out := recs[:0:0]
	for _, r := range recs {
		if runID != "" && r.RunID != runID {
			continue
		}
		if topic.Matches(pattern, r.Topic) {
			out = append(out, r)
		}
	}
	if last > 0 && len(out) > last {
		out = out[len(out)-last:]
	}
	return out
}
