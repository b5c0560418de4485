package loop

import (
	"fmt"
	"sort"
	"time"

	"github.com/msageha/hatloop/internal/agent"
	yamlutil "github.com/msageha/hatloop/internal/yaml"
)

// Summary describes a finished run.
type Summary struct {
	RunID       string            `yaml:"run_id"`
	Reason      TerminationReason `yaml:"reason"`
	ExitCode    int               `yaml:"exit_code"`
	Iterations  int               `yaml:"iterations"`
	StartedAt   time.Time         `yaml:"started_at"`
	FinishedAt  time.Time         `yaml:"finished_at"`
	Duration    string            `yaml:"duration"`
	FinalHat    string            `yaml:"final_hat"`
	Failures    int               `yaml:"consecutive_failures"`
	Activations []HatActivations  `yaml:"activations,omitempty"`
	Blocked     map[string]int    `yaml:"blocked,omitempty"`
	Detail      string            `yaml:"detail,omitempty"`
	Usage       *Usage            `yaml:"usage,omitempty"`
}

// Usage totals the session results reported by stream-json agents.
type Usage struct {
	Sessions     int     `yaml:"sessions"`
	CostUSD      float64 `yaml:"cost_usd"`
	InputTokens  int64   `yaml:"input_tokens"`
	OutputTokens int64   `yaml:"output_tokens"`
	Turns        int     `yaml:"turns"`
}

func (u *Usage) add(r agent.Usage) {
	u.Sessions++
	u.CostUSD += r.CostUSD
	u.InputTokens += r.InputTokens
	u.OutputTokens += r.OutputTokens
	u.Turns += r.Turns
}

// HatActivations is the iteration count of one hat.
type HatActivations struct {
	Hat   string `yaml:"hat"`
	Count int    `yaml:"count"`
}

func newSummary(runID string, s *State, finished time.Time, detail string) Summary {
	sum := Summary{
		RunID:      runID,
		Reason:     s.Termination,
		ExitCode:   s.Termination.ExitCode(),
		Iterations: s.Iteration,
		StartedAt:  s.StartedAt,
		FinishedAt: finished,
		Duration:   finished.Sub(s.StartedAt).Round(time.Millisecond).String(),
		FinalHat:   s.ActiveHat,
		Failures:   s.ConsecutiveFailures,
		Detail:     detail,
	}
	for id, n := range s.Activations {
		sum.Activations = append(sum.Activations, HatActivations{Hat: id, Count: n})
	}
	sort.Slice(sum.Activations, func(i, j int) bool { return sum.Activations[i].Hat < sum.Activations[j].Hat })
	if len(s.BlockedCounts) > 0 {
		sum.Blocked = make(map[string]int, len(s.BlockedCounts))
		for k, v := range s.BlockedCounts {
			sum.Blocked[k] = v
		}
	}
	return sum
}

// Payload renders the summary as the loop.terminate event body.
func (s Summary) Payload() string {
	return fmt.Sprintf("reason=%s iterations=%d duration=%s exit_code=%d final_hat=%s",
		s.Reason, s.Iterations, s.Duration, s.ExitCode, s.FinalHat)
}

// WriteSummary atomically writes s to path.
func WriteSummary(path string, s Summary) error {
	if err := yamlutil.AtomicWrite(path, s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
