package printer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/msageha/hatloop/internal/agent"
	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/loop"
	"github.com/msageha/hatloop/internal/router"
)

func newTestPrinter(t *testing.T, verbose bool) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut, Verbose: verbose}, &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		p, _, errOut := newTestPrinter(t, false)
		err := p.Error("Test Error", "This is a test error", nil)
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		require.Contains(t, errOut.String(), "This is a test error")
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		p, _, errOut := newTestPrinter(t, false)
		err := p.Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		require.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext_SortedKeys(t *testing.T) {
	p, _, errOut := newTestPrinter(t, false)
	err := p.ErrorWithContext("Ambiguous routing", "", map[string]string{"pattern": "build.done", "hat_a": "planner"}, []string{"Fix it"})
	require.Equal(t, "Ambiguous routing", err.Error())
	s := errOut.String()
	require.Less(t, strings.Index(s, "hat_a"), strings.Index(s, "pattern"))
	require.Contains(t, s, "\nFix it\n")
}

func TestIterationOutput(t *testing.T) {
	p, out, errOut := newTestPrinter(t, true)
	h := &hat.Hat{ID: "planner", Name: "Planner"}
	p.IterationStarted(2, h, events.Event{Topic: "build.done"})
	p.IterationFinished(loop.IterationReport{
		Iteration: 2,
		HatID:     "planner",
		Result:    agent.ExecResult{ExitCode: 1, Termination: agent.TerminationNatural, Error: errors.New("boom")},
		Published: []events.Record{
			{Topic: "build.task", RoutedTo: "builder", Payload: "do X", Outcome: string(router.OutcomeMatched)},
			{Topic: "deploy.now", Outcome: string(router.OutcomeRejected)},
		},
		NextHat: "builder",
	})

	require.Contains(t, out.String(), "iteration 2 ━━ Planner  (build.done)")
	require.Contains(t, out.String(), "→ build.task → builder")
	require.Contains(t, out.String(), "    do X")
	require.Contains(t, errOut.String(), "planner exited with code 1 (natural): boom")
	require.Contains(t, errOut.String(), "planner may not publish deploy.now")
}

func TestSummary(t *testing.T) {
	p, out, _ := newTestPrinter(t, false)
	p.Summary(loop.Summary{
		Reason:      loop.ReasonLoopThrashing,
		Iterations:  5,
		Duration:    "2m0s",
		Activations: []loop.HatActivations{{Hat: "builder", Count: 3}, {Hat: "planner", Count: 2}},
	})
	require.Contains(t, out.String(), "✗ loop_thrashing after 5 iteration(s) in 2m0s")
	require.Contains(t, out.String(), "hats: builder=3 planner=2")
	require.NotContains(t, out.String(), "cost:")
}

func TestSummary_Usage(t *testing.T) {
	p, out, _ := newTestPrinter(t, false)
	p.Summary(loop.Summary{
		Reason:     loop.ReasonCompleted,
		Iterations: 2,
		Duration:   "10s",
		Usage:      &loop.Usage{Sessions: 2, CostUSD: 0.0123, InputTokens: 1500, OutputTokens: 300},
	})
	require.Contains(t, out.String(), "cost: $0.0123 over 2 session(s), 1500 in / 300 out tokens")
}

func TestRecord(t *testing.T) {
	p, out, _ := newTestPrinter(t, false)
	p.Record(events.Record{Timestamp: time.Now(), Iteration: 3, Topic: "build.done", SourceHat: "builder", RoutedTo: "planner", Payload: "hidden"})
	p.Record(events.Record{Timestamp: time.Now(), Topic: "loop.terminate"})
	require.Contains(t, out.String(), "builder → planner")
	require.Contains(t, out.String(), "- → -")
	require.NotContains(t, out.String(), "hidden")
}
