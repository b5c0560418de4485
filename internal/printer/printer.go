// Package printer renders hatloop's user-facing terminal output.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/loop"
	"github.com/msageha/hatloop/internal/router"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Printer writes progress to Out and diagnostics to Err.
type Printer struct {
	Out     io.Writer
	Err     io.Writer
	Verbose bool
}

// New returns a printer on the process's stdout and stderr.
func New(verbose bool) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Verbose: verbose}
}

// Success prints a message in green with a checkmark prefix.
func (p *Printer) Success(format string, a ...any) {
	green.Fprintf(p.Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints a plain message.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.Out, format+"\n", a...)
}

// Warning prints a yellow message to Err.
func (p *Printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.Err, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// Step prints an emphasised progress line.
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints a titled diagnostic with suggestions to Err and returns an
// error carrying only the title, for cobra with SilenceErrors.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	red.Fprintf(p.Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}
	p.suggest(suggestions)
	return fmt.Errorf("%s", title)
}

// ErrorWithContext is Error with key/value details, printed sorted by key.
func (p *Printer) ErrorWithContext(title, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(p.Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(p.Err)
		for _, k := range keys {
			fmt.Fprintf(p.Err, "  %s: %s\n", k, context[k])
		}
	}
	p.suggest(suggestions)
	return fmt.Errorf("%s", title)
}

func (p *Printer) suggest(suggestions []string) {
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.Err, "  %d. %s\n", i+1, s)
		}
	}
}

// IterationStarted prints the iteration banner.
func (p *Printer) IterationStarted(iteration int, h *hat.Hat, trigger events.Event) {
	fmt.Fprintln(p.Out)
	bold.Fprintf(p.Out, "━━ iteration %d ━━ %s", iteration, h.DisplayName())
	faint.Fprintf(p.Out, "  (%s)\n", trigger.Topic)
}

// IterationFinished prints the events an iteration published.
func (p *Printer) IterationFinished(r loop.IterationReport) {
	res := r.Result
	if !res.Success() {
		msg := fmt.Sprintf("%s exited with code %d (%s)", r.HatID, res.ExitCode, res.Termination)
		if res.Error != nil {
			msg += ": " + res.Error.Error()
		}
		p.Warning("%s", msg)
	}
	for _, m := range r.Malformed {
		p.Warning("skipped malformed event: %s", m.Reason)
	}
	for _, rec := range r.Published {
		switch router.Outcome(rec.Outcome) {
		case router.OutcomeRejected:
			p.Warning("%s may not publish %s", r.HatID, rec.Topic)
		case router.OutcomeOrphaned:
			p.Warning("no hat handles %s; %s stays active", rec.Topic, r.NextHat)
		default:
			p.Step("%s → %s", rec.Topic, rec.RoutedTo)
		}
		if p.Verbose && rec.Payload != "" {
			faint.Fprintf(p.Out, "%s\n", indent(rec.Payload))
		}
	}
	if r.Completed {
		p.Success("completion promise found")
	}
}

// Summary prints the termination summary.
func (p *Printer) Summary(s loop.Summary) {
	fmt.Fprintln(p.Out)
	line := fmt.Sprintf("%s after %d iteration(s) in %s", s.Reason, s.Iterations, s.Duration)
	switch {
	case s.Reason.Success():
		p.Success("%s", line)
	case s.Reason == loop.ReasonInterrupted:
		yellow.Fprintf(p.Out, "■ %s\n", line)
	default:
		red.Fprintf(p.Out, "✗ %s\n", line)
	}
	if s.Detail != "" {
		fmt.Fprintf(p.Out, "  %s\n", s.Detail)
	}
	if len(s.Activations) > 0 {
		parts := make([]string, len(s.Activations))
		for i, a := range s.Activations {
			parts[i] = fmt.Sprintf("%s=%d", a.Hat, a.Count)
		}
		faint.Fprintf(p.Out, "  hats: %s\n", strings.Join(parts, " "))
	}
	if u := s.Usage; u != nil {
		faint.Fprintf(p.Out, "  cost: $%.4f over %d session(s), %d in / %d out tokens\n",
			u.CostUSD, u.Sessions, u.InputTokens, u.OutputTokens)
	}
}

// Record prints one history record.
func (p *Printer) Record(r events.Record) {
	ts := r.Timestamp.Local().Format("15:04:05")
	routed := r.RoutedTo
	if routed == "" {
		routed = r.Outcome
	}
	fmt.Fprintf(p.Out, "%s  #%-3d %-20s ", ts, r.Iteration, r.Topic)
	cyan.Fprintf(p.Out, "%s → %s\n", orDash(r.SourceHat), orDash(routed))
	if p.Verbose && r.Payload != "" {
		faint.Fprintf(p.Out, "%s\n", indent(r.Payload))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
