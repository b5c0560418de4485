// Package agent runs agent CLIs for loop iterations, piped or under a PTY,
// and supervises their process groups.
package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/msageha/hatloop/internal/logging"
)

// Termination records why the child stopped.
type Termination string

const (
	TerminationNatural       Termination = "natural"
	TerminationTimeout       Termination = "timeout"
	TerminationIdleTimeout   Termination = "idle_timeout"
	TerminationUserInterrupt Termination = "user_interrupt"
	TerminationForceKill     Termination = "force_kill"
	TerminationInterrupted   Termination = "interrupted"
)

// ExecRequest contains parameters for one iteration's agent run.
type ExecRequest struct {
	Context   context.Context // nil defaults to context.Background(); cancellation means Interrupted
	HatID     string
	Iteration int
	Backend   Backend
	Prompt    string
	Mode      Mode
	// Timeout bounds the whole run. Zero means unbounded.
	Timeout time.Duration
	// IdleTimeout bounds silence in interactive mode. Zero means unbounded.
	IdleTimeout time.Duration
	Dir         string
	// Output receives agent output as it arrives (piped mode). Interactive
	// mode writes to the terminal instead.
	Output io.Writer
	// Force kills the child immediately when closed or signalled.
	Force <-chan struct{}
}

// ExecResult contains the outcome of one run.
type ExecResult struct {
	Output      string
	Stripped    string
	ExitCode    int
	Duration    time.Duration
	Termination Termination
	Mode        Mode
	Error       error
	// Usage is set for stream-json runs that reported a session result.
	Usage *Usage
}

// Success reports a natural, zero-status exit.
func (r ExecResult) Success() bool {
	return r.Error == nil && r.Termination == TerminationNatural && r.ExitCode == 0
}

// Interrupted reports whether the run ended because of a user or external interrupt.
func (r ExecResult) Interrupted() bool {
	switch r.Termination {
	case TerminationUserInterrupt, TerminationForceKill, TerminationInterrupted:
		return true
	default:
		return false
	}
}

// Config tunes the executor's signal and drain policy.
type Config struct {
	// Grace is the SIGTERM to SIGKILL escalation delay.
	Grace time.Duration
	// InterruptWindow is the double Ctrl-C window in interactive mode.
	InterruptWindow time.Duration
	// DrainTimeout bounds output collection after the child exits.
	DrainTimeout time.Duration
	// Terminal is the controlling terminal for interactive mode.
	Terminal Terminal
}

func applyDefaults(cfg Config) Config {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	if cfg.InterruptWindow <= 0 {
		cfg.InterruptWindow = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	if cfg.Terminal == nil {
		cfg.Terminal = NewStdTerminal()
	}
	return cfg
}

// Executor spawns and supervises agent processes.
type Executor struct {
	config Config
	logger *logging.Logger
}

// NewExecutor returns an executor with cfg's zero fields defaulted.
func NewExecutor(cfg Config, logger *logging.Logger) *Executor {
	return &Executor{config: applyDefaults(cfg), logger: logger.With("agent_executor")}
}

// Execute runs one iteration. It never returns while any process from the
// child's group is known to be alive.
func (e *Executor) Execute(req ExecRequest) ExecResult {
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	mode := req.Mode
	if mode == "" {
		mode = ModePiped
	}
	if mode == ModeInteractive && !e.config.Terminal.IsInteractive() {
		e.logger.Warnf("interactive_downgrade hat=%s iteration=%d reason=not_a_terminal", req.HatID, req.Iteration)
		mode = ModePiped
	}

	inv, err := req.Backend.BuildInvocation(req.Prompt, mode)
	if err != nil {
		e.logger.Errorf("invocation_error hat=%s iteration=%d error=%v", req.HatID, req.Iteration, err)
		return ExecResult{ExitCode: -1, Termination: TerminationNatural, Mode: mode, Error: fmt.Errorf("build invocation: %w", err)}
	}
	defer inv.Cleanup()

	e.logger.Infof("exec_start hat=%s iteration=%d mode=%s command=%s args=%d prompt_bytes=%d temp_file=%t",
		req.HatID, req.Iteration, mode, inv.Command, len(inv.Args), len(req.Prompt), inv.TempFile != "")

	start := time.Now()
	var res ExecResult
	if mode == ModeInteractive {
		res = e.runInteractive(ctx, req, inv)
	} else {
		res = e.runPiped(ctx, req, inv)
	}
	res.Mode = mode
	res.Duration = time.Since(start)
	if inv.StreamJSON {
		text, usage := DecodeStream(res.Output)
		res.Stripped = StripANSI(text)
		res.Usage = usage
		if usage != nil {
			e.logger.Debugf("stream_result hat=%s iteration=%d cost_usd=%.4f input_tokens=%d output_tokens=%d turns=%d",
				req.HatID, req.Iteration, usage.CostUSD, usage.InputTokens, usage.OutputTokens, usage.Turns)
		}
	} else {
		res.Stripped = StripANSI(res.Output)
	}

	level := e.logger.Infof
	if !res.Success() {
		level = e.logger.Warnf
	}
	level("exec_done hat=%s iteration=%d exit_code=%d termination=%s duration=%s output_bytes=%d error=%v",
		req.HatID, req.Iteration, res.ExitCode, res.Termination, res.Duration.Round(time.Millisecond), len(res.Output), res.Error)
	return res
}

func (e *Executor) command(req ExecRequest, inv Invocation, session bool) *exec.Cmd {
	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Env = childEnv()
	cmd.Dir = req.Dir
	cmd.SysProcAttr = sysProcAttr(session)
	return cmd
}

// StripANSI removes terminal escape sequences and carriage returns.
func StripANSI(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "")
}
