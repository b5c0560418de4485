package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/hatloop/internal/agent"
	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/instructions"
	"github.com/msageha/hatloop/internal/interrupt"
	"github.com/msageha/hatloop/internal/lock"
	"github.com/msageha/hatloop/internal/logging"
	"github.com/msageha/hatloop/internal/loop"
	"github.com/msageha/hatloop/internal/model"
	"github.com/msageha/hatloop/internal/notify"
	"github.com/msageha/hatloop/internal/printer"
)

const (
	historyFile = "events.jsonl"
	summaryFile = "summary.yml"
)

type runOptions struct {
	maxIterations int
	interactive   bool
	backend       string
	outputFormat  string
	strict        bool
	prompt        string
	promptFile    string
	resume        bool
	quiet         bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hat loop until completion or a safeguard",
		Long: `Run starts the loop. The entry hat gets the starting topic and the
objective from the prompt file. The loop ends with one of these exit codes:

  0    completed (the completion promise was printed by a terminating hat)
  1    consecutive failures, loop thrashing or error
  2    max iterations or max runtime reached
  130  interrupted (Ctrl-C, SIGTERM, or creating <state_dir>/stop)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.maxIterations, "max-iterations", 0, "override event_loop.max_iterations")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "run the agent in a PTY and forward keystrokes")
	f.StringVarP(&o.backend, "backend", "b", "", "agent backend: claude, kiro, gemini, codex, amp, custom, auto")
	f.StringVar(&o.outputFormat, "output-format", "", "claude output: text or stream-json (records cost and token usage)")
	f.BoolVar(&o.strict, "strict", false, "fail on hats unreachable from the entry hat")
	f.StringVarP(&o.prompt, "prompt", "p", "", "inline objective (overrides the prompt file)")
	f.StringVar(&o.promptFile, "prompt-file", "", "override event_loop.prompt_file")
	f.BoolVar(&o.resume, "resume", false, "publish task.resume instead of the starting topic")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "do not stream agent output in piped mode")
	return cmd
}

func (o *runOptions) apply(cmd *cobra.Command, cfg *model.Config) {
	f := cmd.Flags()
	if f.Changed("max-iterations") && o.maxIterations > 0 {
		cfg.EventLoop.MaxIterations = o.maxIterations
	}
	if o.interactive {
		cfg.CLI.DefaultMode = string(agent.ModeInteractive)
	}
	if o.backend != "" {
		cfg.CLI.Backend = o.backend
	}
	if o.outputFormat != "" {
		cfg.CLI.OutputFormat = o.outputFormat
	}
	if o.strict {
		cfg.EventLoop.StrictValidation = true
	}
	if o.promptFile != "" {
		cfg.EventLoop.PromptFile = o.promptFile
	}
}

func runLoop(cmd *cobra.Command, g *globalOptions, o *runOptions) error {
	p := newPrinter(cmd, g)
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return loadFailure(p, err)
	}
	o.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return loadFailure(p, err)
	}

	reg, _, err := buildRegistry(p, cfg, cfg.EventLoop.StrictValidation)
	if err != nil {
		return err
	}

	objective := o.prompt
	if objective == "" {
		objective, err = instructions.ReadObjective(cfg.EventLoop.PromptFile)
		if err != nil {
			_ = p.Error("No objective", err.Error(), []string{
				"Write the objective to " + cfg.EventLoop.PromptFile + ".",
				"Pass it inline with --prompt.",
			})
			return &ExitError{Code: 1}
		}
	}

	stateDir := cfg.Core.StateDir
	fl := lock.ForStateDir(stateDir)
	if err := fl.TryLock(); err != nil {
		_ = p.Error("Workspace busy", err.Error(), nil)
		return &ExitError{Code: 1}
	}
	defer fl.Unlock()

	level := cfg.Logging.Level
	if g.verbose {
		level = "debug"
	}
	logger, err := logging.New(stateDir, level)
	if err != nil {
		return p.Error("Cannot open log", err.Error(), nil)
	}
	defer logger.Close()

	defaultAgent, hatAgents, err := resolveAgents(cfg, reg, filepath.Join(stateDir, "tmp"))
	if err != nil {
		var none *agent.NoBackendError
		if errors.As(err, &none) {
			_ = p.Error("No agent CLI", err.Error(), []string{"Install one of the supported CLIs or set cli.backend."})
		} else {
			_ = p.Error("Invalid backend", err.Error(), nil)
		}
		return &ExitError{Code: 1}
	}

	builder, err := instructions.New(instructions.Options{
		Guardrails: cfg.Core.Guardrails,
		Objective:  objective,
		Promise:    cfg.EventLoop.CompletionPromise,
	})
	if err != nil {
		return p.Error("Cannot build prompts", err.Error(), nil)
	}

	history, err := events.NewHistory(filepath.Join(stateDir, historyFile), cfg.Logging.HistoryMaxSize)
	if err != nil {
		return p.Error("Cannot open event history", err.Error(), nil)
	}
	defer history.Close()

	bus := events.NewBus(0)
	defer bus.Close()
	busLog := logger.With("events")
	bus.Subscribe("*", func(r events.Record) {
		busLog.Debugf("event iteration=%d topic=%s from=%s to=%s outcome=%s", r.Iteration, r.Topic, r.SourceHat, r.RoutedTo, r.Outcome)
	})

	ic, err := interrupt.New(cmd.Context(), interrupt.Options{StateDir: stateDir, Signals: true, Logger: logger})
	if err != nil {
		return p.Error("Cannot watch for interrupts", err.Error(), nil)
	}
	defer ic.Close()

	startTopic := reg.StartingTopic()
	if o.resume {
		startTopic = model.ResumeTopic
	}
	runID := model.GenerateRunID()

	var output io.Writer
	if !o.quiet {
		output = cmd.OutOrStdout()
	}
	engine, err := loop.New(loop.Options{
		Registry:    reg,
		Executor:    agent.NewExecutor(agent.Config{Grace: cfg.CLI.Grace(), InterruptWindow: cfg.CLI.InterruptWindow()}, logger),
		Prompts:     builder,
		Agent:       defaultAgent,
		HatAgents:   hatAgents,
		Mode:        agent.Mode(cfg.CLI.DefaultMode),
		IdleTimeout: cfg.CLI.IdleTimeout(),
		Output:      output,
		Force:       ic.Force(),
		Limits: loop.Limits{
			MaxIterations:          cfg.EventLoop.MaxIterations,
			MaxRuntime:             cfg.EventLoop.MaxRuntime(),
			MaxConsecutiveFailures: cfg.EventLoop.MaxConsecutiveFailures,
			ThrashThreshold:        cfg.EventLoop.ThrashThreshold,
		},
		Promise:       cfg.EventLoop.CompletionPromise,
		CaseSensitive: cfg.EventLoop.CaseSensitivePromise(),
		StartTopic:    startTopic,
		RunID:         runID,
		History:       history,
		Bus:           bus,
		SummaryPath:   filepath.Join(stateDir, summaryFile),
		Reporter:      p,
		Logger:        logger,
	})
	if err != nil {
		return p.Error("Cannot start loop", err.Error(), nil)
	}

	p.Step("run %s: %d hat(s), entry %s, backend %s (%s)", runID, reg.Len(), reg.Entry(), defaultAgent.Backend.Kind, cfg.CLI.DefaultMode)
	sum, err := engine.Run(ic.Context())
	if err != nil {
		return configFailure(p, err)
	}
	p.Summary(sum)
	if src := ic.Source(); src != "" {
		p.Info("  interrupted by %s", src)
	}

	if cfg.Notify.OnExit {
		if err := notify.Send("hatloop", notificationText(sum)); err != nil {
			logger.Warnf("notify_failed error=%v", err)
		}
	}
	if sum.ExitCode != loop.ExitSuccess {
		return &ExitError{Code: sum.ExitCode}
	}
	return nil
}

// resolveAgents builds the default backend and the per-hat overrides.
func resolveAgents(cfg model.Config, reg *hat.Registry, tempDir string) (loop.AgentSpec, map[string]loop.AgentSpec, error) {
	build := func(kind string) (loop.AgentSpec, error) {
		bc := agent.BackendConfig{
			Kind:                 kind,
			LargePromptThreshold: cfg.CLI.LargePromptThreshold,
			TempDir:              tempDir,
		}
		if strings.EqualFold(kind, cfg.CLI.Backend) {
			bc.Command = cfg.CLI.Command
			bc.Args = cfg.CLI.Args
			bc.PromptMode = cfg.CLI.PromptMode
			bc.OutputFormat = cfg.CLI.OutputFormat
		}
		b, err := agent.NewBackend(bc)
		if err != nil {
			return loop.AgentSpec{}, err
		}
		return loop.AgentSpec{Backend: b, Timeout: cfg.Adapters.Timeout(string(b.Kind))}, nil
	}

	def, err := build(cfg.CLI.Backend)
	if err != nil {
		return loop.AgentSpec{}, nil, err
	}
	overrides := make(map[string]loop.AgentSpec)
	for _, h := range reg.All() {
		if h.Backend == "" || strings.EqualFold(h.Backend, cfg.CLI.Backend) {
			continue
		}
		spec, err := build(h.Backend)
		if err != nil {
			return loop.AgentSpec{}, nil, fmt.Errorf("hat %s: %w", h.ID, err)
		}
		overrides[h.ID] = spec
	}
	return def, overrides, nil
}

func notificationText(s loop.Summary) string {
	return fmt.Sprintf("%s after %d iteration(s) (%s)", s.Reason, s.Iterations, s.Duration)
}

var (
	_ loop.Reporter = (*printer.Printer)(nil)
	_ loop.Executor = (*agent.Executor)(nil)
)
