package model

import "time"

const (
	DefaultCompletionPromise      = "LOOP_COMPLETE"
	DefaultMaxIterations          = 100
	DefaultMaxRuntimeSeconds      = 14400
	DefaultMaxConsecutiveFailures = 5
	DefaultThrashThreshold        = 3
	DefaultStartingTopic          = "task.start"
	ResumeTopic                   = "task.resume"
	DefaultPromptFile             = "PROMPT.md"
	DefaultBackend                = "claude"
	DefaultMode                   = "piped"
	DefaultIdleTimeoutSecs        = 30
	DefaultLargePromptThreshold   = 7000
	DefaultGraceSecs              = 2
	DefaultInterruptWindowMs      = 1000
	DefaultAdapterTimeout         = 300
	DefaultStateDir               = ".hatloop"
	DefaultLogLevel               = "info"
	DefaultConfigFile             = "hatloop.yml"
)

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg Config) Config {
	el := &cfg.EventLoop
	if el.CompletionPromise == "" {
		el.CompletionPromise = DefaultCompletionPromise
	}
	if el.PromiseCaseSensitive == nil {
		v := true
		el.PromiseCaseSensitive = &v
	}
	if el.MaxIterations <= 0 {
		el.MaxIterations = DefaultMaxIterations
	}
	if el.MaxRuntimeSeconds <= 0 {
		el.MaxRuntimeSeconds = DefaultMaxRuntimeSeconds
	}
	if el.MaxConsecutiveFailures <= 0 {
		el.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if el.ThrashThreshold <= 0 {
		el.ThrashThreshold = DefaultThrashThreshold
	}
	if el.StartingTopic == "" {
		el.StartingTopic = DefaultStartingTopic
	}
	if el.PromptFile == "" {
		el.PromptFile = DefaultPromptFile
	}

	cli := &cfg.CLI
	if cli.Backend == "" {
		cli.Backend = DefaultBackend
	}
	if cli.DefaultMode == "" {
		cli.DefaultMode = DefaultMode
	}
	if cli.IdleTimeoutSecs == nil {
		v := DefaultIdleTimeoutSecs
		cli.IdleTimeoutSecs = &v
	}
	if cli.LargePromptThreshold <= 0 {
		cli.LargePromptThreshold = DefaultLargePromptThreshold
	}
	if cli.GraceSecs <= 0 {
		cli.GraceSecs = DefaultGraceSecs
	}
	if cli.InterruptWindowMs <= 0 {
		cli.InterruptWindowMs = DefaultInterruptWindowMs
	}

	if cfg.Core.StateDir == "" {
		cfg.Core.StateDir = DefaultStateDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	return cfg
}

// CaseSensitivePromise reports whether promise matching is case sensitive.
func (c EventLoopConfig) CaseSensitivePromise() bool {
	return c.PromiseCaseSensitive == nil || *c.PromiseCaseSensitive
}

// MaxRuntime returns the runtime limit as a duration.
func (c EventLoopConfig) MaxRuntime() time.Duration {
	return time.Duration(c.MaxRuntimeSeconds) * time.Second
}

// IdleTimeout returns the interactive idle timeout. Zero means unbounded.
func (c CLIConfig) IdleTimeout() time.Duration {
	if c.IdleTimeoutSecs == nil {
		return DefaultIdleTimeoutSecs * time.Second
	}
	return time.Duration(*c.IdleTimeoutSecs) * time.Second
}

// Grace returns the SIGTERM to SIGKILL escalation delay.
func (c CLIConfig) Grace() time.Duration {
	return time.Duration(c.GraceSecs) * time.Second
}

// InterruptWindow returns the double Ctrl-C window.
func (c CLIConfig) InterruptWindow() time.Duration {
	return time.Duration(c.InterruptWindowMs) * time.Millisecond
}

// Timeout returns the run timeout for backend. Backends without an
// adapters entry get DefaultAdapterTimeout; an explicit 0 means unbounded.
func (a AdaptersConfig) Timeout(backend string) time.Duration {
	if ac, ok := a[backend]; ok {
		return time.Duration(ac.Timeout) * time.Second
	}
	return DefaultAdapterTimeout * time.Second
}
