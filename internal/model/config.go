// Package model defines hatloop's configuration, its defaults, and the
// conversion of configured hats into registry definitions.
package model

// Config is the parsed hatloop.yml.
type Config struct {
	EventLoop EventLoopConfig `yaml:"event_loop"`
	CLI       CLIConfig       `yaml:"cli"`
	Adapters  AdaptersConfig  `yaml:"adapters,omitempty"`
	Core      CoreConfig      `yaml:"core"`
	Hats      HatsConfig      `yaml:"hats,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type EventLoopConfig struct {
	CompletionPromise      string `yaml:"completion_promise" split_words:"true"`
	PromiseCaseSensitive   *bool  `yaml:"promise_case_sensitive,omitempty" split_words:"true"`
	MaxIterations          int    `yaml:"max_iterations" split_words:"true"`
	MaxRuntimeSeconds      int    `yaml:"max_runtime_seconds" split_words:"true"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures" split_words:"true"`
	ThrashThreshold        int    `yaml:"thrash_threshold" split_words:"true"` // blocked events per task_id before LoopThrashing
	StartingTopic          string `yaml:"starting_topic" split_words:"true"`
	StartingHat            string `yaml:"starting_hat,omitempty" split_words:"true"`
	RecoveryHat            string `yaml:"recovery_hat,omitempty" split_words:"true"`
	StrictValidation       bool   `yaml:"strict_validation" split_words:"true"`
	PromptFile             string `yaml:"prompt_file" split_words:"true"`
}

type CLIConfig struct {
	Backend              string   `yaml:"backend" split_words:"true"`
	Command              string   `yaml:"command,omitempty" split_words:"true"`
	Args                 []string `yaml:"args,omitempty" split_words:"true"`
	PromptMode           string   `yaml:"prompt_mode,omitempty" split_words:"true"`   // arg | stdin (custom backend only)
	DefaultMode          string   `yaml:"default_mode" split_words:"true"`            // piped | interactive
	OutputFormat         string   `yaml:"output_format,omitempty" split_words:"true"` // text | stream-json (claude only)
	IdleTimeoutSecs      *int     `yaml:"idle_timeout_secs,omitempty" split_words:"true"`
	LargePromptThreshold int      `yaml:"large_prompt_threshold" split_words:"true"`
	GraceSecs            int      `yaml:"grace_secs" split_words:"true"`
	InterruptWindowMs    int      `yaml:"interrupt_window_ms" split_words:"true"`
}

// AdapterConfig holds per-backend settings.
type AdapterConfig struct {
	Timeout int `yaml:"timeout"` // seconds; 0 means unbounded
}

// AdaptersConfig is keyed by backend name.
type AdaptersConfig map[string]AdapterConfig

type CoreConfig struct {
	StateDir   string   `yaml:"state_dir" split_words:"true"`
	Guardrails []string `yaml:"guardrails,omitempty" split_words:"true"`
}

type HatConfig struct {
	Name             string   `yaml:"name,omitempty"`
	Triggers         []string `yaml:"triggers"`
	Publishes        []string `yaml:"publishes,omitempty"`
	Instructions     string   `yaml:"instructions,omitempty"`
	Backend          string   `yaml:"backend,omitempty"`
	MaxActivations   int      `yaml:"max_activations,omitempty"`
	Terminating      bool     `yaml:"terminating,omitempty"`
	DefaultPublishes string   `yaml:"default_publishes,omitempty"`
}

type LoggingConfig struct {
	Level          string `yaml:"level" split_words:"true"`
	HistoryMaxSize int64  `yaml:"history_max_size,omitempty" split_words:"true"`
}

type NotifyConfig struct {
	OnExit bool `yaml:"on_exit" split_words:"true"`
}
