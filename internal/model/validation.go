package model

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	FieldPath string
	Message   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(fieldPath, message string) {
	ve.Errors = append(ve.Errors, ValidationError{FieldPath: fieldPath, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s: %s\n", e.FieldPath, e.Message)
	}
	return sb.String()
}

// Validate checks field-level constraints. Routing semantics are checked by
// the hat registry.
func (c Config) Validate() error {
	var ve ValidationErrors

	if c.EventLoop.MaxIterations < 1 {
		ve.Add("event_loop.max_iterations", "must be >= 1")
	}
	if c.EventLoop.MaxRuntimeSeconds < 1 {
		ve.Add("event_loop.max_runtime_seconds", "must be >= 1")
	}
	if c.EventLoop.MaxConsecutiveFailures < 1 {
		ve.Add("event_loop.max_consecutive_failures", "must be >= 1")
	}
	if c.EventLoop.ThrashThreshold < 1 {
		ve.Add("event_loop.thrash_threshold", "must be >= 1")
	}
	if strings.TrimSpace(c.EventLoop.CompletionPromise) == "" {
		ve.Add("event_loop.completion_promise", "must not be blank")
	}

	switch c.CLI.DefaultMode {
	case "piped", "interactive":
	default:
		ve.Add("cli.default_mode", fmt.Sprintf("must be piped or interactive, got %q", c.CLI.DefaultMode))
	}
	switch c.CLI.PromptMode {
	case "", "arg", "stdin":
	default:
		ve.Add("cli.prompt_mode", fmt.Sprintf("must be arg or stdin, got %q", c.CLI.PromptMode))
	}
	switch c.CLI.OutputFormat {
	case "", "text":
	case "stream-json":
		switch c.CLI.Backend {
		case "claude", "auto", "":
		default:
			ve.Add("cli.output_format", fmt.Sprintf("stream-json requires the claude backend, got %q", c.CLI.Backend))
		}
	default:
		ve.Add("cli.output_format", fmt.Sprintf("must be text or stream-json, got %q", c.CLI.OutputFormat))
	}
	if c.CLI.Backend == "custom" && c.CLI.Command == "" {
		ve.Add("cli.command", "required when cli.backend is custom")
	}
	if c.CLI.IdleTimeoutSecs != nil && *c.CLI.IdleTimeoutSecs < 0 {
		ve.Add("cli.idle_timeout_secs", "must be >= 0")
	}
	for name, a := range c.Adapters {
		if a.Timeout < 0 {
			ve.Add("adapters."+name+".timeout", "must be >= 0")
		}
	}

	for _, id := range c.Hats.Order {
		h := c.Hats.Items[id]
		path := "hats." + id
		if len(h.Triggers) == 0 {
			ve.Add(path+".triggers", "at least one trigger is required")
		}
		if h.MaxActivations < 0 {
			ve.Add(path+".max_activations", "must be >= 0")
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
