package agent

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Kind names a supported agent CLI.
type Kind string

const (
	KindClaude Kind = "claude"
	KindKiro   Kind = "kiro"
	KindGemini Kind = "gemini"
	KindCodex  Kind = "codex"
	KindAmp    Kind = "amp"
	KindCustom Kind = "custom"
	// KindAuto picks the first installed backend from DetectionOrder.
	KindAuto Kind = "auto"
)

// DetectionOrder is the priority used by KindAuto.
var DetectionOrder = []Kind{KindClaude, KindKiro, KindGemini, KindCodex, KindAmp}

// PromptMode selects how the prompt reaches the agent.
type PromptMode string

const (
	PromptArg   PromptMode = "arg"
	PromptStdin PromptMode = "stdin"
)

// Mode selects piped or interactive (PTY) execution.
type Mode string

const (
	ModePiped       Mode = "piped"
	ModeInteractive Mode = "interactive"
)

// DefaultLargePromptThreshold is the prompt size above which the prompt is
// delivered through a temp file.
const DefaultLargePromptThreshold = 7000

// Backend describes how to invoke one agent CLI.
type Backend struct {
	Kind       Kind
	Command    string
	Args       []string
	PromptMode PromptMode
	PromptFlag string

	// LargePromptThreshold overrides DefaultLargePromptThreshold when > 0.
	LargePromptThreshold int
	// TempDir is where large prompts are written. Empty means os.TempDir().
	TempDir string
	// OutputFormat is OutputStreamJSON for claude runs that report NDJSON.
	OutputFormat OutputFormat
}

// BackendConfig is the subset of configuration needed to build a Backend.
type BackendConfig struct {
	Kind                 string
	Command              string
	Args                 []string
	PromptMode           string
	LargePromptThreshold int
	TempDir              string
	OutputFormat         string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// NewBackend returns the backend described by cfg.
func NewBackend(cfg BackendConfig) (Backend, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(cfg.Kind)))
	if kind == "" {
		kind = KindClaude
	}
	requested := kind
	if kind == KindAuto {
		detected, err := Detect()
		if err != nil {
			return Backend{}, err
		}
		kind = detected
	}

	var b Backend
	switch kind {
	case KindClaude:
		b = Backend{Command: "claude", Args: []string{"--dangerously-skip-permissions"}, PromptMode: PromptArg, PromptFlag: "-p"}
	case KindKiro:
		b = Backend{Command: "kiro-cli", Args: []string{"chat", "--no-interactive", "--trust-all-tools"}, PromptMode: PromptArg}
	case KindGemini:
		b = Backend{Command: "gemini", PromptMode: PromptStdin}
	case KindCodex:
		b = Backend{Command: "codex", PromptMode: PromptArg, PromptFlag: "--prompt"}
	case KindAmp:
		b = Backend{Command: "amp", PromptMode: PromptStdin}
	case KindCustom:
		if cfg.Command == "" {
			return Backend{}, fmt.Errorf("custom backend requires a command")
		}
		b = Backend{Command: cfg.Command, PromptMode: PromptArg}
		if PromptMode(cfg.PromptMode) == PromptStdin {
			b.PromptMode = PromptStdin
		}
	default:
		return Backend{}, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
	b.Kind = kind
	if len(cfg.Args) > 0 {
		b.Args = append(append([]string{}, b.Args...), cfg.Args...)
	}
	b.LargePromptThreshold = cfg.LargePromptThreshold
	b.TempDir = cfg.TempDir

	switch OutputFormat(cfg.OutputFormat) {
	case "", OutputText:
	case OutputStreamJSON:
		switch {
		case kind == KindClaude:
			b.OutputFormat = OutputStreamJSON
		case requested == KindAuto:
			// Detected CLI has no stream-json mode; it prints text.
		default:
			return Backend{}, fmt.Errorf("output format %s is only supported by the claude backend", OutputStreamJSON)
		}
	default:
		return Backend{}, fmt.Errorf("unknown output format %q", cfg.OutputFormat)
	}
	return b, nil
}

// NoBackendError is returned by Detect when no supported CLI is installed.
type NoBackendError struct {
	Checked []Kind
}

func (e *NoBackendError) Error() string {
	names := make([]string, len(e.Checked))
	for i, k := range e.Checked {
		names[i] = string(k)
	}
	return fmt.Sprintf("no supported agent CLI found in PATH (checked: %s)", strings.Join(names, ", "))
}

// Detect returns the first backend in DetectionOrder whose command is on PATH.
func Detect() (Kind, error) {
	for _, k := range DetectionOrder {
		b, err := NewBackend(BackendConfig{Kind: string(k)})
		if err != nil {
			continue
		}
		if _, err := lookPath(b.Command); err == nil {
			return k, nil
		}
	}
	return "", &NoBackendError{Checked: DetectionOrder}
}

// Invocation is a fully resolved command line for one iteration.
type Invocation struct {
	Command string
	Args    []string
	// Stdin is written to the child's standard input when non-empty.
	Stdin string
	// TempFile holds a large prompt. Remove it with Cleanup.
	TempFile string
	// StreamJSON means stdout is claude stream-json NDJSON.
	StreamJSON bool
}

// Cleanup removes the temp prompt file, if any.
func (inv Invocation) Cleanup() {
	if inv.TempFile != "" {
		_ = os.Remove(inv.TempFile)
	}
}

func (b Backend) threshold() int {
	if b.LargePromptThreshold > 0 {
		return b.LargePromptThreshold
	}
	return DefaultLargePromptThreshold
}

// BuildInvocation resolves the command, arguments and stdin payload for
// prompt. Interactive claude runs without -p so the session stays open.
// Arg-mode prompts above the size threshold are written to a temp file and
// the agent is told to read it.
func (b Backend) BuildInvocation(prompt string, mode Mode) (Invocation, error) {
	inv := Invocation{Command: b.Command, Args: append([]string{}, b.Args...)}

	if b.PromptMode == PromptStdin {
		inv.Stdin = prompt
		return inv, nil
	}

	if len(prompt) > b.threshold() {
		path, err := writePromptFile(b.TempDir, prompt)
		if err != nil {
			return Invocation{}, err
		}
		inv.TempFile = path
		prompt = fmt.Sprintf("Please read and execute the task in %s", path)
	}

	flag := b.PromptFlag
	if b.Kind == KindClaude && mode == ModeInteractive {
		flag = ""
	}
	if b.OutputFormat == OutputStreamJSON && mode == ModePiped {
		inv.Args = append(inv.Args, "--output-format", string(OutputStreamJSON), "--verbose")
		inv.StreamJSON = true
	}
	if flag != "" {
		inv.Args = append(inv.Args, flag)
	}
	inv.Args = append(inv.Args, prompt)
	return inv, nil
}

func writePromptFile(dir, prompt string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create prompt dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "hatloop-prompt-*.md")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	if _, err := f.WriteString(prompt); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close prompt file: %w", err)
	}
	return f.Name(), nil
}

// childEnv returns the environment for agent processes. Nested-session
// markers are removed so an agent CLI launched from inside another agent
// session still starts.
func childEnv() []string {
	return filterEnv(os.Environ(), "CLAUDECODE")
}

// filterEnv returns a copy of environ with the named variable removed.
func filterEnv(environ []string, name string) []string {
	prefix := name + "="
	out := make([]string, 0, len(environ))
	for _, e := range environ {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
