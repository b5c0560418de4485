package agent

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
)

func TestBuildInvocation_Backends(t *testing.T) {
	tests := []struct {
		kind      string
		mode      Mode
		wantCmd   string
		wantArgs  []string
		wantStdin string
	}{
		{"claude", ModePiped, "claude", []string{"--dangerously-skip-permissions", "-p", "hi"}, ""},
		{"claude", ModeInteractive, "claude", []string{"--dangerously-skip-permissions", "hi"}, ""},
		{"kiro", ModePiped, "kiro-cli", []string{"chat", "--no-interactive", "--trust-all-tools", "hi"}, ""},
		{"gemini", ModePiped, "gemini", []string{}, "hi"},
		{"codex", ModePiped, "codex", []string{"--prompt", "hi"}, ""},
		{"codex", ModeInteractive, "codex", []string{"--prompt", "hi"}, ""},
		{"amp", ModePiped, "amp", []string{}, "hi"},
		{"", ModePiped, "claude", []string{"--dangerously-skip-permissions", "-p", "hi"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+string(tt.mode), func(t *testing.T) {
			b, err := NewBackend(BackendConfig{Kind: tt.kind})
			if err != nil {
				t.Fatalf("NewBackend: %v", err)
			}
			inv, err := b.BuildInvocation("hi", tt.mode)
			if err != nil {
				t.Fatalf("BuildInvocation: %v", err)
			}
			if inv.Command != tt.wantCmd {
				t.Errorf("command = %q, want %q", inv.Command, tt.wantCmd)
			}
			if !reflect.DeepEqual(inv.Args, tt.wantArgs) {
				t.Errorf("args = %q, want %q", inv.Args, tt.wantArgs)
			}
			if inv.Stdin != tt.wantStdin {
				t.Errorf("stdin = %q, want %q", inv.Stdin, tt.wantStdin)
			}
		})
	}
}

func TestNewBackend_Custom(t *testing.T) {
	if _, err := NewBackend(BackendConfig{Kind: "custom"}); err == nil {
		t.Error("custom backend without command should fail")
	}
	b, err := NewBackend(BackendConfig{Kind: "custom", Command: "my-agent", Args: []string{"--fast"}, PromptMode: "stdin"})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	inv, err := b.BuildInvocation("prompt", ModePiped)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Command != "my-agent" || inv.Stdin != "prompt" || !reflect.DeepEqual(inv.Args, []string{"--fast"}) {
		t.Errorf("unexpected invocation %+v", inv)
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	if _, err := NewBackend(BackendConfig{Kind: "cursor"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildInvocation_LargePromptUsesTempFile(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBackend(BackendConfig{Kind: "claude", LargePromptThreshold: 100, TempDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	prompt := strings.Repeat("a", 101)
	inv, err := b.BuildInvocation(prompt, ModePiped)
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	if inv.TempFile == "" {
		t.Fatal("expected temp file for large prompt")
	}
	data, err := os.ReadFile(inv.TempFile)
	if err != nil {
		t.Fatalf("read temp file: %v", err)
	}
	if string(data) != prompt {
		t.Error("temp file does not hold the prompt")
	}
	last := inv.Args[len(inv.Args)-1]
	if !strings.Contains(last, inv.TempFile) || strings.Contains(last, prompt) {
		t.Errorf("prompt arg should reference the temp file, got %q", last)
	}

	inv.Cleanup()
	if _, err := os.Stat(inv.TempFile); !os.IsNotExist(err) {
		t.Errorf("temp file not removed: %v", err)
	}

	small, err := b.BuildInvocation(strings.Repeat("a", 100), ModePiped)
	if err != nil {
		t.Fatal(err)
	}
	if small.TempFile != "" {
		t.Error("prompt at the threshold should be passed inline")
	}
}

func TestDetect(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		if name == "gemini" || name == "amp" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	k, err := Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if k != KindGemini {
		t.Errorf("Detect = %q, want gemini", k)
	}

	b, err := NewBackend(BackendConfig{Kind: "auto"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind != KindGemini || b.PromptMode != PromptStdin {
		t.Errorf("auto backend = %+v", b)
	}

	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	_, err = Detect()
	var nb *NoBackendError
	if !errors.As(err, &nb) {
		t.Fatalf("expected NoBackendError, got %v", err)
	}
	if !strings.Contains(err.Error(), "claude") {
		t.Errorf("error should list checked backends: %v", err)
	}
}

func TestFilterEnv(t *testing.T) {
	env := []string{"PATH=/bin", "CLAUDECODE=1", "CLAUDECODE_X=2"}
	got := filterEnv(env, "CLAUDECODE")
	want := []string{"PATH=/bin", "CLAUDECODE_X=2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("filterEnv = %q, want %q", got, want)
	}
}

func TestBuildInvocation_StreamJSON(t *testing.T) {
	b, err := NewBackend(BackendConfig{Kind: "claude", OutputFormat: "stream-json"})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	inv, err := b.BuildInvocation("hi", ModePiped)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"--dangerously-skip-permissions", "--output-format", "stream-json", "--verbose", "-p", "hi"}
	if !reflect.DeepEqual(inv.Args, want) || !inv.StreamJSON {
		t.Errorf("args = %q stream=%t, want %q", inv.Args, inv.StreamJSON, want)
	}

	inv, err = b.BuildInvocation("hi", ModeInteractive)
	if err != nil {
		t.Fatal(err)
	}
	if inv.StreamJSON || strings.Contains(strings.Join(inv.Args, " "), "stream-json") {
		t.Errorf("interactive claude must stay in text mode, got %q", inv.Args)
	}
}

func TestNewBackend_OutputFormat(t *testing.T) {
	if _, err := NewBackend(BackendConfig{Kind: "gemini", OutputFormat: "stream-json"}); err == nil {
		t.Error("stream-json on a non-claude backend should fail")
	}
	if _, err := NewBackend(BackendConfig{Kind: "claude", OutputFormat: "xml"}); err == nil {
		t.Error("unknown output format should fail")
	}
	b, err := NewBackend(BackendConfig{Kind: "codex", OutputFormat: "text"})
	if err != nil || b.OutputFormat != "" {
		t.Errorf("text format on codex: %+v, %v", b, err)
	}
}
