package instructions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
)

func TestBuild_TerminatingHat(t *testing.T) {
	b, err := New(Options{Objective: "Ship the login page.", Promise: "LOOP_COMPLETE"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := &hat.Hat{
		ID:           "planner",
		Name:         "Planner",
		Publishes:    []string{"build.task"},
		Instructions: "Plan carefully.",
		Terminating:  true,
	}
	prompt, err := b.Build(h, events.Event{Topic: "task.start", Payload: "begin"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, want := range []string{
		"You are Planner.",
		"1. Fresh context each iteration.",
		"Ship the login page.",
		"Plan carefully.",
		"Topic: `task.start`",
		"begin",
		"- `build.task`",
		`<event topic="TOPIC">`,
		"print LOOP_COMPLETE",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n%s", want, prompt)
		}
	}
}

func TestBuild_NonTerminatingHatOmitsPromise(t *testing.T) {
	b, err := New(Options{Guardrails: []string{"Only this rule."}, Promise: "LOOP_COMPLETE"})
	if err != nil {
		t.Fatal(err)
	}
	h := &hat.Hat{ID: "builder", Triggers: []string{"build.task"}, Publishes: []string{"build.done", "build.blocked"}}
	prompt, err := b.Build(h, events.Event{Topic: "build.task", Payload: "do X", SourceHat: "planner"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prompt, "LOOP_COMPLETE") {
		t.Error("non-terminating hat must not be told the completion promise")
	}
	if !strings.Contains(prompt, "1. Only this rule.") || strings.Contains(prompt, "Fresh context") {
		t.Error("custom guardrails should replace the defaults")
	}
	if !strings.Contains(prompt, "On `build.task`:") || !strings.Contains(prompt, "Publish `build.blocked`:") {
		t.Errorf("derived instructions missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "(from planner)") {
		t.Error("source hat not shown")
	}
	if !strings.Contains(prompt, "You are builder.") {
		t.Error("hat id should be used when the name is empty")
	}
}

func TestReadObjective(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PROMPT.md")
	if err := os.WriteFile(path, []byte("# Goal\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadObjective(path)
	if err != nil || got != "# Goal\n" {
		t.Errorf("ReadObjective = %q, %v", got, err)
	}
	if _, err := ReadObjective(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing prompt file")
	}
}
