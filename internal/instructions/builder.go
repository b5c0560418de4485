// Package instructions renders the prompt handed to the agent each iteration.
package instructions

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/templates"
)

// Options configures a Builder.
type Options struct {
	// Guardrails replace the embedded defaults when non-empty.
	Guardrails []string
	Objective  string
	Promise    string
}

// Builder renders iteration prompts from the embedded template.
type Builder struct {
	tmpl       *template.Template
	guardrails []string
	objective  string
	promise    string
}

type promptData struct {
	HatName      string
	Guardrails   []string
	Objective    string
	Instructions string
	Event        events.Event
	Publishes    []string
	Terminating  bool
	Promise      string
}

// New parses the embedded prompt template.
func New(opts Options) (*Builder, error) {
	src, err := fs.ReadFile(templates.FS, "iteration.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	tmpl, err := template.New("iteration").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	guardrails := opts.Guardrails
	if len(guardrails) == 0 {
		guardrails, err = DefaultGuardrails()
		if err != nil {
			return nil, err
		}
	}
	return &Builder{
		tmpl:       tmpl,
		guardrails: guardrails,
		objective:  strings.TrimSpace(opts.Objective),
		promise:    opts.Promise,
	}, nil
}

// DefaultGuardrails returns the embedded guardrail lines.
func DefaultGuardrails() ([]string, error) {
	data, err := fs.ReadFile(templates.FS, "guardrails.md")
	if err != nil {
		return nil, fmt.Errorf("read guardrails: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// ReadObjective loads the prompt file.
func ReadObjective(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file %s: %w", path, err)
	}
	return string(data), nil
}

// Build renders the prompt for h handling ev.
func (b *Builder) Build(h *hat.Hat, ev events.Event) (string, error) {
	data := promptData{
		HatName:      h.DisplayName(),
		Guardrails:   b.guardrails,
		Objective:    b.objective,
		Instructions: strings.TrimSpace(h.Instructions),
		Event:        ev,
		Publishes:    h.Publishes,
		Terminating:  h.Terminating,
		Promise:      b.promise,
	}
	if data.Instructions == "" {
		data.Instructions = derive(h)
	}
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", h.ID, err)
	}
	return buf.String(), nil
}

var onTrigger = map[string]string{
	"task.start":               "Study the objective and write a plan into the scratchpad.",
	"task.resume":              "Read the scratchpad and continue from the first unfinished task.",
	"build.task":               "Implement the task in the event. Run the checks and commit when they pass.",
	"build.done":               "Review what was completed and decide the next step.",
	"build.blocked":            "Work out why the task is stuck and either simplify it or gather what is missing.",
	"review.request":           "Review the latest changes for correctness and test coverage.",
	"review.approved":          "Mark the task done in the scratchpad and move to the next one.",
	"review.changes_requested": "Turn the feedback into fix tasks and dispatch them.",
}

var onPublish = map[string]string{
	"build.task":               "Dispatch one pending task at a time.",
	"build.done":               "When the implementation is finished and the checks pass.",
	"build.blocked":            "When stuck. Include task_id, what you tried, and why it failed.",
	"review.request":           "After a build completes and before it is marked done.",
	"review.approved":          "When the changes meet the requirements.",
	"review.changes_requested": "When issues are found. Include specific feedback.",
}

// derive builds instructions for a hat that declares none, from the topics
// it handles and emits.
func derive(h *hat.Hat) string {
	var lines []string
	for _, t := range h.Triggers {
		if s, ok := onTrigger[t]; ok {
			lines = append(lines, fmt.Sprintf("On `%s`: %s", t, s))
		}
	}
	for _, t := range h.Publishes {
		if s, ok := onPublish[t]; ok {
			lines = append(lines, fmt.Sprintf("Publish `%s`: %s", t, s))
		}
	}
	if len(lines) == 0 {
		return "Follow the triggering event and the objective."
	}
	return strings.Join(lines, "\n")
}
