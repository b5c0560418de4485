package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/loop"
	yamlutil "github.com/msageha/hatloop/internal/yaml"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hatloop.yml")
	body = strings.ReplaceAll(body, "STATE_DIR", filepath.Join(dir, ".hatloop"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ee *ExitError
	require.True(t, errors.As(err, &ee), "expected *ExitError, got %T: %v", err, err)
	return ee.Code
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, _, err := execute(t)
	assert.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "hatloop")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, _, err := execute(t, "--unknown-flag", "value")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("", "", "") })
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hatloop 1.2.3 (commit: abc, built: today)\n", out)

	out, _, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3 (commit: abc")
}

func TestInitThenValidate(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created hatloop.yml")

	out, _, err = execute(t, "validate", "--strict", "-c", filepath.Join(dir, "hatloop.yml"))
	require.NoError(t, err)
	assert.Contains(t, out, "entry hat:      planner")
	assert.Contains(t, out, "Planner [terminating]")
	assert.Contains(t, out, "2 hat(s) valid")

	_, errOut, err := execute(t, "init", dir)
	assert.Error(t, err)
	assert.Contains(t, errOut, "already exists")
}

func TestValidate_AmbiguousRouting(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
hats:
  planner:
    triggers: [task.start, build.done]
    terminating: true
  reviewer:
    triggers: [build.done]
`)
	_, errOut, err := execute(t, "validate", "-c", cfg)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, errOut, "Ambiguous routing")
	assert.Contains(t, errOut, "pattern: build.done")
	assert.Contains(t, errOut, "hats: planner, reviewer")
}

func TestValidate_MissingTermination(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
hats:
  planner:
    triggers: [task.start]
`)
	_, errOut, err := execute(t, "validate", "-c", cfg)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, errOut, "No terminating hat")
}

func TestValidate_Unreachable(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
hats:
  planner:
    triggers: [task.start]
    publishes: [build.task]
    terminating: true
  builder:
    triggers: [build.task]
    publishes: [build.done]
  orphan:
    triggers: [never.published]
`)
	_, errOut, err := execute(t, "validate", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, errOut, `hat "orphan" is unreachable`)

	_, errOut, err = execute(t, "validate", "--strict", "-c", cfg)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, errOut, "Unreachable hats")
	assert.Contains(t, errOut, "orphan")
}

func TestValidate_PrintsRoutingTable(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
hats:
  planner:
    triggers: [task.start]
    publishes: [build.task, build.done]
    terminating: true
  builder:
    triggers: [build.*]
  reviewer:
    triggers: [build.done]
  catchall:
    triggers: ["*"]
`)
	out, _, err := execute(t, "validate", "-c", cfg)
	require.NoError(t, err)

	routing := strings.Index(out, "routing (most specific first):")
	require.NotEqual(t, -1, routing)
	table := out[routing:]
	assert.Less(t, strings.Index(table, "build.done"), strings.Index(table, "build.*"), "exact pattern must be listed before the wildcard")
	assert.Contains(t, table, "-> builder  (wildcard)")
	assert.Contains(t, table, "-> catchall  (fallback)")
	assert.Contains(t, table, "note: build.done matches builder, reviewer; routed to reviewer")
	assert.NotContains(t, table, "note: build.task")
}

func TestValidate_MissingExplicitConfig(t *testing.T) {
	_, errOut, err := execute(t, "validate", "-c", filepath.Join(t.TempDir(), "nope.yml"))
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, errOut, "Cannot load configuration")
}

func TestEvents_FiltersByTopic(t *testing.T) {
	dir := t.TempDir()
	hist, err := events.NewHistory(filepath.Join(dir, "events.jsonl"), 0)
	require.NoError(t, err)
	now := time.Now()
	for i, tp := range []string{"task.start", "build.task", "build.done", "build.task", "loop.terminate"} {
		require.NoError(t, hist.Append(events.Record{Timestamp: now, Iteration: i, Topic: tp, RoutedTo: "x"}))
	}
	require.NoError(t, hist.Close())

	out, _, err := execute(t, "events", "--file", hist.Path(), "--topic", "build.*", "--json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var rec events.Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "build.done", rec.Topic)

	out, _, err = execute(t, "events", "--file", hist.Path(), "-t", "build.*", "-n", "1", "--json")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"iteration":3`)

	_, _, err = execute(t, "events", "--file", hist.Path(), "--topic", "bu*ld")
	assert.Error(t, err)
}

func TestEvents_NoHistoryYet(t *testing.T) {
	out, _, err := execute(t, "events", "--file", filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, out, "no events recorded yet")
}

func TestRun_CompletesWithCustomBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
event_loop:
  max_iterations: 3
cli:
  backend: custom
  command: sh
  args: ["-c", "echo working; echo LOOP_COMPLETE"]
core:
  state_dir: STATE_DIR
`)
	out, _, err := execute(t, "run", "-c", cfg, "--prompt", "say done")
	require.NoError(t, err)
	assert.Contains(t, out, "working")
	assert.Contains(t, out, "completed after 1 iteration(s)")

	var sum loop.Summary
	require.NoError(t, yamlutil.Read(filepath.Join(dir, ".hatloop", "summary.yml"), &sum))
	assert.Equal(t, loop.ReasonCompleted, sum.Reason)
	assert.Equal(t, "ralph", sum.FinalHat)

	recs, _, err := events.ReadHistory(filepath.Join(dir, ".hatloop", "events.jsonl"))
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, events.TopicTerminate, recs[len(recs)-1].Topic)

	_, err = os.Stat(filepath.Join(dir, ".hatloop", "loop.lock"))
	assert.True(t, os.IsNotExist(err), "lock must be released")
	_, err = os.Stat(filepath.Join(dir, ".hatloop", "logs", "hatloop.log"))
	assert.NoError(t, err)
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		extra  string
		want   int
	}{
		{"consecutive failures", "exit 3", "  max_consecutive_failures: 2\n", 1},
		{"max iterations", "echo still going", "  max_iterations: 2\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := writeConfig(t, dir, "event_loop:\n"+tt.extra+`cli:
  backend: custom
  command: sh
  args: ["-c", "`+tt.script+`"]
core:
  state_dir: STATE_DIR
`)
			_, _, err := execute(t, "run", "-c", cfg, "-q", "--prompt", "x")
			assert.Equal(t, tt.want, exitCode(t, err))
		})
	}
}

func TestRun_StreamJSONNeedsClaude(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `cli:
  backend: custom
  command: sh
  args: ["-c", "echo LOOP_COMPLETE"]
core:
  state_dir: STATE_DIR
`)
	_, stderr, err := execute(t, "run", "-c", cfg, "-q", "--prompt", "x", "--output-format", "stream-json")
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, stderr, "cli.output_format")
}

func TestRun_MissingPromptFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `
event_loop:
  prompt_file: `+filepath.Join(dir, "missing.md")+`
cli:
  backend: custom
  command: "true"
core:
  state_dir: STATE_DIR
`)
	_, errOut, err := execute(t, "run", "-c", cfg)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, errOut, "No objective")
}

func TestFilterRecords(t *testing.T) {
	recs := []events.Record{{Topic: "a.b"}, {Topic: "a.c"}, {Topic: "b.c"}}
	assert.Len(t, filterRecords(recs, "*", "", 0), 3)
	assert.Equal(t, []events.Record{{Topic: "a.c"}}, filterRecords(recs, "a.*", "", 1))
	assert.Len(t, recs, 3)
}

func TestEvents_FiltersByRun(t *testing.T) {
	const first, second = "run_1700000000_aaaaaaaa", "run_1700000100_bbbbbbbb"
	dir := t.TempDir()
	hist, err := events.NewHistory(filepath.Join(dir, "events.jsonl"), 0)
	require.NoError(t, err)
	now := time.Now()
	for _, r := range []events.Record{
		{RunID: first, Topic: "task.start"},
		{RunID: first, Topic: "loop.terminate"},
		{RunID: second, Topic: "task.start"},
		{RunID: second, Topic: "build.task"},
		{RunID: second, Topic: "loop.terminate"},
	} {
		r.Timestamp = now
		require.NoError(t, hist.Append(r))
	}
	require.NoError(t, hist.Close())

	out, _, err := execute(t, "events", "--file", hist.Path(), "--run", first, "--json")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.NotContains(t, out, second)

	out, _, err = execute(t, "events", "--file", hist.Path(), "--run", "latest", "--json")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.NotContains(t, out, first)

	_, errOut, err := execute(t, "events", "--file", hist.Path(), "--run", "yesterday")
	assert.Error(t, err)
	assert.Contains(t, errOut, "Invalid run id")
}
