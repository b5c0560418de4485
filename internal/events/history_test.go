package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHistory_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "events.jsonl")
	h, err := NewHistory(path, 0)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}

	recs := []Record{
		{Iteration: 1, ActiveHat: "planner", Topic: "build.task", RoutedTo: "builder", Payload: "do X", Outcome: "matched"},
		{Iteration: 2, ActiveHat: "builder", Topic: "build.done", RoutedTo: "planner", Payload: "done", Outcome: "matched"},
	}
	for _, r := range recs {
		if err := h.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, key := range []string{`"timestamp"`, `"iteration":1`, `"active_hat":"planner"`, `"topic":"build.task"`, `"routed_to":"builder"`, `"payload":"do X"`} {
		if !strings.Contains(lines[0], key) {
			t.Errorf("first line missing %s: %s", key, lines[0])
		}
	}

	got, skipped, err := ReadHistory(path)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if skipped != 0 || len(got) != 2 {
		t.Fatalf("got %d records (%d skipped)", len(got), skipped)
	}
	if got[1].RoutedTo != "planner" || got[1].Timestamp.IsZero() {
		t.Errorf("unexpected record %+v", got[1])
	}
}

func TestHistory_AppendAfterClose(t *testing.T) {
	h, err := NewHistory(filepath.Join(t.TempDir(), "events.jsonl"), 0)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	h.Close()
	if err := h.Append(Record{Topic: "a.b"}); err == nil {
		t.Error("expected error appending to closed history")
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestHistory_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	h, err := NewHistory(path, 200)
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	defer h.Close()

	for i := 0; i < 5; i++ {
		rec := Record{Timestamp: time.Now().UTC(), Iteration: i, Topic: "build.task", Payload: strings.Repeat("x", 80)}
		if err := h.Append(rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	archived, err := filepath.Glob(filepath.Join(dir, ArchiveDir, "events.*.jsonl"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(archived) == 0 {
		t.Error("expected rotated files in archive dir")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("live history file missing: %v", err)
	}
}

func TestReadHistory_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"iteration":1,"topic":"a.b","active_hat":"x","routed_to":"y","payload":""}` + "\n" +
		"not json\n\n" +
		`{"iteration":2,"topic":"c.d","active_hat":"y","routed_to":"x","payload":"p"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	recs, skipped, err := ReadHistory(path)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(recs) != 2 || skipped != 1 {
		t.Errorf("got %d records, %d skipped", len(recs), skipped)
	}
}
