package router

import (
	"testing"

	"github.com/msageha/hatloop/internal/hat"
)

func newRegistry(t *testing.T, hats []hat.Hat, opts ...hat.Option) *hat.Registry {
	t.Helper()
	reg, err := hat.NewRegistry(hats, opts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func scenarioHats() []hat.Hat {
	return []hat.Hat{
		{ID: "planner", Triggers: []string{"task.start", "build.done", "build.blocked"}, Terminating: true},
		{ID: "builder", Triggers: []string{"build.task"}},
		{ID: "reviewer", Triggers: []string{"review.*"}},
	}
}

func TestRoute(t *testing.T) {
	reg := newRegistry(t, scenarioHats())

	tests := []struct {
		name        string
		topic       string
		target      string
		wantHat     string
		wantOutcome Outcome
		wantErr     bool
	}{
		{"exact", "build.task", "", "builder", OutcomeMatched, false},
		{"prefix", "review.requested", "", "reviewer", OutcomeMatched, false},
		{"explicit target", "build.task", "reviewer", "reviewer", OutcomeTargeted, false},
		{"unknown target", "build.task", "ghost", "", OutcomeOrphaned, true},
		{"orphaned", "deploy.done", "", "", OutcomeOrphaned, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Route(reg, tt.topic, tt.target)
			if d.HatID != tt.wantHat || d.Outcome != tt.wantOutcome {
				t.Errorf("Route(%q, %q) = (%q, %s), want (%q, %s)", tt.topic, tt.target, d.HatID, d.Outcome, tt.wantHat, tt.wantOutcome)
			}
			if (d.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", d.Err, tt.wantErr)
			}
		})
	}
}

func TestRoute_FallbackThenRecovery(t *testing.T) {
	hats := append(scenarioHats(), hat.Hat{ID: "catchall", Triggers: []string{"*"}})
	reg := newRegistry(t, hats)
	d := Route(reg, "deploy.done", "")
	if d.HatID != "catchall" || d.Outcome != OutcomeFallback {
		t.Errorf("got %+v, want fallback to catchall", d)
	}
	// Specific triggers still beat the fallback.
	if d := Route(reg, "build.task", ""); d.HatID != "builder" {
		t.Errorf("got %q, want builder", d.HatID)
	}

	reg = newRegistry(t, scenarioHats(), hat.WithRecoveryHat("planner"))
	d = Route(reg, "deploy.done", "")
	if d.HatID != "planner" || d.Outcome != OutcomeRecovery {
		t.Errorf("got %+v, want recovery to planner", d)
	}
	if d.Err == nil {
		t.Error("recovery decision should still carry the routing error")
	}
}

func TestReplay_Idempotent(t *testing.T) {
	reg := newRegistry(t, scenarioHats())
	topics := []string{"task.start", "build.task", "build.done", "deploy.x", "review.ok", "build.blocked", "build.task"}
	first := Replay(reg, "planner", topics)
	want := []string{"planner", "builder", "planner", "planner", "reviewer", "planner", "builder"}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("Replay()[%d] = %q, want %q (full %v)", i, first[i], want[i], first)
		}
	}
	for n := 0; n < 10; n++ {
		again := Replay(reg, "planner", topics)
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("run %d diverged at %d: %q vs %q", n, i, again[i], first[i])
			}
		}
	}
}

func TestOutcome_Routed(t *testing.T) {
	for _, o := range []Outcome{OutcomeTargeted, OutcomeMatched, OutcomeFallback, OutcomeRecovery} {
		if !o.Routed() {
			t.Errorf("%s should be routed", o)
		}
	}
	for _, o := range []Outcome{OutcomeOrphaned, OutcomeRejected} {
		if o.Routed() {
			t.Errorf("%s should not be routed", o)
		}
	}
}
