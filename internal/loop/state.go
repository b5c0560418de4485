package loop

import (
	"time"

	"github.com/msageha/hatloop/internal/events"
)

// Phase is the lifecycle position of a run.
type Phase string

const (
	PhaseRunning     Phase = "running"
	PhaseTerminating Phase = "terminating"
	PhaseExited      Phase = "exited"
)

// Limits are the configured safeguards.
type Limits struct {
	MaxIterations          int
	MaxRuntime             time.Duration
	MaxConsecutiveFailures int
	// ThrashThreshold is the number of blocked events for one task id that
	// ends the loop.
	ThrashThreshold int
}

// State is the loop's mutable state. It is owned by one Engine run and is
// frozen once Termination is set.
type State struct {
	Iteration           int
	StartedAt           time.Time
	ActiveHat           string
	ConsecutiveFailures int
	BlockedCounts       map[string]int
	LastBlockedTask     string
	Activations         map[string]int
	Termination         TerminationReason
	Phase               Phase
}

// NewState starts a run with hat active.
func NewState(startedAt time.Time, activeHat string) *State {
	return &State{
		StartedAt:     startedAt,
		ActiveHat:     activeHat,
		BlockedCounts: make(map[string]int),
		Activations:   make(map[string]int),
		Phase:         PhaseRunning,
	}
}

// Terminated reports whether a termination reason has been set.
func (s *State) Terminated() bool { return s.Termination != "" }

// Terminate sets the reason if none is set yet. Interrupted replaces any
// earlier reason.
func (s *State) Terminate(r TerminationReason) bool {
	if s.Terminated() && r != ReasonInterrupted {
		return false
	}
	s.Termination = r
	if s.Phase == PhaseRunning {
		s.Phase = PhaseTerminating
	}
	return true
}

// RecordFailure increments the consecutive failure counter.
func (s *State) RecordFailure() {
	if s.Terminated() {
		return
	}
	s.ConsecutiveFailures++
}

// RecordProgress resets the consecutive failure counter.
func (s *State) RecordProgress() {
	if s.Terminated() {
		return
	}
	s.ConsecutiveFailures = 0
}

// ObserveEvent updates the blocked counters for one published event.
// Counting is keyed by task id, independent of the emitting hat.
func (s *State) ObserveEvent(ev events.Event) {
	if s.Terminated() {
		return
	}
	if ev.IsBlocked() {
		id := events.TaskID(ev.Payload)
		s.BlockedCounts[id]++
		s.LastBlockedTask = id
		return
	}
	if id, ok := events.ExplicitTaskID(ev.Payload); ok {
		delete(s.BlockedCounts, id)
		if s.LastBlockedTask == id {
			s.LastBlockedTask = ""
		}
	}
}

// Check evaluates the safeguards after an iteration, in priority order, and
// sets the first that trips.
func (s *State) Check(l Limits, completed bool, now time.Time) (TerminationReason, bool) {
	if s.Terminated() {
		return s.Termination, true
	}
	var r TerminationReason
	switch {
	case completed:
		r = ReasonCompleted
	case l.MaxIterations > 0 && s.Iteration >= l.MaxIterations:
		r = ReasonMaxIterations
	case l.MaxRuntime > 0 && now.Sub(s.StartedAt) >= l.MaxRuntime:
		r = ReasonMaxRuntime
	case l.MaxConsecutiveFailures > 0 && s.ConsecutiveFailures >= l.MaxConsecutiveFailures:
		r = ReasonConsecutiveFailures
	case l.ThrashThreshold > 0 && s.thrashing(l.ThrashThreshold):
		r = ReasonLoopThrashing
	default:
		return "", false
	}
	s.Terminate(r)
	return r, true
}

func (s *State) thrashing(threshold int) bool {
	for _, n := range s.BlockedCounts {
		if n >= threshold {
			return true
		}
	}
	return false
}
