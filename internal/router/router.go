// Package router resolves a published event to the hat that handles it.
package router

import (
	"fmt"

	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/topic"
)

// Outcome records how a routing decision was reached.
type Outcome string

const (
	OutcomeTargeted Outcome = "targeted"
	OutcomeMatched  Outcome = "matched"
	OutcomeFallback Outcome = "fallback"
	OutcomeRecovery Outcome = "recovery"
	OutcomeOrphaned Outcome = "orphaned"
	OutcomeRejected Outcome = "rejected"
)

// Routed reports whether the outcome selected a hat.
func (o Outcome) Routed() bool {
	switch o {
	case OutcomeTargeted, OutcomeMatched, OutcomeFallback, OutcomeRecovery:
		return true
	default:
		return false
	}
}

// Decision is the result of routing one event.
type Decision struct {
	HatID   string
	Outcome Outcome
	// Pattern is the trigger that matched, if any.
	Pattern string
	// Err is set for unknown explicit targets and orphaned events.
	Err *RoutingError
}

// RoutingError describes a non-fatal routing failure.
type RoutingError struct {
	Topic  string
	Target string
	Reason string
}

func (e *RoutingError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("routing %q: %s %q", e.Topic, e.Reason, e.Target)
	}
	return fmt.Sprintf("routing %q: %s", e.Topic, e.Reason)
}

// Route is a pure function of the registry and a single event.
//
// An explicit target wins if it names a registered hat; an unknown target is
// a routing error and the event falls through to orphan handling. Otherwise
// the most specific matching trigger wins, then the "*" fallback hat, then
// the recovery hat. An event nothing claims is orphaned.
func Route(reg *hat.Registry, eventTopic, target string) Decision {
	var rerr *RoutingError
	if target != "" {
		if reg.Has(target) {
			return Decision{HatID: target, Outcome: OutcomeTargeted}
		}
		rerr = &RoutingError{Topic: eventTopic, Target: target, Reason: "unknown target hat"}
		return orphan(reg, rerr)
	}

	if b, ok := reg.Match(eventTopic); ok {
		return Decision{HatID: b.HatID, Outcome: OutcomeMatched, Pattern: b.Pattern}
	}
	if fb := reg.Fallback(); fb != "" {
		return Decision{HatID: fb, Outcome: OutcomeFallback, Pattern: topic.Wildcard}
	}
	return orphan(reg, &RoutingError{Topic: eventTopic, Reason: "no hat subscribes to topic"})
}

func orphan(reg *hat.Registry, rerr *RoutingError) Decision {
	if rec := reg.Recovery(); rec != "" {
		return Decision{HatID: rec, Outcome: OutcomeRecovery, Err: rerr}
	}
	return Decision{Outcome: OutcomeOrphaned, Err: rerr}
}

// Replay routes a sequence of topics in isolation and returns the selected
// hat after each one. Orphaned events keep the previous hat.
func Replay(reg *hat.Registry, start string, topics []string) []string {
	out := make([]string, 0, len(topics))
	cur := start
	for _, t := range topics {
		if d := Route(reg, t, ""); d.Outcome.Routed() {
			cur = d.HatID
		}
		out = append(out, cur)
	}
	return out
}
