package hat

import "github.com/msageha/hatloop/internal/topic"

// ValidateOptions controls Validate.
type ValidateOptions struct {
	// Strict turns unreachable hats into a fatal error.
	Strict bool
}

// Report carries non-fatal validation findings.
type Report struct {
	Unreachable []string
}

// HasWarnings reports whether the report carries anything worth logging.
func (r Report) HasWarnings() bool { return len(r.Unreachable) > 0 }

// Validate checks, in order: trigger uniqueness, termination capability, the
// entry hat, and reachability from the entry hat. The first failing check
// returns its error.
func (r *Registry) Validate(opts ValidateOptions) (Report, error) {
	var report Report

	if err := r.checkUniqueness(); err != nil {
		return report, err
	}
	if !r.hasTerminating() {
		return report, &MissingTerminationError{}
	}
	if r.entry == "" {
		return report, &NoEntryHatError{Topic: r.startingTopic}
	}

	report.Unreachable = r.Unreachable()
	if len(report.Unreachable) > 0 && opts.Strict {
		return report, &UnreachableHatsError{Entry: r.entry, Hats: report.Unreachable}
	}
	return report, nil
}

func (r *Registry) checkUniqueness() error {
	owner := make(map[string]string)
	for _, h := range r.hats {
		for _, p := range h.Triggers {
			prev, ok := owner[p]
			if !ok {
				owner[p] = h.ID
				continue
			}
			if prev != h.ID {
				return &AmbiguousRoutingError{Pattern: p, HatA: prev, HatB: h.ID}
			}
		}
	}
	return nil
}

func (r *Registry) hasTerminating() bool {
	for _, h := range r.hats {
		if h.Terminating {
			return true
		}
	}
	return false
}

// Successors returns the hats that hat id can hand control to: every hat with
// a trigger matching one of id's declared publishes.
func (r *Registry) Successors(id string) []string {
	h, ok := r.byID[id]
	if !ok {
		return nil
	}
	var out []string
	for _, cand := range r.hats {
		if publishesInto(h, cand) {
			out = append(out, cand.ID)
		}
	}
	return out
}

func publishesInto(from, to *Hat) bool {
	for _, t := range from.declaredPublishes() {
		for _, p := range to.Triggers {
			if topic.Matches(p, t) {
				return true
			}
		}
	}
	return false
}

// Unreachable returns, in declaration order, the hats that cannot be reached
// from the entry hat over the publish graph. The recovery hat and its
// successors count as reachable since orphaned events lead there.
func (r *Registry) Unreachable() []string {
	if r.entry == "" {
		return nil
	}
	visited := make(map[string]bool, len(r.hats))
	r.walk(r.entry, visited)
	if r.recovery != "" {
		r.walk(r.recovery, visited)
	}

	var out []string
	for _, h := range r.hats {
		if !visited[h.ID] {
			out = append(out, h.ID)
		}
	}
	return out
}

// walk marks every hat reachable from start (breadth first).
func (r *Registry) walk(start string, visited map[string]bool) {
	if visited[start] {
		return
	}
	visited[start] = true
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range r.Successors(cur) {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
}
