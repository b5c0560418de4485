// Package hat defines hats (named instruction profiles) and the registry that
// binds their trigger patterns to topics.
package hat

import "github.com/msageha/hatloop/internal/topic"

// Hat is an immutable instruction profile selected by event routing.
type Hat struct {
	ID           string
	Name         string
	Triggers     []string
	Publishes    []string
	Instructions string

	// Backend overrides the loop-level backend for this hat. Empty means inherit.
	Backend string
	// MaxActivations caps how many iterations this hat may run. Zero means unlimited.
	MaxActivations int
	Terminating    bool
	// DefaultPublishes is published on the hat's behalf when a successful
	// iteration emits no events.
	DefaultPublishes string
}

// DisplayName returns Name, falling back to ID.
func (h *Hat) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.ID
}

// CanPublish reports whether h is allowed to emit topic. A hat with no
// declared publishes may emit anything.
func (h *Hat) CanPublish(t string) bool {
	if len(h.Publishes) == 0 {
		return true
	}
	for _, p := range h.Publishes {
		if p == t {
			return true
		}
	}
	return false
}

// TriggeredBy returns the most specific trigger of h matching t.
func (h *Hat) TriggeredBy(t string) (string, bool) {
	best := ""
	found := false
	for _, p := range h.Triggers {
		if !topic.Matches(p, t) {
			continue
		}
		if !found || topic.SpecificityOf(p).Compare(topic.SpecificityOf(best)) > 0 {
			best = p
			found = true
		}
	}
	return best, found
}

// declaredPublishes is the set of topics h can emit for reachability purposes.
func (h *Hat) declaredPublishes() []string {
	if h.DefaultPublishes == "" {
		return h.Publishes
	}
	out := make([]string, 0, len(h.Publishes)+1)
	out = append(out, h.Publishes...)
	return append(out, h.DefaultPublishes)
}
