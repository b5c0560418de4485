package hat

import (
	"fmt"
	"sort"

	"github.com/msageha/hatloop/internal/topic"
)

// Binding ties one trigger pattern to the hat that claims it.
type Binding struct {
	Pattern     string
	HatID       string
	Specificity topic.Specificity
	order       int
}

// Registry holds validated hats in declaration order and indexes their triggers.
// It is read-only once constructed.
type Registry struct {
	hats     []*Hat
	byID     map[string]*Hat
	bindings []Binding

	startingTopic string
	entry         string
	fallback      string
	recovery      string
}

// Option configures a Registry.
type Option func(*Registry)

// WithStartingTopic sets the topic published to start the loop. The entry hat
// is the hat that topic routes to unless WithEntryHat overrides it.
func WithStartingTopic(t string) Option {
	return func(r *Registry) { r.startingTopic = t }
}

// WithEntryHat designates the entry hat explicitly.
func WithEntryHat(id string) Option {
	return func(r *Registry) { r.entry = id }
}

// WithRecoveryHat designates the hat that receives orphaned events.
func WithRecoveryHat(id string) Option {
	return func(r *Registry) { r.recovery = id }
}

// NewRegistry builds a registry from hats. Structural problems (duplicate ids,
// malformed patterns, dangling references) are reported here; routing
// semantics are checked by Validate.
func NewRegistry(hats []Hat, opts ...Option) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Hat, len(hats))}
	for _, opt := range opts {
		opt(r)
	}

	order := 0
	for i := range hats {
		h := hats[i]
		if h.ID == "" {
			return nil, &InvalidPatternError{HatID: fmt.Sprintf("#%d", i), Field: "id", Err: fmt.Errorf("empty hat id")}
		}
		if _, dup := r.byID[h.ID]; dup {
			return nil, &DuplicateHatError{ID: h.ID}
		}
		for _, p := range h.Triggers {
			if err := topic.ValidatePattern(p); err != nil {
				return nil, &InvalidPatternError{HatID: h.ID, Field: "triggers", Err: err}
			}
		}
		for _, t := range h.Publishes {
			if err := topic.ValidateTopic(t); err != nil {
				return nil, &InvalidPatternError{HatID: h.ID, Field: "publishes", Err: err}
			}
		}
		if h.DefaultPublishes != "" {
			if err := topic.ValidateTopic(h.DefaultPublishes); err != nil {
				return nil, &InvalidPatternError{HatID: h.ID, Field: "default_publishes", Err: err}
			}
		}
		stored := &h
		r.hats = append(r.hats, stored)
		r.byID[h.ID] = stored

		seen := make(map[string]bool, len(h.Triggers))
		for _, p := range h.Triggers {
			if seen[p] {
				continue
			}
			seen[p] = true
			r.bindings = append(r.bindings, Binding{
				Pattern:     p,
				HatID:       h.ID,
				Specificity: topic.SpecificityOf(p),
				order:       order,
			})
			order++
		}
	}

	// Most specific first; declaration order breaks ties.
	sort.SliceStable(r.bindings, func(i, j int) bool {
		c := r.bindings[i].Specificity.Compare(r.bindings[j].Specificity)
		if c != 0 {
			return c > 0
		}
		return r.bindings[i].order < r.bindings[j].order
	})

	for _, b := range r.bindings {
		if b.Pattern == topic.Wildcard {
			r.fallback = b.HatID
			break
		}
	}

	if r.entry != "" {
		if _, ok := r.byID[r.entry]; !ok {
			return nil, &UnknownHatError{Field: "starting_hat", ID: r.entry}
		}
	} else if r.startingTopic != "" {
		if b, ok := r.Match(r.startingTopic); ok {
			r.entry = b.HatID
		} else {
			r.entry = r.fallback
		}
	}
	if r.recovery != "" {
		if _, ok := r.byID[r.recovery]; !ok {
			return nil, &UnknownHatError{Field: "recovery_hat", ID: r.recovery}
		}
	}
	return r, nil
}

// Get returns the hat with id.
func (r *Registry) Get(id string) (*Hat, bool) {
	h, ok := r.byID[id]
	return h, ok
}

// Has reports whether id names a registered hat.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns the hats in declaration order.
func (r *Registry) All() []*Hat {
	out := make([]*Hat, len(r.hats))
	copy(out, r.hats)
	return out
}

// Len returns the number of registered hats.
func (r *Registry) Len() int { return len(r.hats) }

// Entry returns the entry hat id, or "" if none resolved.
func (r *Registry) Entry() string { return r.entry }

// StartingTopic returns the configured starting topic.
func (r *Registry) StartingTopic() string { return r.startingTopic }

// Fallback returns the id of the hat claiming "*", or "".
func (r *Registry) Fallback() string { return r.fallback }

// Recovery returns the recovery hat id, or "".
func (r *Registry) Recovery() string { return r.recovery }

// Bindings returns the trigger index, most specific first.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Match returns the most specific non-fallback binding whose pattern matches t.
func (r *Registry) Match(t string) (Binding, bool) {
	for _, b := range r.bindings {
		if b.Pattern == topic.Wildcard {
			continue
		}
		if topic.Matches(b.Pattern, t) {
			return b, true
		}
	}
	return Binding{}, false
}

// Subscribers returns the ids of every hat with a trigger matching t, in
// declaration order. The fallback hat is included.
func (r *Registry) Subscribers(t string) []string {
	var out []string
	for _, h := range r.hats {
		if _, ok := h.TriggeredBy(t); ok {
			out = append(out, h.ID)
		}
	}
	return out
}
