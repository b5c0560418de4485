package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/msageha/hatloop/internal/hat"
)

// HatsConfig is the hats mapping with its declaration order preserved.
// Order matters: it breaks routing ties.
type HatsConfig struct {
	Order []string
	Items map[string]HatConfig
}

// Len returns the number of configured hats.
func (h HatsConfig) Len() int { return len(h.Order) }

// Add appends a hat, replacing any existing definition in place.
func (h *HatsConfig) Add(id string, cfg HatConfig) {
	if h.Items == nil {
		h.Items = make(map[string]HatConfig)
	}
	if _, ok := h.Items[id]; !ok {
		h.Order = append(h.Order, id)
	}
	h.Items[id] = cfg
}

func (h *HatsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: hats must be a mapping of hat id to definition", node.Line)
	}
	h.Order = nil
	h.Items = make(map[string]HatConfig, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		id := key.Value
		if _, dup := h.Items[id]; dup {
			return fmt.Errorf("line %d: duplicate hat %q", key.Line, id)
		}
		var hc HatConfig
		if err := val.Decode(&hc); err != nil {
			return fmt.Errorf("hat %q: %w", id, err)
		}
		h.Order = append(h.Order, id)
		h.Items[id] = hc
	}
	return nil
}

func (h HatsConfig) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, id := range h.Order {
		var val yaml.Node
		if err := val.Encode(h.Items[id]); err != nil {
			return nil, fmt.Errorf("hat %q: %w", id, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: id}, &val)
	}
	return node, nil
}

// DefaultHatID is the single hat synthesized when no hats are configured.
const DefaultHatID = "ralph"

// HatDefinitions converts configured hats, in declaration order, into
// registry definitions. With no hats configured a single terminating
// catch-all hat is returned.
func (c Config) HatDefinitions() []hat.Hat {
	if c.Hats.Len() == 0 {
		return []hat.Hat{{
			ID:          DefaultHatID,
			Name:        "Ralph",
			Triggers:    []string{"*"},
			Terminating: true,
		}}
	}
	out := make([]hat.Hat, 0, c.Hats.Len())
	for _, id := range c.Hats.Order {
		hc := c.Hats.Items[id]
		out = append(out, hat.Hat{
			ID:               id,
			Name:             hc.Name,
			Triggers:         hc.Triggers,
			Publishes:        hc.Publishes,
			Instructions:     hc.Instructions,
			Backend:          hc.Backend,
			MaxActivations:   hc.MaxActivations,
			Terminating:      hc.Terminating,
			DefaultPublishes: hc.DefaultPublishes,
		})
	}
	return out
}

// RegistryOptions returns the registry options implied by the event loop settings.
func (c Config) RegistryOptions() []hat.Option {
	opts := []hat.Option{hat.WithStartingTopic(c.EventLoop.StartingTopic)}
	if c.EventLoop.StartingHat != "" {
		opts = append(opts, hat.WithEntryHat(c.EventLoop.StartingHat))
	}
	if c.EventLoop.RecoveryHat != "" {
		opts = append(opts, hat.WithRecoveryHat(c.EventLoop.RecoveryHat))
	}
	return opts
}
