// Package topic implements dotted topic matching with glob patterns.
//
// A pattern is a dotted string whose segments are literals or a lone "*".
// The bare pattern "*" matches every topic. A trailing ".*" matches one or
// more further segments after the prefix. Any other "*" segment matches
// exactly one segment.
package topic

import (
	"fmt"
	"strings"
)

// Wildcard is the bare catch-all pattern.
const Wildcard = "*"

// Kind classifies a pattern by specificity. Higher values are more specific.
type Kind int

const (
	KindAny     Kind = iota // "*"
	KindPrefix              // "build.*"
	KindSegment             // "build.*.done"
	KindExact               // "build.done"
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindPrefix:
		return "prefix"
	case KindSegment:
		return "segment"
	case KindExact:
		return "exact"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classify returns the specificity kind of pattern.
func Classify(pattern string) Kind {
	if pattern == Wildcard {
		return KindAny
	}
	if strings.HasSuffix(pattern, ".*") {
		return KindPrefix
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == Wildcard {
			return KindSegment
		}
	}
	return KindExact
}

// IsWildcard reports whether pattern contains any wildcard segment.
func IsWildcard(pattern string) bool {
	return Classify(pattern) != KindExact
}

// Matches reports whether topic satisfies pattern.
func Matches(pattern, topic string) bool {
	if pattern == Wildcard {
		return true
	}
	if topic == "" {
		return false
	}
	psegs := strings.Split(pattern, ".")
	tsegs := strings.Split(topic, ".")

	if psegs[len(psegs)-1] == Wildcard && len(psegs) > 1 {
		prefix := psegs[:len(psegs)-1]
		if len(tsegs) <= len(prefix) {
			return false
		}
		for _, rest := range tsegs[len(prefix):] {
			if rest == "" {
				return false
			}
		}
		return segmentsMatch(prefix, tsegs[:len(prefix)])
	}
	if len(psegs) != len(tsegs) {
		return false
	}
	return segmentsMatch(psegs, tsegs)
}

func segmentsMatch(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == Wildcard {
			if topic[i] == "" {
				return false
			}
			continue
		}
		if p != topic[i] {
			return false
		}
	}
	return true
}

// Specificity orders patterns for routing. Two specificities compare by
// kind first and literal segment count second.
type Specificity struct {
	Kind     Kind
	Literals int
}

// SpecificityOf returns the routing specificity of pattern.
func SpecificityOf(pattern string) Specificity {
	s := Specificity{Kind: Classify(pattern)}
	if s.Kind == KindAny {
		return s
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg != Wildcard {
			s.Literals++
		}
	}
	return s
}

// Compare returns -1, 0 or 1 as s is less, equally or more specific than o.
func (s Specificity) Compare(o Specificity) int {
	switch {
	case s.Kind != o.Kind:
		if s.Kind > o.Kind {
			return 1
		}
		return -1
	case s.Literals > o.Literals:
		return 1
	case s.Literals < o.Literals:
		return -1
	default:
		return 0
	}
}

// ValidatePattern rejects empty patterns, empty segments and partial-segment wildcards.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if pattern == Wildcard {
		return nil
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "" {
			return fmt.Errorf("pattern %q has an empty segment", pattern)
		}
		if seg != Wildcard && strings.Contains(seg, Wildcard) {
			return fmt.Errorf("pattern %q: wildcard must span a whole segment", pattern)
		}
	}
	return nil
}

// ValidateTopic rejects empty topics and topics containing wildcards or empty segments.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	for _, seg := range strings.Split(topic, ".") {
		if seg == "" {
			return fmt.Errorf("topic %q has an empty segment", topic)
		}
		if strings.Contains(seg, Wildcard) {
			return fmt.Errorf("topic %q must not contain wildcards", topic)
		}
	}
	return nil
}

// LastSegment returns the final dotted segment of topic.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
