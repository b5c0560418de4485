package hat

import (
	"errors"
	"fmt"
	"strings"
)

// configurationError marks errors that prevent the loop from starting.
type configurationError interface {
	error
	configurationError()
}

// IsConfigurationError reports whether err (or anything it wraps) is a fatal
// configuration error.
func IsConfigurationError(err error) bool {
	var ce configurationError
	return errors.As(err, &ce)
}

// AmbiguousRoutingError is returned when two hats claim an identical trigger pattern.
type AmbiguousRoutingError struct {
	Pattern string
	HatA    string
	HatB    string
}

func (e *AmbiguousRoutingError) Error() string {
	return fmt.Sprintf("ambiguous routing: pattern %q is claimed by both %q and %q", e.Pattern, e.HatA, e.HatB)
}

func (*AmbiguousRoutingError) configurationError() {}

// MissingTerminationError is returned when no hat is marked terminating.
type MissingTerminationError struct{}

func (*MissingTerminationError) Error() string {
	return "missing termination capability: no hat is marked terminating, the loop could never complete"
}

func (*MissingTerminationError) configurationError() {}

// UnreachableHatsError lists hats not reachable from the entry hat.
type UnreachableHatsError struct {
	Entry string
	Hats  []string
}

func (e *UnreachableHatsError) Error() string {
	return fmt.Sprintf("unreachable hats from entry %q: %s", e.Entry, strings.Join(e.Hats, ", "))
}

func (*UnreachableHatsError) configurationError() {}

// DuplicateHatError is returned when two hats share an id.
type DuplicateHatError struct {
	ID string
}

func (e *DuplicateHatError) Error() string {
	return fmt.Sprintf("duplicate hat id %q", e.ID)
}

func (*DuplicateHatError) configurationError() {}

// InvalidPatternError wraps a malformed trigger or publish topic.
type InvalidPatternError struct {
	HatID string
	Field string
	Err   error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("hat %q %s: %v", e.HatID, e.Field, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

func (*InvalidPatternError) configurationError() {}

// UnknownHatError is returned when a configuration reference names no hat.
type UnknownHatError struct {
	Field string
	ID    string
}

func (e *UnknownHatError) Error() string {
	return fmt.Sprintf("%s: unknown hat %q", e.Field, e.ID)
}

func (*UnknownHatError) configurationError() {}

// NoEntryHatError is returned when nothing handles the starting topic.
type NoEntryHatError struct {
	Topic string
}

func (e *NoEntryHatError) Error() string {
	return fmt.Sprintf("no hat is triggered by starting topic %q and no starting hat is configured", e.Topic)
}

func (*NoEntryHatError) configurationError() {}
