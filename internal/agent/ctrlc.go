package agent

import "time"

const (
	keyCtrlC         = 0x03
	keyCtrlBackslash = 0x1c
)

type ctrlCAction int

const (
	ctrlCForward ctrlCAction = iota
	ctrlCTerminate
)

// ctrlCState detects a second Ctrl-C inside the debounce window.
type ctrlCState struct {
	window time.Duration
	first  time.Time
	armed  bool
}

func newCtrlCState(window time.Duration) *ctrlCState {
	return &ctrlCState{window: window}
}

// handle returns ctrlCTerminate for a press inside the window opened by the
// previous press. Any other press is forwarded and (re)opens the window.
func (s *ctrlCState) handle(now time.Time) ctrlCAction {
	if s.armed && now.Sub(s.first) < s.window {
		s.armed = false
		return ctrlCTerminate
	}
	s.first = now
	s.armed = true
	return ctrlCForward
}
