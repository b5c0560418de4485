package agent

import (
	"testing"
	"time"
)

func TestCtrlCState_DoubleWithinWindow(t *testing.T) {
	s := newCtrlCState(time.Second)
	now := time.Now()
	if s.handle(now) != ctrlCForward {
		t.Fatal("first press should be forwarded")
	}
	if s.handle(now.Add(500*time.Millisecond)) != ctrlCTerminate {
		t.Fatal("second press inside window should terminate")
	}
	if s.handle(now.Add(600*time.Millisecond)) != ctrlCForward {
		t.Error("press after a terminate starts a new window")
	}
}

func TestCtrlCState_WindowExpires(t *testing.T) {
	s := newCtrlCState(time.Second)
	now := time.Now()
	s.handle(now)
	if s.handle(now.Add(1500*time.Millisecond)) != ctrlCForward {
		t.Fatal("press after the window should be forwarded")
	}
	if s.handle(now.Add(2*time.Second)) != ctrlCTerminate {
		t.Error("window should restart from the last forwarded press")
	}
}
