//go:build !linux

package agent

import "syscall"

// sysProcAttr puts the child in its own process group (or session, for PTY
// children). Without Pdeathsig the group is reaped by the orchestrator's
// shutdown path.
func sysProcAttr(session bool) *syscall.SysProcAttr {
	if session {
		return &syscall.SysProcAttr{Setsid: true, Setctty: true}
	}
	return &syscall.SysProcAttr{Setpgid: true}
}
