//go:build linux

package agent

import "syscall"

// sysProcAttr puts the child in its own process group (or session, for PTY
// children) and asks the kernel to kill it if the orchestrator dies.
func sysProcAttr(session bool) *syscall.SysProcAttr {
	if session {
		return &syscall.SysProcAttr{Setsid: true, Setctty: true, Pdeathsig: syscall.SIGKILL}
	}
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
