package agent

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// process supervises one started child and its process group.
type process struct {
	cmd     *exec.Cmd
	pgid    int
	done    chan struct{}
	waitErr error
}

// watch begins waiting on an already started command.
func watch(cmd *exec.Cmd) *process {
	p := &process{cmd: cmd, pgid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p
}

// signal delivers sig to every member of the child's process group.
func (p *process) signal(sig syscall.Signal) error {
	err := unix.Kill(-p.pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// terminate sends SIGTERM to the group and escalates to SIGKILL if the
// leader has not exited within grace.
func (p *process) terminate(grace time.Duration) {
	if p.exited() {
		return
	}
	_ = p.signal(syscall.SIGTERM)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		p.kill()
	}
}

// kill sends SIGKILL to the group and waits for the leader to be reaped.
func (p *process) kill() {
	_ = p.signal(syscall.SIGKILL)
	<-p.done
}

// reap kills any group member that outlived the leader.
func (p *process) reap() {
	_ = p.signal(syscall.SIGKILL)
}

// exitCode returns the exit status, or 128+signal for a signalled child.
func (p *process) exitCode() int {
	st := p.cmd.ProcessState
	if st == nil {
		return -1
	}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return st.ExitCode()
}
