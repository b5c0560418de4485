package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
)

func (e *Executor) runInteractive(ctx context.Context, req ExecRequest, inv Invocation) ExecResult {
	termIO := e.config.Terminal
	cmd := e.command(req, inv, true)

	ptmx, err := e.startPTY(cmd, inv)
	if err != nil {
		e.logger.Errorf("spawn_error hat=%s command=%s mode=interactive error=%v", req.HatID, inv.Command, err)
		return ExecResult{ExitCode: -1, Termination: TerminationNatural, Error: fmt.Errorf("spawn %s in pty: %w", inv.Command, err)}
	}
	defer ptmx.Close()
	proc := watch(cmd)
	e.logger.Debugf("spawned hat=%s pid=%d mode=interactive", req.HatID, cmd.Process.Pid)

	restore, err := termIO.EnterRaw()
	if err != nil {
		e.logger.Warnf("raw_mode hat=%s error=%v", req.HatID, err)
	}
	// Raw mode is undone on every return path.
	defer restore()

	if inv.Stdin != "" {
		if _, err := io.WriteString(ptmx, inv.Stdin+"\n"); err != nil {
			e.logger.Warnf("stdin_write hat=%s error=%v", req.HatID, err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)

	outCh := make(chan []byte, 64)
	go func() {
		defer close(outCh)
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case outCh <- chunk:
				case <-stop:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	var inCh chan []byte
	if input, err := termIO.OpenInput(); err != nil {
		e.logger.Warnf("input_open hat=%s error=%v", req.HatID, err)
	} else {
		inCh = make(chan []byte, 16)
		defer func() {
			input.Cancel()
			input.Close()
		}()
		go func() {
			buf := make([]byte, 1024)
			for {
				n, err := input.Read(buf)
				if n > 0 {
					chunk := make([]byte, n)
					copy(chunk, buf[:n])
					select {
					case inCh <- chunk:
					case <-stop:
						return
					}
				}
				if err != nil {
					return
				}
			}
		}()
	}

	var idle *time.Timer
	var idleC <-chan time.Time
	if req.IdleTimeout > 0 {
		idle = time.NewTimer(req.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}
	touch := func() {
		if idle == nil {
			return
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(req.IdleTimeout)
	}

	var out strings.Builder
	screen := termIO.Output()
	emit := func(chunk []byte) {
		out.Write(chunk)
		if screen != nil {
			_, _ = screen.Write(chunk)
		}
	}

	ctrlC := newCtrlCState(e.config.InterruptWindow)
	termination := TerminationNatural

loop:
	for {
		select {
		case chunk, ok := <-outCh:
			if !ok {
				outCh = nil
				continue
			}
			emit(chunk)
			touch()
		case data := <-inCh:
			touch()
			if len(data) == 1 && data[0] == keyCtrlBackslash {
				termination = TerminationForceKill
				e.logger.Warnf("user_force_kill hat=%s", req.HatID)
				proc.kill()
				break loop
			}
			if len(data) == 1 && data[0] == keyCtrlC {
				if ctrlC.handle(time.Now()) == ctrlCTerminate {
					termination = TerminationUserInterrupt
					e.logger.Infof("user_interrupt hat=%s", req.HatID)
					proc.terminate(e.config.Grace)
					break loop
				}
			}
			if _, err := ptmx.Write(data); err != nil {
				e.logger.Debugf("pty_write hat=%s error=%v", req.HatID, err)
			}
		case <-idleC:
			termination = TerminationIdleTimeout
			e.logger.Warnf("idle_timeout hat=%s idle=%s", req.HatID, req.IdleTimeout)
			proc.terminate(e.config.Grace)
			break loop
		case <-ctx.Done():
			termination = TerminationInterrupted
			e.logger.Infof("exec_interrupted hat=%s mode=interactive", req.HatID)
			proc.terminate(e.config.Grace)
			break loop
		case <-req.Force:
			termination = TerminationForceKill
			proc.kill()
			break loop
		case <-proc.done:
			break loop
		}
	}
	proc.reap()

	// Drain what the child wrote before exiting. Linux reports EIO on the
	// master once every slave fd is closed, which ends the reader.
	if outCh != nil {
		drain := time.NewTimer(e.config.DrainTimeout)
		defer drain.Stop()
	drainLoop:
		for {
			select {
			case chunk, ok := <-outCh:
				if !ok {
					break drainLoop
				}
				emit(chunk)
			case <-drain.C:
				_ = ptmx.SetReadDeadline(time.Now())
				break drainLoop
			}
		}
	}

	res := ExecResult{Output: out.String(), ExitCode: proc.exitCode(), Termination: termination}
	if termination == TerminationNatural && res.ExitCode == 130 {
		res.Termination = TerminationUserInterrupt
	}
	switch res.Termination {
	case TerminationIdleTimeout:
		res.Error = fmt.Errorf("%s idle for %s", inv.Command, req.IdleTimeout)
	case TerminationNatural:
		if res.ExitCode != 0 {
			res.Error = fmt.Errorf("%s exited with status %d", inv.Command, res.ExitCode)
		}
	}
	return res
}

// startPTY starts cmd on a new PTY sized like the terminal. When the prompt
// goes through stdin, echo is turned off first so the prompt never shows up
// in the captured output.
func (e *Executor) startPTY(cmd *exec.Cmd, inv Invocation) (*os.File, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer tty.Close()

	rows, cols := e.config.Terminal.Size()
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("set pty size: %w", err)
	}
	if inv.Stdin != "" {
		if err := disableEcho(tty); err != nil {
			ptmx.Close()
			return nil, fmt.Errorf("disable pty echo: %w", err)
		}
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, err
	}
	return ptmx, nil
}
