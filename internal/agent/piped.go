package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// transcript collects interleaved stdout/stderr lines and mirrors them to an
// optional live writer.
type transcript struct {
	mu   sync.Mutex
	buf  strings.Builder
	live io.Writer
}

func (t *transcript) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(s)
	if t.live != nil {
		_, _ = io.WriteString(t.live, s)
	}
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// stream copies r into tr line by line. Stderr lines carry a prefix.
func stream(r *os.File, tr *transcript, prefix string) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			tr.write(prefix + line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (e *Executor) runPiped(ctx context.Context, req ExecRequest, inv Invocation) ExecResult {
	cmd := e.command(req, inv, false)

	outR, outW, err := os.Pipe()
	if err != nil {
		return ExecResult{ExitCode: -1, Termination: TerminationNatural, Error: fmt.Errorf("stdout pipe: %w", err)}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return ExecResult{ExitCode: -1, Termination: TerminationNatural, Error: fmt.Errorf("stderr pipe: %w", err)}
	}
	defer outR.Close()
	defer errR.Close()
	cmd.Stdout = outW
	cmd.Stderr = errW

	var inW *os.File
	if inv.Stdin != "" {
		var inR *os.File
		inR, inW, err = os.Pipe()
		if err != nil {
			outW.Close()
			errW.Close()
			return ExecResult{ExitCode: -1, Termination: TerminationNatural, Error: fmt.Errorf("stdin pipe: %w", err)}
		}
		cmd.Stdin = inR
		defer inR.Close()
	}

	startErr := cmd.Start()
	// The child holds its own copies; the parent's write ends must close so
	// readers see EOF when the group exits.
	outW.Close()
	errW.Close()
	if startErr != nil {
		if inW != nil {
			inW.Close()
		}
		e.logger.Errorf("spawn_error hat=%s command=%s error=%v", req.HatID, inv.Command, startErr)
		return ExecResult{ExitCode: -1, Termination: TerminationNatural, Error: fmt.Errorf("spawn %s: %w", inv.Command, startErr)}
	}
	proc := watch(cmd)
	e.logger.Debugf("spawned hat=%s pid=%d pgid=%d", req.HatID, cmd.Process.Pid, proc.pgid)

	if inW != nil {
		go func() {
			defer inW.Close()
			if _, err := io.WriteString(inW, inv.Stdin); err != nil {
				e.logger.Debugf("stdin_write hat=%s error=%v", req.HatID, err)
			}
		}()
	}

	tr := &transcript{live: req.Output}
	if inv.StreamJSON && req.Output != nil {
		tr.live = newStreamWriter(req.Output)
	}
	var g errgroup.Group
	g.Go(func() error { return stream(outR, tr, "") })
	g.Go(func() error { return stream(errR, tr, "[stderr] ") })

	var timeoutC <-chan time.Time
	if req.Timeout > 0 {
		t := time.NewTimer(req.Timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	termination := TerminationNatural
	select {
	case <-proc.done:
	case <-timeoutC:
		termination = TerminationTimeout
		e.logger.Warnf("exec_timeout hat=%s timeout=%s", req.HatID, req.Timeout)
		proc.terminate(e.config.Grace)
	case <-ctx.Done():
		termination = TerminationInterrupted
		e.logger.Infof("exec_interrupted hat=%s", req.HatID)
		proc.terminate(e.config.Grace)
	case <-req.Force:
		termination = TerminationForceKill
		e.logger.Warnf("exec_force_kill hat=%s", req.HatID)
		proc.kill()
	}
	proc.reap()

	deadline := time.Now().Add(e.config.DrainTimeout)
	_ = outR.SetReadDeadline(deadline)
	_ = errR.SetReadDeadline(deadline)
	if err := g.Wait(); err != nil {
		e.logger.Warnf("output_read hat=%s error=%v", req.HatID, err)
	}

	res := ExecResult{Output: tr.String(), ExitCode: proc.exitCode(), Termination: termination}
	switch termination {
	case TerminationTimeout:
		res.Error = fmt.Errorf("%s timed out after %s", inv.Command, req.Timeout)
	case TerminationNatural:
		if res.ExitCode != 0 {
			res.Error = fmt.Errorf("%s exited with status %d", inv.Command, res.ExitCode)
		}
	}
	return res
}
