// Package interrupt turns external stop requests into loop cancellation.
//
// The first SIGINT or SIGTERM, or the creation of the stop file, cancels the
// loop context so the running agent is terminated with a grace period. A
// second request, or SIGQUIT, closes the Force channel and the agent's
// process group is killed at once.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/hatloop/internal/logging"
)

// StopFile is the file name that requests a stop when created in the state directory.
const StopFile = "stop"

// ErrInterrupted is the context cause for every external interrupt.
var ErrInterrupted = errors.New("interrupted")

// Options configures a Controller.
type Options struct {
	// StateDir enables the stop-file watcher when non-empty.
	StateDir string
	// Signals installs SIGINT, SIGTERM and SIGQUIT handlers.
	Signals bool
	Logger  *logging.Logger
}

// Controller owns the loop's cancellation.
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger *logging.Logger

	mu        sync.Mutex
	requests  int
	source    string
	force     chan struct{}
	forceOnce sync.Once

	sigCh    chan os.Signal
	watcher  *fsnotify.Watcher
	stopPath string

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts the configured interrupt sources.
func New(parent context.Context, opts Options) (*Controller, error) {
	ctx, cancel := context.WithCancelCause(parent)
	c := &Controller{
		ctx:    ctx,
		cancel: cancel,
		logger: opts.Logger.With("interrupt"),
		force:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	if opts.StateDir != "" {
		if err := c.watchStopFile(opts.StateDir); err != nil {
			cancel(nil)
			return nil, err
		}
	}
	if opts.Signals {
		c.sigCh = make(chan os.Signal, 4)
		signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		c.wg.Add(1)
		go c.signalLoop()
	}
	return c, nil
}

func (c *Controller) watchStopFile(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	c.stopPath = filepath.Join(stateDir, StopFile)
	if err := os.Remove(c.stopPath); err == nil {
		c.logger.Warnf("stale_stop_file removed path=%s", c.stopPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(stateDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", stateDir, err)
	}
	c.watcher = watcher
	c.wg.Add(1)
	go c.fsnotifyLoop()
	return nil
}

// Context is cancelled with ErrInterrupted on the first request.
func (c *Controller) Context() context.Context { return c.ctx }

// Force is closed on the second request or on SIGQUIT.
func (c *Controller) Force() <-chan struct{} { return c.force }

// Source names what interrupted the loop, or "" if nothing did.
func (c *Controller) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Interrupt records a stop request from source.
func (c *Controller) Interrupt(source string) {
	c.mu.Lock()
	c.requests++
	n := c.requests
	if c.source == "" {
		c.source = source
	}
	c.mu.Unlock()

	if n == 1 {
		c.logger.Infof("interrupt source=%s", source)
		c.cancel(ErrInterrupted)
		return
	}
	c.logger.Warnf("interrupt_force source=%s requests=%d", source, n)
	c.Kill(source)
}

// Kill cancels the context and closes Force immediately.
func (c *Controller) Kill(source string) {
	c.mu.Lock()
	if c.source == "" {
		c.source = source
	}
	c.mu.Unlock()
	c.cancel(ErrInterrupted)
	c.forceOnce.Do(func() { close(c.force) })
}

func (c *Controller) signalLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.sigCh:
			if sig == syscall.SIGQUIT {
				c.logger.Warnf("interrupt_quit signal=%s", sig)
				c.Kill("signal:" + sig.String())
				continue
			}
			c.Interrupt("signal:" + sig.String())
		}
	}
}

func (c *Controller) fsnotifyLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name != c.stopPath {
				continue
			}
			if event.Has(fsnotify.Create) {
				c.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				_ = os.Remove(c.stopPath)
				c.Interrupt("stop_file")
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

// Close stops all sources. The context is cancelled without a cause if it
// was not interrupted.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sigCh != nil {
			signal.Stop(c.sigCh)
		}
		if c.watcher != nil {
			err = c.watcher.Close()
		}
		c.wg.Wait()
		c.cancel(nil)
	})
	return err
}
