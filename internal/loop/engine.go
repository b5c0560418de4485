// Package loop drives the hat event loop: it runs one agent iteration at a
// time, routes the events the agent publishes, and stops when a safeguard
// or the completion promise ends the run.
package loop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/msageha/hatloop/internal/agent"
	"github.com/msageha/hatloop/internal/events"
	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/logging"
	"github.com/msageha/hatloop/internal/router"
	"github.com/msageha/hatloop/internal/topic"
)

// Executor runs one agent iteration. *agent.Executor satisfies it.
type Executor interface {
	Execute(req agent.ExecRequest) agent.ExecResult
}

// PromptBuilder renders the prompt for a hat handling an event.
type PromptBuilder interface {
	Build(h *hat.Hat, ev events.Event) (string, error)
}

// AgentSpec is the backend and run timeout used for a hat.
type AgentSpec struct {
	Backend agent.Backend
	Timeout time.Duration
}

// IterationReport describes one finished iteration.
type IterationReport struct {
	Iteration int
	HatID     string
	Result    agent.ExecResult
	Published []events.Record
	Malformed []events.Malformed
	Completed bool
	NextHat   string
}

// Reporter receives progress callbacks. Callbacks run on the loop goroutine.
type Reporter interface {
	IterationStarted(iteration int, h *hat.Hat, trigger events.Event)
	IterationFinished(r IterationReport)
}

// Options configures an Engine.
type Options struct {
	Registry *hat.Registry
	Executor Executor
	Prompts  PromptBuilder

	// Agent is the default backend. HatAgents overrides it per hat id.
	Agent     AgentSpec
	HatAgents map[string]AgentSpec

	Mode        agent.Mode
	IdleTimeout time.Duration
	Dir         string
	Output      io.Writer
	// Force is handed to every iteration and kills the child without grace.
	Force <-chan struct{}

	Limits        Limits
	Promise       string
	CaseSensitive bool

	// StartTopic defaults to the registry's starting topic.
	StartTopic   string
	StartPayload string

	RunID       string
	History     *events.History
	Bus         *events.Bus
	SummaryPath string
	Reporter    Reporter
	Logger      *logging.Logger
	Now         func() time.Time
}

// Engine runs the loop. An Engine runs once.
type Engine struct {
	opts   Options
	reg    *hat.Registry
	logger *logging.Logger
	now    func() time.Time
	state  *State
	detail string
	usage  *Usage
}

// New returns an engine for opts.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("loop: registry is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("loop: executor is required")
	}
	if opts.Prompts == nil {
		return nil, fmt.Errorf("loop: prompt builder is required")
	}
	if opts.StartTopic == "" {
		opts.StartTopic = opts.Registry.StartingTopic()
	}
	if opts.Mode == "" {
		opts.Mode = agent.ModePiped
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		opts:   opts,
		reg:    opts.Registry,
		logger: opts.Logger.With("loop"),
		now:    now,
	}, nil
}

// State returns the run state. It is nil before Run.
func (e *Engine) State() *State { return e.state }

// Run drives the loop until a termination reason is reached. Cancelling ctx
// ends the run as Interrupted. The returned error is non-nil only when the
// loop could not start.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := events.Event{Topic: e.opts.StartTopic, Payload: e.opts.StartPayload, Timestamp: e.now()}
	first, outcome := e.reg.Entry(), router.OutcomeTargeted
	if start.Topic != e.reg.StartingTopic() || first == "" {
		// Resume topics route normally and fall back to the entry hat.
		dec := router.Route(e.reg, start.Topic, "")
		if dec.Outcome.Routed() {
			first, outcome = dec.HatID, dec.Outcome
		}
	}
	if first == "" {
		return Summary{}, &hat.NoEntryHatError{Topic: start.Topic}
	}

	e.state = NewState(start.Timestamp, first)
	e.logger.Infof("loop_start run_id=%s topic=%s hat=%s max_iterations=%d max_runtime=%s",
		e.opts.RunID, start.Topic, first, e.opts.Limits.MaxIterations, e.opts.Limits.MaxRuntime)
	e.record(start, "", first, outcome)

	trigger := start
	for !e.state.Terminated() {
		if ctx.Err() != nil {
			e.state.Terminate(ReasonInterrupted)
			break
		}
		next, ok := e.admit(trigger)
		if !ok {
			break
		}
		trigger = e.iterate(ctx, next)
	}
	return e.finish(), nil
}

// admit returns the trigger for the active hat, redirecting through
// "<hat>.exhausted" events while the active hat is over its activation cap.
func (e *Engine) admit(trigger events.Event) (events.Event, bool) {
	for hops := 0; ; hops++ {
		h, _ := e.reg.Get(e.state.ActiveHat)
		if h.MaxActivations == 0 || e.state.Activations[h.ID] < h.MaxActivations {
			return trigger, true
		}
		if hops >= e.reg.Len() {
			e.detail = "every reachable hat has exhausted its activations"
			e.logger.Errorf("activations_exhausted hat=%s", h.ID)
			e.state.Terminate(ReasonError)
			return trigger, false
		}
		ev := events.Event{
			Topic:     h.ID + ".exhausted",
			Payload:   fmt.Sprintf("hat %s reached max_activations=%d", h.ID, h.MaxActivations),
			SourceHat: h.ID,
			Iteration: e.state.Iteration,
			Timestamp: e.now(),
		}
		dec := router.Route(e.reg, ev.Topic, "")
		e.record(ev, h.ID, dec.HatID, dec.Outcome)
		if !dec.Outcome.Routed() || dec.HatID == h.ID {
			e.detail = fmt.Sprintf("hat %s exhausted and no other hat handles %s", h.ID, ev.Topic)
			e.logger.Errorf("activations_exhausted hat=%s topic=%s outcome=%s", h.ID, ev.Topic, dec.Outcome)
			e.state.Terminate(ReasonError)
			return trigger, false
		}
		e.logger.Warnf("hat_exhausted hat=%s max_activations=%d next=%s", h.ID, h.MaxActivations, dec.HatID)
		e.state.ActiveHat = dec.HatID
		trigger = ev
	}
}

// iterate runs the active hat once and returns the trigger for the next
// iteration.
func (e *Engine) iterate(ctx context.Context, trigger events.Event) events.Event {
	st := e.state
	h, _ := e.reg.Get(st.ActiveHat)
	st.Iteration++
	st.Activations[h.ID]++
	if e.opts.Reporter != nil {
		e.opts.Reporter.IterationStarted(st.Iteration, h, trigger)
	}
	e.logger.Infof("iteration_start iteration=%d hat=%s trigger=%s", st.Iteration, h.ID, trigger.Topic)

	report := IterationReport{Iteration: st.Iteration, HatID: h.ID}
	prompt, err := e.opts.Prompts.Build(h, trigger)
	if err != nil {
		e.logger.Errorf("prompt_error iteration=%d hat=%s error=%v", st.Iteration, h.ID, err)
		report.Result = agent.ExecResult{ExitCode: -1, Termination: agent.TerminationNatural, Error: err}
	} else {
		spec := e.agentFor(h.ID)
		report.Result = e.opts.Executor.Execute(agent.ExecRequest{
			Context:     ctx,
			HatID:       h.ID,
			Iteration:   st.Iteration,
			Backend:     spec.Backend,
			Prompt:      prompt,
			Mode:        e.opts.Mode,
			Timeout:     spec.Timeout,
			IdleTimeout: e.opts.IdleTimeout,
			Dir:         e.opts.Dir,
			Output:      e.opts.Output,
			Force:       e.opts.Force,
		})
	}
	res := report.Result
	if res.Usage != nil {
		if e.usage == nil {
			e.usage = &Usage{}
		}
		e.usage.add(*res.Usage)
	}

	if res.Interrupted() || ctx.Err() != nil {
		e.logger.Warnf("iteration_interrupted iteration=%d hat=%s termination=%s", st.Iteration, h.ID, res.Termination)
		st.Terminate(ReasonInterrupted)
		report.NextHat = st.ActiveHat
		e.report(report)
		return trigger
	}

	output := res.Stripped
	if output == "" {
		output = res.Output
	}
	parsed := events.Parse(output)
	report.Malformed = parsed.Malformed
	for _, m := range parsed.Malformed {
		e.logger.Warnf("malformed_event iteration=%d hat=%s offset=%d reason=%q fragment=%q",
			st.Iteration, h.ID, m.Offset, m.Reason, m.Fragment)
	}
	report.Completed = h.Terminating &&
		events.ContainsPromise(parsed.Remainder, e.opts.Promise, e.opts.CaseSensitive)

	published := parsed.Events
	if len(published) == 0 && res.Success() && h.DefaultPublishes != "" {
		e.logger.Infof("default_publish iteration=%d hat=%s topic=%s", st.Iteration, h.ID, h.DefaultPublishes)
		published = []events.Event{{Topic: h.DefaultPublishes}}
	}

	next, allowed, routed := trigger, 0, false
	for _, ev := range published {
		ev.SourceHat = h.ID
		ev.Iteration = st.Iteration
		ev.Timestamp = e.now()

		if reason := e.reject(h, ev); reason != "" {
			e.logger.Warnf("event_rejected iteration=%d hat=%s topic=%s reason=%s", st.Iteration, h.ID, ev.Topic, reason)
			report.Published = append(report.Published, e.record(ev, h.ID, "", router.OutcomeRejected))
			continue
		}
		allowed++
		st.ObserveEvent(ev)

		dec := router.Route(e.reg, ev.Topic, ev.Target)
		if dec.Err != nil {
			e.logger.Warnf("routing_error iteration=%d hat=%s %v outcome=%s", st.Iteration, h.ID, dec.Err, dec.Outcome)
		}
		report.Published = append(report.Published, e.record(ev, h.ID, dec.HatID, dec.Outcome))
		// The trigger stays paired with the hat it activated. An orphan only
		// becomes the trigger when nothing in this iteration routed.
		switch {
		case dec.Outcome.Routed():
			st.ActiveHat = dec.HatID
			next, routed = ev, true
		case !routed:
			next = ev
		}
	}

	switch {
	case !res.Success():
		st.RecordFailure()
		e.logger.Warnf("iteration_failed iteration=%d hat=%s exit_code=%d termination=%s failures=%d error=%v",
			st.Iteration, h.ID, res.ExitCode, res.Termination, st.ConsecutiveFailures, res.Error)
	case allowed > 0:
		st.RecordProgress()
	case len(parsed.Malformed) > 0 && len(parsed.Events) == 0:
		st.RecordFailure()
		e.logger.Warnf("iteration_unparsable iteration=%d hat=%s failures=%d", st.Iteration, h.ID, st.ConsecutiveFailures)
	}

	if r, done := st.Check(e.opts.Limits, report.Completed, e.now()); done {
		e.logger.Infof("safeguard iteration=%d reason=%s", st.Iteration, r)
	}
	report.NextHat = st.ActiveHat
	e.report(report)
	return next
}

func (e *Engine) reject(h *hat.Hat, ev events.Event) string {
	if err := topic.ValidateTopic(ev.Topic); err != nil {
		return err.Error()
	}
	if ev.Topic == events.TopicTerminate {
		return "reserved topic"
	}
	if !h.CanPublish(ev.Topic) {
		return "not in publishes"
	}
	return ""
}

func (e *Engine) agentFor(hatID string) AgentSpec {
	if spec, ok := e.opts.HatAgents[hatID]; ok {
		return spec
	}
	return e.opts.Agent
}

func (e *Engine) report(r IterationReport) {
	if e.opts.Reporter != nil {
		e.opts.Reporter.IterationFinished(r)
	}
}

// record appends ev to history and publishes it to observers.
func (e *Engine) record(ev events.Event, active, routedTo string, outcome router.Outcome) events.Record {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	rec := events.Record{
		Timestamp: ts,
		RunID:     e.opts.RunID,
		Iteration: ev.Iteration,
		ActiveHat: active,
		Topic:     ev.Topic,
		RoutedTo:  routedTo,
		Payload:   ev.Payload,
		SourceHat: ev.SourceHat,
		Target:    ev.Target,
		Outcome:   string(outcome),
	}
	if e.opts.History != nil {
		if err := e.opts.History.Append(rec); err != nil {
			e.logger.Errorf("history_append topic=%s error=%v", rec.Topic, err)
		}
	}
	if e.opts.Bus != nil {
		e.opts.Bus.Publish(rec)
	}
	return rec
}

// finish publishes loop.terminate and writes the run summary.
func (e *Engine) finish() Summary {
	st := e.state
	finished := e.now()
	sum := newSummary(e.opts.RunID, st, finished, e.detail)
	sum.Usage = e.usage

	e.record(events.Event{
		Topic:     events.TopicTerminate,
		Payload:   sum.Payload(),
		Iteration: st.Iteration,
		Timestamp: finished,
	}, st.ActiveHat, "", "")

	if e.opts.SummaryPath != "" {
		if err := WriteSummary(e.opts.SummaryPath, sum); err != nil {
			e.logger.Errorf("summary_write path=%s error=%v", e.opts.SummaryPath, err)
		}
	}
	st.Phase = PhaseExited
	e.logger.Infof("loop_exit run_id=%s reason=%s iterations=%d exit_code=%d duration=%s",
		e.opts.RunID, st.Termination, st.Iteration, sum.ExitCode, sum.Duration)
	return sum
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(req agent.ExecRequest) agent.ExecResult

// Execute calls f.
func (f ExecutorFunc) Execute(req agent.ExecRequest) agent.ExecResult { return f(req) }
