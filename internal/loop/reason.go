package loop

// TerminationReason is why the loop stopped.
type TerminationReason string

const (
	ReasonCompleted           TerminationReason = "completed"
	ReasonMaxIterations       TerminationReason = "max_iterations"
	ReasonMaxRuntime          TerminationReason = "max_runtime"
	ReasonConsecutiveFailures TerminationReason = "consecutive_failures"
	ReasonLoopThrashing       TerminationReason = "loop_thrashing"
	ReasonInterrupted         TerminationReason = "interrupted"
	ReasonError               TerminationReason = "error"
)

// Process exit codes.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitLimit       = 2
	ExitInterrupted = 130
)

// ExitCode maps the reason to the process exit status.
func (r TerminationReason) ExitCode() int {
	switch r {
	case ReasonCompleted:
		return ExitSuccess
	case ReasonMaxIterations, ReasonMaxRuntime:
		return ExitLimit
	case ReasonInterrupted:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Success reports whether the loop ended by completing its objective.
func (r TerminationReason) Success() bool { return r == ReasonCompleted }

func (r TerminationReason) String() string { return string(r) }
