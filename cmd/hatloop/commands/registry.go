package commands

import (
	"errors"
	"strings"

	"github.com/msageha/hatloop/internal/hat"
	"github.com/msageha/hatloop/internal/model"
	"github.com/msageha/hatloop/internal/printer"
)

// buildRegistry constructs and validates the hat registry. Configuration
// errors are printed as diagnostics and returned as ExitError{1}.
func buildRegistry(p *printer.Printer, cfg model.Config, strict bool) (*hat.Registry, hat.Report, error) {
	reg, err := hat.NewRegistry(cfg.HatDefinitions(), cfg.RegistryOptions()...)
	if err != nil {
		return nil, hat.Report{}, configFailure(p, err)
	}
	report, err := reg.Validate(hat.ValidateOptions{Strict: strict})
	if err != nil {
		return nil, report, configFailure(p, err)
	}
	for _, id := range report.Unreachable {
		p.Warning("hat %q is unreachable from entry hat %q", id, reg.Entry())
	}
	return reg, report, nil
}

func configFailure(p *printer.Printer, err error) error {
	title, context, suggestions := describeConfigError(err)
	_ = p.ErrorWithContext(title, err.Error(), context, suggestions)
	return &ExitError{Code: 1}
}

func describeConfigError(err error) (string, map[string]string, []string) {
	var (
		ambiguous   *hat.AmbiguousRoutingError
		missing     *hat.MissingTerminationError
		unreachable *hat.UnreachableHatsError
		duplicate   *hat.DuplicateHatError
		pattern     *hat.InvalidPatternError
		unknown     *hat.UnknownHatError
		noEntry     *hat.NoEntryHatError
	)
	switch {
	case errors.As(err, &ambiguous):
		return "Ambiguous routing", map[string]string{
			"pattern": ambiguous.Pattern,
			"hats":    ambiguous.HatA + ", " + ambiguous.HatB,
		}, []string{
			"Give each trigger pattern to exactly one hat.",
			"Address one of the hats with an explicit target instead.",
		}
	case errors.As(err, &missing):
		return "No terminating hat", nil, []string{"Mark at least one hat with terminating: true."}
	case errors.As(err, &unreachable):
		return "Unreachable hats", map[string]string{
			"entry":       unreachable.Entry,
			"unreachable": strings.Join(unreachable.Hats, ", "),
		}, []string{"Publish a topic that one of these hats triggers on, or remove them."}
	case errors.As(err, &duplicate):
		return "Duplicate hat", map[string]string{"hat": duplicate.ID}, nil
	case errors.As(err, &pattern):
		return "Invalid topic pattern", map[string]string{"hat": pattern.HatID, "field": pattern.Field}, nil
	case errors.As(err, &unknown):
		return "Unknown hat", map[string]string{"field": unknown.Field, "hat": unknown.ID}, nil
	case errors.As(err, &noEntry):
		return "No entry hat", map[string]string{"topic": noEntry.Topic}, []string{
			"Add the starting topic to a hat's triggers.",
			"Set event_loop.starting_hat.",
		}
	default:
		return "Invalid configuration", nil, nil
	}
}

// loadFailure prints a config loading error and returns ExitError{1}.
func loadFailure(p *printer.Printer, err error) error {
	var fields *model.ValidationErrors
	if errors.As(err, &fields) {
		_ = p.Error("Invalid configuration", strings.TrimRight(fields.FormatStderr(), "\n"), nil)
	} else {
		_ = p.Error("Cannot load configuration", err.Error(), nil)
	}
	return &ExitError{Code: 1}
}
