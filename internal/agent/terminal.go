package agent

import (
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// Terminal is the controlling terminal used by interactive runs.
type Terminal interface {
	// IsInteractive reports whether input and output are genuine terminals.
	IsInteractive() bool
	// EnterRaw switches input to raw mode and returns the restore function.
	EnterRaw() (restore func(), err error)
	// OpenInput returns a reader over user keystrokes that can be cancelled
	// when the iteration ends.
	OpenInput() (cancelreader.CancelReader, error)
	Output() io.Writer
	Size() (rows, cols uint16)
}

// StdTerminal is the process's stdin/stdout terminal.
type StdTerminal struct {
	in  *os.File
	out *os.File
}

// NewStdTerminal wraps os.Stdin and os.Stdout.
func NewStdTerminal() *StdTerminal {
	return &StdTerminal{in: os.Stdin, out: os.Stdout}
}

func (t *StdTerminal) IsInteractive() bool {
	return isTerminal(t.in) && isTerminal(t.out)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (t *StdTerminal) EnterRaw() (func(), error) {
	fd := int(t.in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

func (t *StdTerminal) OpenInput() (cancelreader.CancelReader, error) {
	return cancelreader.NewReader(t.in)
}

func (t *StdTerminal) Output() io.Writer { return t.out }

// Size returns the terminal size, falling back to $LINES/$COLUMNS and 24x80.
func (t *StdTerminal) Size() (uint16, uint16) {
	if cols, rows, err := term.GetSize(int(t.out.Fd())); err == nil && cols > 0 && rows > 0 {
		return uint16(rows), uint16(cols)
	}
	return envSize("LINES", 24), envSize("COLUMNS", 80)
}

func envSize(name string, def uint16) uint16 {
	v, err := strconv.ParseUint(os.Getenv(name), 10, 16)
	if err != nil || v == 0 {
		return def
	}
	return uint16(v)
}
