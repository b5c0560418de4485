//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package agent

import (
	"os"

	"golang.org/x/sys/unix"
)

// disableEcho clears ECHO on the PTY slave so input written to the master
// does not come back as output.
func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	t.Lflag &^= unix.ECHO | unix.ECHONL
	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}
