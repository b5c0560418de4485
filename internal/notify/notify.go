// Package notify provides desktop notification support.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var (
	goos     = runtime.GOOS
	lookPath = exec.LookPath
)

// Send shows a desktop notification: osascript on macOS, notify-send
// elsewhere. It returns an error when no notifier is available.
func Send(title, message string) error {
	name, args, err := command(title, message)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func command(title, message string) (string, []string, error) {
	if goos == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return "osascript", []string{"-e", script}, nil
	}
	if _, err := lookPath("notify-send"); err != nil {
		return "", nil, fmt.Errorf("no desktop notifier on %s: %w", goos, err)
	}
	return "notify-send", []string{"--app-name=hatloop", title, message}, nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
