package notify

import (
	"errors"
	"testing"
)

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{`say "hello"`, `say \"hello\"`},
		{`path\to\file`, `path\\to\\file`},
		{`"quote" and \backslash`, `\"quote\" and \\backslash`},
		{"", ""},
	}
	for _, tt := range tests {
		got := escapeAppleScript(tt.input)
		if got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func stubPlatform(t *testing.T, os string, found bool) {
	t.Helper()
	origGOOS, origLook := goos, lookPath
	t.Cleanup(func() { goos, lookPath = origGOOS, origLook })
	goos = os
	lookPath = func(file string) (string, error) {
		if found {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
}

func TestCommand_Darwin(t *testing.T) {
	stubPlatform(t, "darwin", false)
	name, args, err := command(`Loop "done"`, "completed in 3 iterations")
	if err != nil {
		t.Fatal(err)
	}
	if name != "osascript" || len(args) != 2 || args[0] != "-e" {
		t.Fatalf("got %s %v", name, args)
	}
	want := `display notification "completed in 3 iterations" with title "Loop \"done\"" sound name "default"`
	if args[1] != want {
		t.Errorf("script = %s\nwant     %s", args[1], want)
	}
}

func TestCommand_Linux(t *testing.T) {
	stubPlatform(t, "linux", true)
	name, args, err := command("hatloop", "max_iterations")
	if err != nil {
		t.Fatal(err)
	}
	if name != "notify-send" || args[len(args)-2] != "hatloop" || args[len(args)-1] != "max_iterations" {
		t.Errorf("got %s %v", name, args)
	}
}

func TestCommand_NoNotifier(t *testing.T) {
	stubPlatform(t, "linux", false)
	if _, _, err := command("a", "b"); err == nil {
		t.Error("expected error without notify-send")
	}
	if err := Send("a", "b"); err == nil {
		t.Error("Send should fail without a notifier")
	}
}
