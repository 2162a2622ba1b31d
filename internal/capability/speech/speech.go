// Package speech renders alert text as audio.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command speaks by running an external text-to-speech program once per
// utterance, e.g. "espeak-ng" or "say". The text is passed as the last
// argument.
type Command struct {
	name string
	args []string
}

// NewCommand parses a command line such as "espeak-ng -s 150".
func NewCommand(cmdline string) (*Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty speech command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %q: %w", fields[0], err)
	}
	return &Command{name: fields[0], args: fields[1:]}, nil
}

// Speak runs the program and waits for it. Cancelling ctx kills it.
func (c *Command) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), c.args...), text)
	out, err := exec.CommandContext(ctx, c.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Logger "speaks" into the structured log. It stands in on hosts without audio.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a Logger writing at info level.
func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

// Speak logs text.
func (l *Logger) Speak(ctx context.Context, text string) error {
	l.log.InfoContext(ctx, "speak", slog.String("text", text))
	return nil
}
