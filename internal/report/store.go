// Package report provides persistence and retrieval of invocation records.
// Every tinker snippet or artisan command that reached a child process is
// recorded so its full output can be inspected later by run ID.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies what produced a record.
type Operation string

const (
	// Code is a snippet evaluated through tinker or php -r.
	Code Operation = "code"
	// Command is an artisan command.
	Command Operation = "command"
)

// Store persists and retrieves invocation records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record holds the captured result of one invocation.
type Record struct {
	ID        string        `json:"id"`
	Operation Operation     `json:"operation"`
	Strategy  string        `json:"strategy,omitempty"`
	Project   string        `json:"project"`
	Argv      []string      `json:"argv"`
	Input     string        `json:"input,omitempty"` // code or command text
	Kind      string        `json:"kind"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// StdinUnread is set when the child exited before reading all of Input.
	StdinUnread bool `json:"stdin_unread,omitempty"`
}

// Expect returns an error if the record's operation does not match want.
func (r *Record) Expect(want Operation) error {
	if r.Operation != want {
		return fmt.Errorf("run %s is a %s run, not a %s run", r.ID, r.Operation, want)
	}
	return nil
}

// Lookup loads runID from s. When operation is set ("code" or "command"),
// the run must be of that operation.
func Lookup(s Store, runID, operation string) (*Record, error) {
	want := Operation(operation)
	switch want {
	case "", Code, Command:
	default:
		return nil, fmt.Errorf("unknown operation %q (want %s or %s)", operation, Code, Command)
	}

	rec, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if want != "" {
		if err := rec.Expect(want); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Format renders the record for display.
func (r *Record) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", r.ID, r.Operation)
	fmt.Fprintf(&b, "Project: %s\n", r.Project)
	if r.Strategy != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", r.Strategy)
	}
	fmt.Fprintf(&b, "Argv: %s\n", strings.Join(r.Argv, " "))
	fmt.Fprintf(&b, "Started: %s (%s)\n", r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Result: %s (exit %d)\n", r.Kind, r.ExitCode)
	if r.Truncated {
		fmt.Fprintln(&b, "Output was truncated.")
	}
	if r.StdinUnread {
		fmt.Fprintln(&b, "Input was not fully read.")
	}

	section := func(name, body string) {
		if body == "" {
			return
		}
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s:\n", name)
		for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	section("Input", r.Input)
	section("Stdout", r.Stdout)
	section("Stderr", r.Stderr)

	return b.String()
}
