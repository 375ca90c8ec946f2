package runner

import (
	"errors"
	"fmt"
	"time"
)

// Stream names one of the child's standard streams.
type Stream string

const (
	Stdin  Stream = "stdin"
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// ErrStdinUnread means the child exited before it read all of its input.
// Run reports it through Result.StdinUnread; callers decide whether it
// fails the call.
var ErrStdinUnread = errors.New("child exited before reading all input")

// SpawnError is returned when the binary could not be started
// (not found, not executable, permission denied).
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StreamError is returned when writing to or reading from one of the
// child's streams fails.
type StreamError struct {
	Stream Stream
	Err    error
}

func (e *StreamError) Error() string {
	verb := "reading"
	if e.Stream == Stdin {
		verb = "writing"
	}
	return fmt.Sprintf("%s %s: %v", verb, e.Stream, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// TimeoutError is returned when the child was killed because the runner
// timeout elapsed. Partial holds whatever output was captured before the kill.
type TimeoutError struct {
	Binary  string
	After   time.Duration
	Partial *Result
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Binary, e.After)
}
