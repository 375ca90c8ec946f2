package artisan

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/tinker/internal/config"
	"github.com/deixis/tinker/internal/runner"
)

// Kind is the machine-readable outcome of an invocation.
type Kind string

const (
	KindOK                    Kind = "ok"
	KindProjectMarkerNotFound Kind = "project_marker_not_found"
	KindInvalidCommand        Kind = "invalid_command"
	KindSpawnError            Kind = "spawn_error"
	KindIOStreamError         Kind = "io_stream_error"
	KindNonZeroExit           Kind = "non_zero_exit"
	KindTimedOut              Kind = "timed_out"
	KindCancelled             Kind = "cancelled"
)

// ErrProjectMarkerNotFound is returned when the project path does not
// contain the file the active strategy needs (artisan or the autoloader).
var ErrProjectMarkerNotFound = errors.New("project marker not found")

// ErrInvalidCommand is returned when an artisan command cannot be split
// into arguments.
var ErrInvalidCommand = errors.New("invalid artisan command")

// KindOf classifies an error returned by RunCode or RunCommand.
// A nil error is KindOK; callers that need to tell a failed exit apart
// should use Outcome.Kind instead.
func KindOf(err error) Kind {
	var (
		spawnErr   *runner.SpawnError
		streamErr  *runner.StreamError
		timeoutErr *runner.TimeoutError
	)
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrProjectMarkerNotFound):
		return KindProjectMarkerNotFound
	case errors.Is(err, ErrInvalidCommand):
		return KindInvalidCommand
	case errors.As(err, &spawnErr):
		return KindSpawnError
	case errors.As(err, &streamErr):
		return KindIOStreamError
	case errors.As(err, &timeoutErr):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindIOStreamError
}

// spawnHint turns a spawn failure into actionable text for the user.
func spawnHint(err *runner.SpawnError) string {
	return fmt.Sprintf("Failed to start %s: %v.\n\n"+
		"Check that PHP is installed, or set the interpreter binary\n"+
		"(php: in %s, or interpreter_binary per call).", err.Binary, err.Err, config.FileName)
}
