// Package artisan runs PHP snippets through a Laravel project's tinker REPL
// and runs artisan commands, reducing each child process to one text result.
// It is consumed by both the MCP server and the CLI commands.
package artisan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/deixis/tinker/internal/config"
	"github.com/deixis/tinker/internal/logging"
	"github.com/deixis/tinker/internal/metrics"
	"github.com/deixis/tinker/internal/report"
	"github.com/deixis/tinker/internal/runner"
	"github.com/deixis/tinker/internal/tracing"
)

// Launcher spawns one child process and waits for it.
// Implemented by runner.Runner.
type Launcher interface {
	Run(ctx context.Context, c runner.Command) (*runner.Result, error)
}

// Outcome is what the host shows for one call: the text, plus a kind it
// can branch on.
type Outcome struct {
	Text     string `json:"text"`
	Kind     Kind   `json:"kind"`
	RunID    string `json:"run_id,omitempty"` // empty when no process was spawned
	ExitCode int    `json:"exit_code"`
}

// Invoker holds shared dependencies for both operations. It keeps no
// per-call state, so one Invoker serves concurrent calls.
type Invoker struct {
	Launcher    Launcher
	Strategy    Strategy
	Interpreter string // configured PHP binary; empty means the platform default

	// EchoCommandToStdin also writes an artisan command to the child's
	// stdin, as older hosts did. Off by default.
	EchoCommandToStdin bool

	Store   report.Store     // optional run history
	Logger  *slog.Logger     // optional
	Metrics *metrics.Metrics // optional
}

// New builds an Invoker from cfg around l.
func New(cfg *config.Config, l Launcher) (*Invoker, error) {
	s, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}
	return &Invoker{
		Launcher:           l,
		Strategy:           s,
		Interpreter:        cfg.PHP,
		EchoCommandToStdin: cfg.Artisan.EchoCommandToStdin,
	}, nil
}

// RunCode evaluates code in the Laravel project at projectPath using the
// configured strategy. interpreter overrides the PHP binary for this call.
// Relative paths are resolved against the caller's working directory.
//
// The returned Outcome is never nil. The error is nil both on success and
// when the snippet itself failed (KindNonZeroExit); it is set when the
// project is missing, PHP could not be started, a stream failed or the
// timeout elapsed. None of these end the process.
func (inv *Invoker) RunCode(ctx context.Context, code, projectPath, interpreter string) (*Outcome, error) {
	s := inv.strategy()
	project := absPath(projectPath)
	ctx, span := tracing.StartInvocation(ctx, "run_code", project,
		attribute.String("artisan.strategy", s.Name()),
	)

	call := &invocation{
		op:       report.Code,
		strategy: s.Name(),
		project:  project,
		input:    code,
		text:     s.Text,
		span:     span,
		done:     inv.Metrics.Begin(string(report.Code)),
	}

	if err := checkMarker(project, s.Marker()); err != nil {
		return inv.reject(call, s.NotFound(), err)
	}

	php := inv.interpreter(interpreter)
	return inv.launch(ctx, call, s.Command(php, project, code))
}

// RunCommand runs `php artisan <command>` with projectPath as the working
// directory. The command is split into arguments shell-style. The result
// text is stdout followed by stderr. Errors follow RunCode.
func (inv *Invoker) RunCommand(ctx context.Context, command, projectPath, interpreter string) (*Outcome, error) {
	return inv.runArtisan(ctx, command, projectPath, interpreter, func() ([]string, error) {
		return SplitArgs(command)
	})
}

// RunArgs is RunCommand for arguments that are already split, as a shell
// passes them to the CLI. They reach artisan unchanged.
func (inv *Invoker) RunArgs(ctx context.Context, args []string, projectPath, interpreter string) (*Outcome, error) {
	args = trimArtisanPrefix(args)
	return inv.runArtisan(ctx, JoinArgs(args), projectPath, interpreter, func() ([]string, error) {
		return args, nil
	})
}

func (inv *Invoker) runArtisan(ctx context.Context, command, projectPath, interpreter string, split func() ([]string, error)) (*Outcome, error) {
	project := absPath(projectPath)
	ctx, span := tracing.StartInvocation(ctx, "run_command", project,
		attribute.String("artisan.command", command),
	)

	call := &invocation{
		op:      report.Command,
		project: project,
		input:   command,
		text:    combined,
		span:    span,
		done:    inv.Metrics.Begin(string(report.Command)),
	}

	if err := checkMarker(project, "artisan"); err != nil {
		return inv.reject(call, Tinker{}.NotFound(), err)
	}

	args, err := split()
	if err != nil {
		return inv.reject(call, err.Error(), err)
	}

	php := inv.interpreter(interpreter)
	cmd := runner.Command{
		Argv: append([]string{php, "artisan"}, args...),
		Dir:  project,
	}
	if inv.EchoCommandToStdin {
		cmd.Stdin = []byte(command)
	}
	return inv.launch(ctx, call, cmd)
}

// invocation carries one call through launch and record keeping.
type invocation struct {
	op       report.Operation
	strategy string
	project  string
	input    string
	text     func(*runner.Result) string
	span     trace.Span
	done     func(kind string, elapsed time.Duration)
}

// reject finishes a call that never reached a child process.
func (inv *Invoker) reject(call *invocation, text string, err error) (*Outcome, error) {
	kind := KindOf(err)
	tracing.EndInvocation(call.span, string(kind), "", 0, err)
	call.done(string(kind), 0)
	inv.log().Warn("invocation rejected",
		"operation", call.op,
		"project", call.project,
		"kind", kind,
		"error", err,
	)
	return &Outcome{Text: text, Kind: kind}, err
}

func (inv *Invoker) launch(ctx context.Context, call *invocation, cmd runner.Command) (*Outcome, error) {
	started := time.Now()
	res, err := inv.Launcher.Run(ctx, cmd)

	// A child that stops reading its input and still exits 0 never saw the
	// whole snippet, so its output cannot be trusted as the answer.
	if err == nil && res.StdinUnread && res.ExitCode == 0 {
		err = &runner.StreamError{Stream: runner.Stdin, Err: runner.ErrStdinUnread}
	}

	out := &Outcome{}
	var timeoutErr *runner.TimeoutError
	var spawnErr *runner.SpawnError
	switch {
	case err == nil:
		out.Kind = KindOK
		if res.ExitCode != 0 {
			out.Kind = KindNonZeroExit
		}
		out.Text = call.text(res)
	case errors.As(err, &timeoutErr):
		res = timeoutErr.Partial
		out.Kind = KindTimedOut
		out.Text = timeoutText(res, err)
	case errors.As(err, &spawnErr):
		out.Kind = KindSpawnError
		out.Text = spawnHint(spawnErr)
	default:
		out.Kind = KindOf(err)
		out.Text = err.Error()
	}

	var elapsed time.Duration
	if res != nil {
		out.RunID = res.RunID
		out.ExitCode = res.ExitCode
		elapsed = res.Duration
		inv.save(call, cmd, res, out.Kind, started)
	}
	call.done(string(out.Kind), elapsed)

	attrs := []any{
		"operation", call.op,
		"project", call.project,
		"kind", out.Kind,
		"run_id", out.RunID,
		"exit_code", out.ExitCode,
		"duration", elapsed,
	}
	switch out.Kind {
	case KindOK, KindNonZeroExit:
		tracing.EndInvocation(call.span, string(out.Kind), out.RunID, out.ExitCode, nil)
		inv.log().Info("invocation finished", attrs...)
		return out, nil
	default:
		tracing.EndInvocation(call.span, string(out.Kind), out.RunID, out.ExitCode, err)
		inv.log().Warn("invocation failed", append(attrs, "error", err)...)
		return out, fmt.Errorf("%s %s: %w", call.op, call.project, err)
	}
}

// save records a call that reached a child process. History is best
// effort; a failed save is logged and the call still succeeds.
func (inv *Invoker) save(call *invocation, cmd runner.Command, res *runner.Result, kind Kind, started time.Time) {
	if inv.Store == nil {
		return
	}
	rec := &report.Record{
		ID:        res.RunID,
		Operation: call.op,
		Strategy:  call.strategy,
		Project:   call.project,
		Argv:      cmd.Argv,
		Input:     call.input,
		Kind:      string(kind),
		ExitCode:  res.ExitCode,
		Stdout:    string(res.Stdout),
		Stderr:    string(res.Stderr),
		Truncated: res.Truncated,
		StartedAt: started,
		Duration:  res.Duration,

		StdinUnread: res.StdinUnread,
	}
	if err := inv.Store.Save(rec); err != nil {
		inv.log().Warn("saving run record", "run_id", rec.ID, "error", err)
	}
}

func (inv *Invoker) strategy() Strategy {
	if inv.Strategy != nil {
		return inv.Strategy
	}
	return Tinker{}
}

// interpreter resolves the PHP binary for one call. A relative path is made
// absolute, since the child's working directory is the project.
func (inv *Invoker) interpreter(requested string) string {
	php := ResolveInterpreter(requested, inv.Interpreter)
	if strings.ContainsRune(php, '/') || strings.ContainsRune(php, filepath.Separator) {
		return absPath(php)
	}
	return php
}

func (inv *Invoker) log() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return logging.Discard()
}

// absPath makes p absolute. An empty path stays empty so checkMarker can
// reject it.
func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// checkMarker verifies that projectPath contains the marker file.
func checkMarker(projectPath, marker string) error {
	if projectPath == "" {
		return fmt.Errorf("%w: empty project path", ErrProjectMarkerNotFound)
	}
	path := filepath.Join(projectPath, marker)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrProjectMarkerNotFound, path)
	}
	return nil
}

// timeoutText keeps whatever the child printed before it was killed.
// The exit status of a killed child says nothing, so both streams are kept.
func timeoutText(partial *runner.Result, err error) string {
	if partial == nil {
		return err.Error()
	}
	captured := combined(partial)
	if captured == "" {
		return err.Error()
	}
	if captured[len(captured)-1] != '\n' {
		captured += "\n"
	}
	return captured + err.Error()
}
