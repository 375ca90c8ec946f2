// Package runner provides safe command execution with stdin piping,
// concurrent output draining, timeouts, and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner executes one child process per call. It holds no per-call
// state, so a single Runner may be shared by concurrent callers.
type Runner struct {
	Timeout   time.Duration // 0 disables the timeout
	MaxOutput int           // bytes per stream; 0 means unlimited
}

// Run starts c.Argv[0] with the remaining arguments, writes c.Stdin to the
// child and closes it, and collects stdout and stderr until the child exits.
//
// A non-zero exit status is not an error; it is reported in Result.ExitCode.
// Failures to start the child return *SpawnError, stream failures return
// *StreamError and an elapsed timeout returns *TimeoutError.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	if err := checkDir(c.Dir); err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StreamError{Stream: Stdin, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StreamError{Stream: Stdout, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StreamError{Stream: Stderr, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("executing %s: %w", c.Argv[0], ctxErr)
		}
		return nil, &SpawnError{Binary: c.Argv[0], Err: err}
	}

	outW := &limitWriter{limit: r.MaxOutput}
	errW := &limitWriter{limit: r.MaxOutput}
	stdinUnread := false

	// All three pipes are serviced at once. Reading stdout to EOF before
	// touching stderr deadlocks as soon as the child fills the stderr pipe.
	var g errgroup.Group
	g.Go(func() error {
		err := feed(stdin, c.Stdin)
		if isBrokenPipe(err) {
			stdinUnread = true
			return nil
		}
		return err
	})
	g.Go(func() error { return drain(Stdout, stdout, outW) })
	g.Go(func() error { return drain(Stderr, stderr, errW) })
	ioErr := g.Wait()

	// Wait must only be called once every pipe read has finished.
	waitErr := cmd.Wait()

	res := &Result{
		RunID:       runID,
		Stdout:      outW.buf.Bytes(),
		Stderr:      errW.buf.Bytes(),
		Truncated:   outW.truncated || errW.truncated,
		StdinUnread: stdinUnread,
		Duration:    time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, &TimeoutError{Binary: c.Argv[0], After: res.Duration.Round(time.Millisecond), Partial: res}
		}
		return nil, fmt.Errorf("executing %s: %w", c.Argv[0], ctxErr)
	}

	if ioErr != nil {
		return nil, ioErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("waiting for %s: %w", c.Argv[0], waitErr)
		}
	}

	return res, nil
}

// feed writes data to the child's stdin and closes it so the child sees EOF.
func feed(w io.WriteCloser, data []byte) error {
	var err error
	if len(data) > 0 {
		_, err = w.Write(data)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &StreamError{Stream: Stdin, Err: err}
	}
	return nil
}

// drain copies one output stream until EOF, tagging failures with the
// stream name.
func drain(stream Stream, r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return &StreamError{Stream: stream, Err: err}
	}
	return nil
}

// isBrokenPipe reports whether err means the child closed its stdin before
// reading everything. That is the child's decision, and its exit status and
// stderr describe the outcome better than the write error does.
func isBrokenPipe(err error) bool {
	return err != nil && errors.Is(err, syscall.EPIPE)
}

func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %q is not a directory", dir)
	}
	return nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
// A zero limit means no cap.
type limitWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
