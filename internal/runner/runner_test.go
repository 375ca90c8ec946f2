package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runner tests use POSIX shell utilities")
	}
	return &Runner{
		Timeout: 10 * time.Second,
	}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), Command{Argv: []string{"echo", "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(string(res.Stdout), "hello") {
		t.Errorf("Stdout = %q, want to contain 'hello'", res.Stdout)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo boom >&2; exit 3"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if string(res.Stderr) != "boom\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "boom\n")
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), Command{Argv: []string{"nonexistent-binary-xyz-123"}})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error = %T (%v), want *SpawnError", err, err)
	}
	if spawnErr.Binary != "nonexistent-binary-xyz-123" {
		t.Errorf("Binary = %q, want the missing binary name", spawnErr.Binary)
	}
	if !strings.Contains(err.Error(), "nonexistent-binary-xyz-123") {
		t.Errorf("error = %q, want to mention the binary name", err)
	}
}

func TestRun_NotExecutable(t *testing.T) {
	r := newTestRunner(t)
	path := filepath.Join(t.TempDir(), "php")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := r.Run(context.Background(), Command{Argv: []string{path}})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error = %v, want *SpawnError", err)
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), Command{})
	if err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRun_Dir(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(), Command{Argv: []string{"pwd"}, Dir: sub})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "subdir") {
		t.Errorf("Stdout = %q, want to contain 'subdir'", res.Stdout)
	}
}

func TestRun_DirMissing(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), Command{Argv: []string{"pwd"}, Dir: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatal("expected error for missing working directory")
	}
}

func TestRun_StdinRoundTrip(t *testing.T) {
	r := newTestRunner(t)
	for _, n := range []int{0, 10, 1_000_000} {
		in := bytes.Repeat([]byte("x"), n)
		res, err := r.Run(context.Background(), Command{Argv: []string{"cat"}, Stdin: in})
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if !bytes.Equal(res.Stdout, in) {
			t.Errorf("n=%d: got %d bytes back, want %d", n, len(res.Stdout), n)
		}
	}
}

// A child that fills both output pipes before reading stdin deadlocks any
// reader that drains stdout and stderr one after the other.
func TestRun_BothStreamsFull(t *testing.T) {
	r := newTestRunner(t)
	script := `head -c 200000 /dev/zero; head -c 200000 /dev/zero >&2; cat >/dev/null`
	res, err := r.Run(context.Background(), Command{
		Argv:  []string{"sh", "-c", script},
		Stdin: bytes.Repeat([]byte("y"), 500_000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 200000 || len(res.Stderr) != 200000 {
		t.Errorf("len(Stdout) = %d, len(Stderr) = %d, want 200000 each", len(res.Stdout), len(res.Stderr))
	}
}

func TestRun_StdinIgnored(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), Command{
		Argv:  []string{"sh", "-c", "exec 0<&-; echo done"},
		Stdin: bytes.Repeat([]byte("z"), 1<<20),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.StdinUnread {
		t.Error("StdinUnread = false, want true")
	}
	if strings.TrimSpace(string(res.Stdout)) != "done" {
		t.Errorf("Stdout = %q, want done", res.Stdout)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo partial; sleep 10"}})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %s after timeout", elapsed)
	}
	if timeoutErr.Partial == nil || !strings.Contains(string(timeoutErr.Partial.Stdout), "partial") {
		t.Errorf("Partial = %+v, want captured stdout", timeoutErr.Partial)
	}
}

// The background sleep inherits the output pipes; only killing the whole
// process group lets the reads finish.
func TestRun_TimeoutKillsGrandchildren(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), Command{Argv: []string{"sh", "-c", "sleep 30 & wait"}})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %s after timeout", elapsed)
	}
}

func TestRun_Cancelled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, Command{Argv: []string{"sleep", "10"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100 // very small cap

	// Generate output larger than cap.
	res, err := r.Run(context.Background(), Command{Argv: []string{"sh", "-c", "dd if=/dev/zero bs=200 count=1 2>/dev/null"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Stdout) > r.MaxOutput {
		t.Errorf("len(Stdout) = %d, want <= %d", len(res.Stdout), r.MaxOutput)
	}
}

func TestRun_Unlimited(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), Command{Argv: []string{"sh", "-c", "head -c 3000000 /dev/zero"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Truncated || len(res.Stdout) != 3000000 {
		t.Errorf("len(Stdout) = %d, Truncated = %v; want 3000000, false", len(res.Stdout), res.Truncated)
	}
}

func TestStreamError_Message(t *testing.T) {
	cause := errors.New("broken")
	if got := (&StreamError{Stream: Stdin, Err: cause}).Error(); got != "writing stdin: broken" {
		t.Errorf("stdin message = %q", got)
	}
	if got := (&StreamError{Stream: Stderr, Err: cause}).Error(); got != "reading stderr: broken" {
		t.Errorf("stderr message = %q", got)
	}
	if !errors.Is(&StreamError{Stream: Stdout, Err: cause}, cause) {
		t.Error("StreamError does not unwrap to its cause")
	}
}
