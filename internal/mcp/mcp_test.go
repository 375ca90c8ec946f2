package mcp

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/deixis/tinker/internal/artisan"
	"github.com/deixis/tinker/internal/report"
	"github.com/deixis/tinker/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setup creates a full tinker MCP server + client over in-memory transports.
// php is the interpreter binary; project is the default Laravel root.
func setup(t *testing.T, php, project string) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	inv := &artisan.Invoker{
		Launcher:    &runner.Runner{Timeout: 30 * time.Second},
		Strategy:    artisan.Tinker{},
		Interpreter: php,
		Store:       store,
	}

	server := NewServer(inv, store, project)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

// fakePHP writes a shell script that stands in for the PHP binary.
func fakePHP(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreters are POSIX shell scripts")
	}
	path := filepath.Join(t.TempDir(), "php")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// newProject creates a directory with an artisan file in it.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "artisan"), []byte("<?php\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// structured returns a field of the structured tool output.
func structured(t *testing.T, r *mcp.CallToolResult, key string) any {
	t.Helper()
	m, ok := r.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("StructuredContent = %T, want object", r.StructuredContent)
	}
	return m[key]
}

func TestListTools(t *testing.T) {
	cs := setup(t, "php", "")
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{"execute_laravel_code", "run_artisan_command", "inspect_run"} {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

// --- execute_laravel_code ---

func TestExecuteCode_EchoesStdin(t *testing.T) {
	php := fakePHP(t, `cat`)
	project := newProject(t)
	cs := setup(t, php, "")

	res := callTool(t, cs, "execute_laravel_code", map[string]any{
		"code":         "echo 1+1;",
		"laravel_path": project,
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if text := resultText(res); text != "echo 1+1;" {
		t.Errorf("text = %q", text)
	}
	if kind := structured(t, res, "kind"); kind != "ok" {
		t.Errorf("kind = %v, want ok", kind)
	}
	if id, _ := structured(t, res, "run_id").(string); id == "" {
		t.Error("expected run_id")
	}
}

func TestExecuteCode_DefaultProject(t *testing.T) {
	php := fakePHP(t, `pwd`)
	project := newProject(t)
	cs := setup(t, php, project)

	res := callTool(t, cs, "execute_laravel_code", map[string]any{"code": ""})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	want, _ := filepath.EvalSymlinks(project)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(resultText(res)))
	if got != want {
		t.Errorf("working dir = %q, want %q", got, want)
	}
}

func TestExecuteCode_MissingProject(t *testing.T) {
	cs := setup(t, "php", "")
	res := callTool(t, cs, "execute_laravel_code", map[string]any{
		"code":         "echo 1;",
		"laravel_path": t.TempDir(),
	})
	if !res.IsError {
		t.Error("expected IsError")
	}
	if text := resultText(res); text != "Artisan command not found" {
		t.Errorf("text = %q", text)
	}
	if kind := structured(t, res, "kind"); kind != "project_marker_not_found" {
		t.Errorf("kind = %v", kind)
	}
}

func TestExecuteCode_NonZeroExit(t *testing.T) {
	php := fakePHP(t, `echo out; echo boom >&2; exit 3`)
	cs := setup(t, php, newProject(t))

	res := callTool(t, cs, "execute_laravel_code", map[string]any{"code": "throw new Exception;"})
	if !res.IsError {
		t.Error("expected IsError for non-zero exit")
	}
	if text := resultText(res); text != "out\nboom\n" {
		t.Errorf("text = %q", text)
	}
	if code := structured(t, res, "exit_code"); code != float64(3) {
		t.Errorf("exit_code = %v, want 3", code)
	}
}

func TestExecuteCode_InterpreterOverride(t *testing.T) {
	php := fakePHP(t, `cat >/dev/null; echo override`)
	cs := setup(t, "/nonexistent/php", newProject(t))

	res := callTool(t, cs, "execute_laravel_code", map[string]any{
		"code":               "1;",
		"interpreter_binary": php,
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if text := resultText(res); text != "override\n" {
		t.Errorf("text = %q", text)
	}
}

func TestExecuteCode_SpawnError(t *testing.T) {
	cs := setup(t, "/nonexistent/php", newProject(t))
	res := callTool(t, cs, "execute_laravel_code", map[string]any{"code": "1;"})
	if !res.IsError {
		t.Error("expected IsError")
	}
	if kind := structured(t, res, "kind"); kind != "spawn_error" {
		t.Errorf("kind = %v", kind)
	}
	if !strings.Contains(resultText(res), "/nonexistent/php") {
		t.Errorf("expected binary in text, got %q", resultText(res))
	}
}

func TestExecuteCode_MissingCode(t *testing.T) {
	cs := setup(t, "php", newProject(t))
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "execute_laravel_code",
		Arguments: map[string]any{},
	})
	if err == nil && !res.IsError {
		t.Error("expected a missing code argument to be rejected")
	}
}

// --- run_artisan_command ---

func TestRunArtisanCommand(t *testing.T) {
	php := fakePHP(t, `echo "$@"`)
	cs := setup(t, php, "")

	res := callTool(t, cs, "run_artisan_command", map[string]any{
		"command":      `route:list --path="api v1"`,
		"laravel_path": newProject(t),
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if text := resultText(res); text != "artisan route:list --path=api v1\n" {
		t.Errorf("text = %q", text)
	}
}

func TestRunArtisanCommand_InvalidCommand(t *testing.T) {
	cs := setup(t, "php", newProject(t))
	res := callTool(t, cs, "run_artisan_command", map[string]any{"command": `tinker --execute='oops`})
	if !res.IsError {
		t.Error("expected IsError")
	}
	if kind := structured(t, res, "kind"); kind != "invalid_command" {
		t.Errorf("kind = %v", kind)
	}
}

// --- inspect_run ---

func TestInspectRun_AfterCommand(t *testing.T) {
	php := fakePHP(t, `echo listed; echo deprecated >&2`)
	cs := setup(t, php, newProject(t))

	res := callTool(t, cs, "run_artisan_command", map[string]any{"command": "list"})
	id, _ := structured(t, res, "run_id").(string)
	if id == "" {
		t.Fatal("expected run_id")
	}

	res = callTool(t, cs, "inspect_run", map[string]any{"run_id": id})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	text := resultText(res)
	for _, want := range []string{
		"Run: " + id + " (command)",
		"Result: ok (exit 0)",
		"Stdout:\n    listed",
		"Stderr:\n    deprecated",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestInspectRun_OperationFilter(t *testing.T) {
	php := fakePHP(t, `echo listed`)
	cs := setup(t, php, newProject(t))

	res := callTool(t, cs, "run_artisan_command", map[string]any{"command": "list"})
	id, _ := structured(t, res, "run_id").(string)

	res = callTool(t, cs, "inspect_run", map[string]any{"run_id": id, "operation": "command"})
	if res.IsError {
		t.Errorf("unexpected error: %s", resultText(res))
	}

	res = callTool(t, cs, "inspect_run", map[string]any{"run_id": id, "operation": "code"})
	if !res.IsError {
		t.Error("expected IsError for a command run inspected as code")
	}
	if !strings.Contains(resultText(res), "not a code run") {
		t.Errorf("text = %q", resultText(res))
	}
}

func TestInspectRun_Unknown(t *testing.T) {
	cs := setup(t, "php", "")
	res := callTool(t, cs, "inspect_run", map[string]any{"run_id": "nope"})
	if !res.IsError {
		t.Error("expected IsError for unknown run")
	}
	if !strings.Contains(resultText(res), "Failed to load run nope") {
		t.Errorf("text = %q", resultText(res))
	}
}

func TestInspectRun_EmptyID(t *testing.T) {
	cs := setup(t, "php", "")
	res := callTool(t, cs, "inspect_run", map[string]any{"run_id": ""})
	if !res.IsError {
		t.Error("expected IsError")
	}
}

func TestInstructionsEmbedded(t *testing.T) {
	if !strings.Contains(Instructions, "run_artisan_command") {
		t.Error("instructions do not describe the tools")
	}
}
