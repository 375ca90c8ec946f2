package mcp

import (
	"context"

	"github.com/deixis/tinker/internal/artisan"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type codeParams struct {
	Code        string `json:"code" jsonschema:"PHP code to evaluate, without an opening <?php tag"`
	LaravelPath string `json:"laravel_path,omitempty" jsonschema:"absolute path of the Laravel project root (the directory containing artisan). Defaults to the server's project."`
	Interpreter string `json:"interpreter_binary,omitempty" jsonschema:"PHP binary to run, e.g. /usr/bin/php8.3. Defaults to the configured or platform PHP."`
}

type commandParams struct {
	Command     string `json:"command" jsonschema:"artisan command and arguments, e.g. migrate:status or route:list --path=api"`
	LaravelPath string `json:"laravel_path,omitempty" jsonschema:"absolute path of the Laravel project root (the directory containing artisan). Defaults to the server's project."`
	Interpreter string `json:"interpreter_binary,omitempty" jsonschema:"PHP binary to run, e.g. /usr/bin/php8.3. Defaults to the configured or platform PHP."`
}

// invocationOutput is the structured form of an artisan.Outcome.
type invocationOutput struct {
	Text     string `json:"text" jsonschema:"captured output, or the failure message"`
	Kind     string `json:"kind" jsonschema:"ok, non_zero_exit, project_marker_not_found, invalid_command, spawn_error, io_stream_error, timed_out or cancelled"`
	RunID    string `json:"run_id,omitempty" jsonschema:"run ID for inspect_run; empty when nothing was spawned"`
	ExitCode int    `json:"exit_code" jsonschema:"exit status of the PHP process"`
}

func (h *handler) codeHandler(ctx context.Context, req *mcp.CallToolRequest, params codeParams) (*mcp.CallToolResult, invocationOutput, error) {
	// Failures are carried by the outcome; the invoker has already logged them.
	out, _ := h.invoker.RunCode(ctx, params.Code, h.projectFor(params.LaravelPath), params.Interpreter)
	return outcomeResult(out)
}

func (h *handler) commandHandler(ctx context.Context, req *mcp.CallToolRequest, params commandParams) (*mcp.CallToolResult, invocationOutput, error) {
	out, _ := h.invoker.RunCommand(ctx, params.Command, h.projectFor(params.LaravelPath), params.Interpreter)
	return outcomeResult(out)
}

// outcomeResult returns the outcome text as content and flags every kind
// but ok as an error, so hosts that only read content still see failures.
func outcomeResult(o *artisan.Outcome) (*mcp.CallToolResult, invocationOutput, error) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: o.Text}},
		IsError: o.Kind != artisan.KindOK,
	}
	return res, invocationOutput{
		Text:     o.Text,
		Kind:     string(o.Kind),
		RunID:    o.RunID,
		ExitCode: o.ExitCode,
	}, nil
}
