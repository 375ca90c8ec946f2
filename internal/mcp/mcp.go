// Package mcp provides the tinker MCP server, registering the invocation
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/tinker"
	"github.com/deixis/tinker/internal/artisan"
	"github.com/deixis/tinker/internal/config"
	"github.com/deixis/tinker/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	invoker *artisan.Invoker
	store   report.Store

	mu      sync.Mutex
	project string // used when a call omits laravel_path; updated via roots
}

// NewServer creates an MCP server with all tinker tools registered.
// project is the default Laravel root for calls that omit laravel_path.
func NewServer(inv *artisan.Invoker, store report.Store, project string) *mcp.Server {
	h := &handler{
		invoker: inv,
		store:   store,
		project: project,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateProjectFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "tinker", Version: tinker.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "execute_laravel_code",
		Description: `Evaluate PHP code inside a Laravel application and return its output.

The code is piped into "php artisan tinker" (or evaluated with php -r after
requiring vendor/autoload.php, depending on server configuration). The result
text is the captured output; kind tells success apart from failure.`,
	}, h.codeHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_artisan_command",
		Description: `Run an artisan command in a Laravel project and return its output.

Pass the command and its arguments, e.g. "migrate:status" or "route:list --path=api".
Quotes group arguments containing spaces. Runs with the project root as working directory.`,
	}, h.commandHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "inspect_run",
		Description: `Show the full record of an earlier execute_laravel_code or run_artisan_command call.

Use the run_id from the earlier result. Shows argv, exit code, stdout and stderr separately.`,
	}, h.inspectHandler)

	return s
}

// updateProjectFromRoots queries the client for MCP roots and makes the
// Laravel project containing the first root the default.
// This is called during session initialization, before any tool calls.
func (h *handler) updateProjectFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	root, err := config.FindProjectRoot(u.Path)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.project = root
	h.mu.Unlock()
}

// projectFor returns path, or the default project when path is empty.
func (h *handler) projectFor(path string) string {
	if path != "" {
		return path
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.project
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
