package mcp

import (
	"context"
	"fmt"

	"github.com/deixis/tinker/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID     string `json:"run_id" jsonschema:"the run ID from an execute_laravel_code or run_artisan_command result"`
	Operation string `json:"operation,omitempty" jsonschema:"optional: code or command. The run must be of this kind."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult("run history is disabled")
	}

	rec, err := report.Lookup(h.store, params.RunID, params.Operation)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	return textResult(rec.Format())
}
