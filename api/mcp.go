package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the service tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerRunNowTool(srv)
	s.registerListTargetsTool(srv)
	s.registerRecentChangesTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("marshal: %w", err))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res, nil
}

func (s *Server) registerRunNowTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "idlwatch_run_now",
		Description: "Run one monitoring pass over all targets, then deliver pending notifications. Returns the run summary and per-channel send results.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		run, err := s.pipeline.Run(ctx)
		if err != nil {
			return toolError(err)
		}
		notifications := make(map[string]any)
		for _, channel := range s.notifier.Channels() {
			res, err := s.notifier.SendPending(ctx, channel)
			if err != nil {
				return toolError(err)
			}
			notifications[channel] = res
		}
		return toolResult(map[string]any{"run": run, "notifications": notifications})
	})
}

func (s *Server) registerListTargetsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "idlwatch_list_targets",
		Description: "List monitored program targets with their last check status.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		targets, err := s.store.ListTargets(ctx)
		if err != nil {
			return toolError(err)
		}
		return toolResult(targets)
	})
}

type recentChangesRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) registerRecentChangesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "idlwatch_recent_changes",
		Description: "Return the most recently detected interface changes, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r recentChangesRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err))
			}
		}
		changes, err := s.store.RecentChanges(ctx, r.Limit)
		if err != nil {
			return toolError(err)
		}
		return toolResult(changes)
	})
}
