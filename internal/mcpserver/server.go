// Package mcpserver exposes a session registry as MCP tools, so MCP hosts
// can drive workspace conversations.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/emigo/internal/relay"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

// Tool names.
const (
	ToolConverse = "converse"
	ToolSessions = "sessions"
	ToolHistory  = "history"
)

// tools binds tool handlers to a registry.
type tools struct {
	registry *session.Registry
}

// NewServer creates an MCP server with the converse, sessions and history
// tools.
func NewServer(registry *session.Registry, version string, opts ...server.ServerOption) *server.MCPServer {
	s := server.NewMCPServer(
		"emigo",
		version,
		append([]server.ServerOption{server.WithToolCapabilities(true)}, opts...)...,
	)
	t := &tools{registry: registry}

	s.AddTool(mcp.NewTool(ToolConverse,
		mcp.WithDescription("Send a prompt to the LLM session of a workspace and return the reply. "+
			"@path tokens in the prompt add workspace files to the context."),
		mcp.WithString("workspace",
			mcp.Required(),
			mcp.Description("Workspace directory, or any file inside it"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("User prompt"),
		),
	), t.converse)

	s.AddTool(mcp.NewTool(ToolSessions,
		mcp.WithDescription("List active workspace sessions"),
	), t.sessions)

	s.AddTool(mcp.NewTool(ToolHistory,
		mcp.WithDescription("Return the conversation history of a workspace session"),
		mcp.WithString("workspace",
			mcp.Required(),
			mcp.Description("Workspace directory, or any file inside it"),
		),
	), t.history)

	return s
}

// stringArg extracts a required non-empty string argument.
func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	v, ok := request.GetArguments()[name]
	if !ok {
		return "", fmt.Errorf("%s argument is required", name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", name)
	}
	return s, nil
}

// converse handles the converse tool call.
func (t *tools) converse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, err := stringArg(request, "workspace")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := stringArg(request, "prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := t.registry.Converse(ctx, workspace, prompt)
	if err != nil {
		return mcp.NewToolResultError(failureText(reply, err)), nil
	}
	return mcp.NewToolResultText(reply), nil
}

// failureText renders a failed turn for the tool result.
func failureText(partial string, err error) string {
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) && len(cfgErr.Missing) > 0 {
		return session.MissingConfigMessage
	}
	var se *types.StreamError
	if errors.As(err, &se) {
		text := relay.ErrorText(se.Err)
		if partial != "" {
			text = partial + "\n" + text
		}
		return text
	}
	return err.Error()
}

// sessions handles the sessions tool call.
func (t *tools) sessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.registry.List())
}

// history handles the history tool call.
func (t *tools) history(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, err := stringArg(request, "workspace")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	messages, err := t.registry.History(workspace)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(messages)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
