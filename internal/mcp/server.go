// Package mcp projects the action catalog as MCP tools over stdio, so MCP
// clients (Claude Desktop, Cursor) can drive the same actions the HTTP API
// exposes.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quillagent/quill/internal/actions"
)

// Runner executes actions. Satisfied by actions.Dispatcher.
type Runner interface {
	Execute(ctx context.Context, name string, params map[string]any) actions.Response
}

// QuillServerDeps holds the dependencies for creating a QuillServer.
type QuillServerDeps struct {
	Registry *actions.Registry
	Runner   Runner
	Logger   *slog.Logger
}

// QuillServer wraps an MCP server whose tool list mirrors the action catalog.
type QuillServer struct {
	registry  *actions.Registry
	runner    Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewQuillServer creates a QuillServer with one tool per registered action
// plus a catalog tool.
func NewQuillServer(deps QuillServerDeps) *QuillServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &QuillServer{
		registry: deps.Registry,
		runner:   deps.Runner,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"quill",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Quill publishes blog posts through the Blogger API. Each tool is one action; use quill.catalog to inspect action metadata (costs, preconditions, types) before planning a sequence."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *QuillServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *QuillServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools builds the tool list from the current catalog.
func (s *QuillServer) tools() []server.ServerTool {
	descs := s.registry.ListActions()
	tools := make([]server.ServerTool, 0, len(descs)+1)

	tools = append(tools, server.ServerTool{Tool: catalogTool(), Handler: s.handleCatalog})
	for _, desc := range descs {
		tools = append(tools, server.ServerTool{
			Tool:    actionTool(desc),
			Handler: s.actionHandler(desc.Name),
		})
	}
	return tools
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("quill.catalog",
		mcp.WithDescription("List registered actions and type descriptors with costs, values, preconditions, and postconditions"),
	)
}

// actionTool maps a descriptor's typed inputs onto MCP tool parameters.
// Structured kinds (arrays, objects, registered types) become object or array
// parameters; the wire payload is the same parameter map the HTTP API takes.
func actionTool(desc actions.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(desc.Description)}
	for _, in := range desc.Inputs {
		switch in.Kind {
		case "string":
			opts = append(opts, mcp.WithString(in.Name, mcp.Description(in.Name)))
		case "number":
			opts = append(opts, mcp.WithNumber(in.Name, mcp.Description(in.Name)))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(in.Name, mcp.Description(in.Name)))
		case "array":
			opts = append(opts, mcp.WithArray(in.Name, mcp.Description(in.Name)))
		default:
			// Registered type or free-form object.
			opts = append(opts, mcp.WithObject(in.Name, mcp.Description(in.Kind)))
		}
	}
	return mcp.NewTool(desc.Name, opts...)
}

func (s *QuillServer) handleCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"actions": s.registry.ListActions(),
		"types":   s.registry.ListTypes(),
	})
}

// actionHandler dispatches a tool call through the action runner. Error
// envelopes become MCP tool errors; the protocol error stays nil so clients
// see the action failure, not a transport fault.
func (s *QuillServer) actionHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := req.GetArguments()
		resp := s.runner.Execute(ctx, name, params)
		if resp.Status == actions.StatusError {
			return mcp.NewToolResultError(resp.Error), nil
		}
		return marshalResult(resp.Result)
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
