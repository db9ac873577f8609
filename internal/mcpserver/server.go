// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Raido tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/tracker"
)

// Server wraps the MCP server with Raido tools. All tools are read-only:
// mutations must go through the REST API so the optimistic edit pipeline
// is never bypassed.
type Server struct {
	mcp *server.MCPServer
	svc *tracker.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *tracker.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_initiatives",
		mcp.WithDescription("List tracked initiatives. Soft-deleted records are excluded "+
			"unless include_deleted is true."),
		mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted initiatives")),
	), s.listInitiatives)

	s.mcp.AddTool(mcp.NewTool("get_initiative",
		mcp.WithDescription("Read one initiative with its comments and full metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Initiative id")),
	), s.getInitiative)

	s.mcp.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Read the per-field change history of one initiative."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Initiative id")),
	), s.getHistory)

	s.mcp.AddTool(mcp.NewTool("list_notifications",
		mcp.WithDescription("List notifications for a user, newest first."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User id")),
		mcp.WithBoolean("unread_only", mcp.Description("Only unread notifications")),
	), s.listNotifications)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listInitiatives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeDeleted := req.GetBool("include_deleted", false)
	return jsonResult(s.svc.List(includeDeleted)), nil
}

func (s *Server) getInitiative(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ini, err := s.svc.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(ini), nil
}

func (s *Server) getHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ini, err := s.svc.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if len(ini.History) == 0 {
		return mcp.NewToolResultText("no recorded changes"), nil
	}
	return jsonResult(ini.History), nil
}

func (s *Server) listNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	unreadOnly := req.GetBool("unread_only", false)
	ns := s.svc.Notifications(user, unreadOnly)
	if len(ns) == 0 {
		return mcp.NewToolResultText("no notifications"), nil
	}
	return jsonResult(ns), nil
}
