// Package mcp exposes turnguard sessions as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/turnguard/internal/session"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// Server wraps the MCP SDK server around a session runtime.
type Server struct {
	mcpServer *mcpsdk.Server
	rt        *session.Runtime
	log       *slog.Logger
}

// New creates an MCP server serving rt. The caller keeps ownership of rt.
func New(rt *session.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rt: rt, log: logger}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "turnguard",
			Version: Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all turnguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_start",
		Description: "Start a guarded conversation on the active policy. Returns the session id, the current intent and its allowed successors.",
	}, s.handleStart)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_turn",
		Description: "Send one user message through a session. The reply has already passed every guard; blocked replies are replaced with a refusal.",
	}, s.handleTurn)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_guard_check",
		Description: "Run the policy guards over a piece of text without a session (dry-run).",
	}, s.handleGuardCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_allowed",
		Description: "Show the current intent of a session and the intents allowed next.",
	}, s.handleAllowed)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_history",
		Description: "Show the committed message history, intent and slots of a session.",
	}, s.handleHistory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_end",
		Description: "End a session. Its audit records are kept.",
	}, s.handleEnd)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "turnguard_pending",
		Description: "List intents waiting for human approval.",
	}, s.handlePending)
}
