// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes replay debugging through MCP tools that can be used by
// AI assistants and other MCP clients:
//
// Session Management (always available):
//   - debug_launch: Start replaying a recorded trace
//   - debug_disconnect: Tear down a session
//   - debug_list_sessions: List active sessions
//
// Inspection (always available):
//   - debug_snapshot: Stack frames, scopes, and variables in one call
//   - debug_evaluate: Look up values in a paused frame
//
// Control (full mode only):
//   - debug_breakpoints: Add/remove/enable/disable breakpoints
//   - debug_continue: Resume until the next stop
//   - debug_step: Step in/over/out
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mstrand/haltpoint/internal/config"
	"github.com/mstrand/haltpoint/internal/version"
)

// Server wraps the MCP server with replay debugging capabilities.
type Server struct {
	mcpServer *server.MCPServer
	sessions  *Manager
	config    *config.Config
}

// NewServer creates a haltpoint MCP server.
func NewServer(cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		"haltpoint",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		sessions:  NewManager(cfg),
		config:    cfg,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server and all sessions.
func (s *Server) Close() {
	s.sessions.Close()
}

// Sessions returns the session manager.
func (s *Server) Sessions() *Manager {
	return s.sessions
}
