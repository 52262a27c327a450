package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug tool API. Control tools appear only in
// full mode; a read-only server still lists, inspects, and evaluates.
func (s *Server) registerTools() {
	// Session Management (both modes)
	s.registerDebugLaunch()
	s.registerDebugDisconnect()
	s.registerDebugListSessions()

	// Inspection (both modes)
	s.registerDebugSnapshot()
	s.registerDebugEvaluate()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugBreakpoints()
		s.registerDebugContinue()
		s.registerDebugStep()
	}
}

// Session Management Tools

func (s *Server) registerDebugLaunch() {
	tool := mcp.NewTool("debug_launch",
		mcp.WithDescription("Start replaying a recorded execution trace. The session starts paused before the first step: use debug_continue to run to the first breakpoint or debug_step to advance one checkpoint. Returns sessionId needed for all other tools."),
		mcp.WithString("trace",
			mcp.Description("Path to the trace file to replay. Defaults to the trace the server was started with."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLaunch)
}

func (s *Server) registerDebugDisconnect() {
	tool := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("Tear down a replay session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugDisconnect)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active replay sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

// Inspection Tools

func (s *Server) registerDebugSnapshot() {
	tool := mcp.NewTool("debug_snapshot",
		mcp.WithDescription("Get the paused session's state in ONE call: stack frames, scopes, and variables. This is the primary inspection tool - use it instead of stitching together individual calls. Returns: {stackFrames, scopes, variables}."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("maxStackDepth",
			mcp.Description("Maximum number of stack frames to return (default: 10)"),
		),
		mcp.WithBoolean("expandVariables",
			mcp.Description("Include the variables of each cheap scope (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSnapshot)
}

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate an expression in a paused frame. Replay sessions resolve plain identifiers: any variable name visible from the frame's scope chain."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("The expression to evaluate, e.g. 'total'"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Stack frame ID for context (default: 0, the innermost frame)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}

// Control Tools (full mode only)

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Add, remove, enable, or disable breakpoints. Batches are deltas: adding does not clear earlier breakpoints. Positions must match recorded checkpoints exactly (file, line, column)."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of 'add', 'remove', 'enable', 'disable'"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of positions: [{line: number, column?: number}]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Resume the replay until the next breakpoint or diagnostic stop. Returns the stop location, or status 'terminated' when the trace runs out, or 'running' if no stop is reached in time - use debug_snapshot to check again later."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Execute a step command. Use type='over' to stay in the current function, 'in' to enter calls, 'out' to finish the current function. Returns the new stop location."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'in', 'over', or 'out'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}
