package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// stopWait bounds how long control tools wait for the replay to reach its
// next stop before reporting it still running.
const stopWait = 5 * time.Second

// Session Management Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tracePath, err := request.RequireString("trace")
	if err != nil || tracePath == "" {
		tracePath = s.config.Trace
	}
	if tracePath == "" {
		return mcp.NewToolResultError(errors.MissingParameter("trace",
			"Provide the path to a recorded trace file, or start the server with one configured.").Error()), nil
	}

	session, err := s.sessions.Launch(tracePath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    string(session.Status()),
		"trace":     session.TracePath,
	})
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.sessions.Terminate(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessions.List()

	result := make([]Info, len(sessions))
	for i, session := range sessions {
		result[i] = session.Info()
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
	})
}

// Inspection Handlers

func (s *Server) handleDebugSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	maxStackDepth := 10
	if d, err := request.RequireFloat("maxStackDepth"); err == nil {
		maxStackDepth = int(d)
	}
	expandVariables := request.GetBool("expandVariables", true)

	frames, err := session.Client.StackFrames()
	if err != nil {
		return mcp.NewToolResultError(errors.Wrap(errors.FromError(err).Code, "failed to get stack frames",
			"The replay may have terminated. Use debug_list_sessions to check session status.", err).Error()), nil
	}

	snapshot := map[string]interface{}{
		"sessionId": session.ID,
		"status":    string(session.Status()),
	}

	if maxStackDepth > 0 && len(frames) > maxStackDepth {
		frames = frames[:maxStackDepth]
	}

	framesList := make([]map[string]interface{}, len(frames))
	scopes := make(map[string]interface{})
	variables := make(map[string]interface{})

	for i, f := range frames {
		framesList[i] = map[string]interface{}{
			"id":     f.ID,
			"name":   f.Name,
			"file":   f.File,
			"line":   f.Line,
			"column": f.Column,
		}

		// Scopes for the top frames only; the rest stay one call away.
		if i >= 3 {
			continue
		}
		frameScopes, err := session.Client.Scopes(f.ID)
		if err != nil {
			continue
		}

		scopesList := make([]map[string]interface{}, len(frameScopes))
		for j, scope := range frameScopes {
			scopesList[j] = map[string]interface{}{
				"name":               scope.Name,
				"variablesReference": scope.VariablesReference,
			}

			if expandVariables && scope.VariablesReference > 0 && !scope.Expensive {
				vars, err := session.Client.Variables(scope.VariablesReference)
				if err != nil {
					continue
				}
				varsList := make([]map[string]interface{}, len(vars))
				for k, v := range vars {
					varsList[k] = map[string]interface{}{
						"name":               v.Name,
						"value":              v.Value,
						"type":               v.Type,
						"variablesReference": v.VariablesReference,
					}
				}
				variables[fmt.Sprintf("%d", scope.VariablesReference)] = varsList
			}
		}
		scopes[fmt.Sprintf("%d", f.ID)] = scopesList
	}

	snapshot["stackFrames"] = framesList
	snapshot["scopes"] = scopes
	if expandVariables {
		snapshot["variables"] = variables
	}

	return jsonResult(snapshot)
}

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanEvaluate() {
		return mcp.NewToolResultError(errors.PermissionDenied("evaluate", string(s.config.Mode)).Error()), nil
	}

	session, err := s.getSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("expression",
			"Provide the expression to evaluate, e.g. a variable name visible from the paused frame.").Error()), nil
	}

	frameID := 0
	if f, err := request.RequireFloat("frameId"); err == nil {
		frameID = int(f)
	}

	result, err := session.Client.Evaluate(frameID, expression)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"result":             result.Result,
		"type":               result.Type,
		"variablesReference": result.VariablesReference,
	})
}

// Control Handlers

func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bpsJSON, err := request.RequireString("breakpoints")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var positions []struct {
		Line   int `json:"line"`
		Column int `json:"column,omitempty"`
	}
	if err := json.Unmarshal([]byte(bpsJSON), &positions); err != nil {
		return mcp.NewToolResultError(errors.InvalidJSON("breakpoints", err, `[{"line": 10}, {"line": 20, "column": 4}]`).Error()), nil
	}

	batch := make([]protocol.Breakpoint, len(positions))
	for i, p := range positions {
		batch[i] = protocol.Breakpoint{
			File:    path,
			Line:    p.Line,
			Column:  p.Column,
			Enabled: true,
		}
	}

	var states []protocol.BreakpointState
	switch action {
	case "add":
		states, err = session.Client.AddBreakpoints(batch)
	case "remove":
		states, err = session.Client.RemoveBreakpoints(batch)
	case "enable":
		states, err = session.Client.EnableBreakpoints(batch)
	case "disable":
		states, err = session.Client.DisableBreakpoints(batch)
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("action", action, "'add', 'remove', 'enable', or 'disable'").Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := make([]map[string]interface{}, len(states))
	for i, st := range states {
		result[i] = map[string]interface{}{
			"id":       st.ID,
			"file":     st.File,
			"line":     st.Line,
			"column":   st.Column,
			"enabled":  st.Enabled,
			"verified": st.Verified,
		}
	}

	return jsonResult(map[string]interface{}{
		"action":      action,
		"breakpoints": result,
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session.setStatus(SessionStatusRunning)
	stopped, err := session.Client.RunAndWait(stopWait)
	if err != nil {
		return s.runningOrTerminated(session, err)
	}

	session.setStatus(SessionStatusStopped)
	return stoppedResult(session, stopped)
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var wait func(time.Duration) (*protocol.StoppedEvent, error)
	switch stepType {
	case "in":
		wait = session.Client.StepInAndWait
	case "over":
		wait = session.Client.StepOverAndWait
	case "out":
		wait = session.Client.StepOutAndWait
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "'in', 'over', or 'out'").Error()), nil
	}

	session.setStatus(SessionStatusRunning)
	stopped, err := wait(stopWait)
	if err != nil {
		return s.runningOrTerminated(session, err)
	}

	session.setStatus(SessionStatusStopped)
	return stoppedResult(session, stopped)
}

// runningOrTerminated turns a missing stop into a status report: the replay
// either ran out of steps or is still heading for its next stop. Anything
// else is a real failure.
func (s *Server) runningOrTerminated(session *Session, err error) (*mcp.CallToolResult, error) {
	select {
	case <-session.Done():
		session.setStatus(SessionStatusTerminated)
		return jsonResult(map[string]interface{}{
			"sessionId": session.ID,
			"status":    string(SessionStatusTerminated),
		})
	default:
	}

	if de := errors.FromError(err); de.Code == errors.CodeWaitTimeout {
		return jsonResult(map[string]interface{}{
			"sessionId": session.ID,
			"status":    string(SessionStatusRunning),
		})
	}

	return mcp.NewToolResultError(err.Error()), nil
}

// stoppedResult reports where the session paused.
func stoppedResult(session *Session, ev *protocol.StoppedEvent) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"sessionId": session.ID,
		"status":    string(SessionStatusStopped),
		"reason":    string(ev.Reason),
		"file":      ev.File,
		"line":      ev.Line,
		"column":    ev.Column,
	}
	if ev.Message != "" {
		result["message"] = ev.Message
	}
	if len(ev.HitBreakpointIDs) > 0 {
		result["hitBreakpointIds"] = ev.HitBreakpointIDs
	}
	return jsonResult(result)
}

func (s *Server) getSession(request mcp.CallToolRequest) (*Session, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, errors.MissingParameter("sessionId",
			"Provide the sessionId returned from debug_launch. Use debug_list_sessions to see active sessions.")
	}

	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status() == SessionStatusTerminated {
		return nil, errors.SessionTerminated(sessionID)
	}
	return session, nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
