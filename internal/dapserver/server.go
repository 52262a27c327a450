package dapserver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/google/go-dap"

	"github.com/mstrand/haltpoint/internal/client"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/internal/sourcepath"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// The session is single-threaded, so the bridge reports exactly one thread.
const threadID = 1

// Server bridges one editor connection onto one debug session. Editor
// requests turn into session commands, session events travel back to the
// editor as DAP events.
type Server struct {
	transport  *Transport
	session    *client.Client
	translator *sourcepath.Translator

	// Last breakpoint batch applied per file. DAP sends the complete set
	// for a file on every setBreakpoints request, while session commands
	// are deltas, so the previous batch is removed before the new one is
	// added. Only touched from the Serve goroutine.
	applied map[string][]protocol.Breakpoint
}

// NewServer wires a transport to a session. The server registers itself as
// the session's event handler.
func NewServer(transport *Transport, session *client.Client, translator *sourcepath.Translator) *Server {
	s := &Server{
		transport:  transport,
		session:    session,
		translator: translator,
		applied:    make(map[string][]protocol.Breakpoint),
	}
	session.SetEventHandler(s.onSessionEvent)
	return s
}

// Serve handles editor requests until the editor disconnects or the
// transport fails. It is meant to run on its own goroutine while the engine
// replays on another. Closing the transport unblocks a pending read.
func (s *Server) Serve(ctx context.Context) error {
	for {
		msg, err := s.transport.Receive()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		done, err := s.handleRequest(msg)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Terminated tells the editor the replay has run to completion.
func (s *Server) Terminated() {
	ev := &dap.TerminatedEvent{Event: s.newEvent("terminated")}
	if err := s.transport.Send(ev); err != nil {
		log.Printf("DAP: failed to send terminated event: %v", err)
	}
}

// handleRequest dispatches a single editor request. The returned error is a
// transport failure; session errors become DAP error responses instead.
func (s *Server) handleRequest(msg dap.Message) (done bool, err error) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		return false, s.onInitialize(req)
	case *dap.LaunchRequest:
		// The trace is loaded at process start, nothing to launch.
		return false, s.transport.Send(&dap.LaunchResponse{Response: s.newResponse(req.Request)})
	case *dap.AttachRequest:
		return false, s.transport.Send(&dap.AttachResponse{Response: s.newResponse(req.Request)})
	case *dap.SetBreakpointsRequest:
		return false, s.onSetBreakpoints(req)
	case *dap.SetExceptionBreakpointsRequest:
		// Diagnostic stops are governed by the configured severity
		// threshold, not by editor-side exception filters.
		return false, s.transport.Send(&dap.SetExceptionBreakpointsResponse{Response: s.newResponse(req.Request)})
	case *dap.ConfigurationDoneRequest:
		return false, s.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		return false, s.onThreads(req)
	case *dap.StackTraceRequest:
		return false, s.onStackTrace(req)
	case *dap.ScopesRequest:
		return false, s.onScopes(req)
	case *dap.VariablesRequest:
		return false, s.onVariables(req)
	case *dap.EvaluateRequest:
		return false, s.onEvaluate(req)
	case *dap.ContinueRequest:
		return false, s.onContinue(req)
	case *dap.NextRequest:
		return false, s.onNext(req)
	case *dap.StepInRequest:
		return false, s.onStepIn(req)
	case *dap.StepOutRequest:
		return false, s.onStepOut(req)
	case *dap.LoadedSourcesRequest:
		return false, s.onLoadedSources(req)
	case *dap.SourceRequest:
		return false, s.onSource(req)
	case *dap.PauseRequest:
		return false, s.sendError(req.Request, fmt.Errorf("pause is not supported: the engine only stops at checkpoints"))
	case *dap.DisconnectRequest:
		return true, s.transport.Send(&dap.DisconnectResponse{Response: s.newResponse(req.Request)})
	default:
		if rm, ok := msg.(dap.RequestMessage); ok {
			return false, s.sendError(*rm.GetRequest(), fmt.Errorf("unsupported request: %s", rm.GetRequest().Command))
		}
		log.Printf("DAP: ignoring unexpected message %T", msg)
		return false, nil
	}
}

func (s *Server) onInitialize(req *dap.InitializeRequest) error {
	resp := &dap.InitializeResponse{Response: s.newResponse(req.Request)}
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsLoadedSourcesRequest:     true,
	}
	if err := s.transport.Send(resp); err != nil {
		return err
	}
	return s.transport.Send(&dap.InitializedEvent{Event: s.newEvent("initialized")})
}

func (s *Server) onSetBreakpoints(req *dap.SetBreakpointsRequest) error {
	path := req.Arguments.Source.Path
	if path == "" {
		return s.sendError(req.Request, fmt.Errorf("setBreakpoints requires a source path"))
	}

	if old := s.applied[path]; len(old) > 0 {
		if _, err := s.session.RemoveBreakpoints(old); err != nil {
			return s.sendError(req.Request, err)
		}
	}

	batch := make([]protocol.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, sb := range req.Arguments.Breakpoints {
		batch = append(batch, protocol.Breakpoint{
			File:    path,
			Line:    sb.Line,
			Column:  sb.Column,
			Enabled: true,
		})
	}

	resp := &dap.SetBreakpointsResponse{Response: s.newResponse(req.Request)}
	if len(batch) == 0 {
		delete(s.applied, path)
		return s.transport.Send(resp)
	}

	states, err := s.session.AddBreakpoints(batch)
	if err != nil {
		return s.sendError(req.Request, err)
	}
	s.applied[path] = batch

	resp.Body.Breakpoints = make([]dap.Breakpoint, 0, len(states))
	for _, st := range states {
		resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.Breakpoint{
			Id:       st.ID,
			Verified: st.Verified,
			Source:   &dap.Source{Name: filepath.Base(st.File), Path: st.File},
			Line:     st.Line,
			Column:   st.Column,
		})
	}
	return s.transport.Send(resp)
}

func (s *Server) onConfigurationDone(req *dap.ConfigurationDoneRequest) error {
	// Ack before resuming so the response cannot trail the first stopped
	// event.
	if err := s.transport.Send(&dap.ConfigurationDoneResponse{Response: s.newResponse(req.Request)}); err != nil {
		return err
	}
	if err := s.session.Run(); err != nil {
		log.Printf("DAP: run after configurationDone failed: %v", err)
	}
	return nil
}

func (s *Server) onThreads(req *dap.ThreadsRequest) error {
	resp := &dap.ThreadsResponse{Response: s.newResponse(req.Request)}
	resp.Body.Threads = []dap.Thread{{Id: threadID, Name: "main"}}
	return s.transport.Send(resp)
}

func (s *Server) onStackTrace(req *dap.StackTraceRequest) error {
	frames, err := s.session.StackFrames()
	if err != nil {
		return s.sendError(req.Request, err)
	}

	start := req.Arguments.StartFrame
	if start < 0 {
		start = 0
	}
	end := len(frames)
	if req.Arguments.Levels > 0 && start+req.Arguments.Levels < end {
		end = start + req.Arguments.Levels
	}
	if start > end {
		start = end
	}

	resp := &dap.StackTraceResponse{Response: s.newResponse(req.Request)}
	resp.Body.TotalFrames = len(frames)
	resp.Body.StackFrames = make([]dap.StackFrame, 0, end-start)
	for _, fr := range frames[start:end] {
		resp.Body.StackFrames = append(resp.Body.StackFrames, dap.StackFrame{
			Id:     fr.ID,
			Name:   fr.Name,
			Source: &dap.Source{Name: filepath.Base(fr.File), Path: fr.File},
			Line:   fr.Line,
			Column: fr.Column,
		})
	}
	return s.transport.Send(resp)
}

func (s *Server) onScopes(req *dap.ScopesRequest) error {
	scopes, err := s.session.Scopes(req.Arguments.FrameId)
	if err != nil {
		return s.sendError(req.Request, err)
	}

	resp := &dap.ScopesResponse{Response: s.newResponse(req.Request)}
	resp.Body.Scopes = make([]dap.Scope, 0, len(scopes))
	for _, sc := range scopes {
		resp.Body.Scopes = append(resp.Body.Scopes, dap.Scope{
			Name:               sc.Name,
			VariablesReference: sc.VariablesReference,
			Expensive:          sc.Expensive,
		})
	}
	return s.transport.Send(resp)
}

func (s *Server) onVariables(req *dap.VariablesRequest) error {
	vars, err := s.session.Variables(req.Arguments.VariablesReference)
	if err != nil {
		return s.sendError(req.Request, err)
	}

	resp := &dap.VariablesResponse{Response: s.newResponse(req.Request)}
	resp.Body.Variables = make([]dap.Variable, 0, len(vars))
	for _, v := range vars {
		resp.Body.Variables = append(resp.Body.Variables, dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: v.VariablesReference,
		})
	}
	return s.transport.Send(resp)
}

func (s *Server) onEvaluate(req *dap.EvaluateRequest) error {
	result, err := s.session.Evaluate(req.Arguments.FrameId, req.Arguments.Expression)
	if err != nil {
		return s.sendError(req.Request, err)
	}

	resp := &dap.EvaluateResponse{Response: s.newResponse(req.Request)}
	resp.Body.Result = result.Result
	resp.Body.Type = result.Type
	resp.Body.VariablesReference = result.VariablesReference
	return s.transport.Send(resp)
}

func (s *Server) onContinue(req *dap.ContinueRequest) error {
	// Respond before resuming so the response cannot trail the next
	// stopped event.
	resp := &dap.ContinueResponse{Response: s.newResponse(req.Request)}
	resp.Body.AllThreadsContinued = true
	if err := s.transport.Send(resp); err != nil {
		return err
	}
	if err := s.session.Run(); err != nil {
		log.Printf("DAP: continue failed: %v", err)
	}
	return nil
}

func (s *Server) onNext(req *dap.NextRequest) error {
	if err := s.transport.Send(&dap.NextResponse{Response: s.newResponse(req.Request)}); err != nil {
		return err
	}
	if err := s.session.StepOver(); err != nil {
		log.Printf("DAP: next failed: %v", err)
	}
	return nil
}

func (s *Server) onStepIn(req *dap.StepInRequest) error {
	if err := s.transport.Send(&dap.StepInResponse{Response: s.newResponse(req.Request)}); err != nil {
		return err
	}
	if err := s.session.StepIn(); err != nil {
		log.Printf("DAP: stepIn failed: %v", err)
	}
	return nil
}

func (s *Server) onStepOut(req *dap.StepOutRequest) error {
	if err := s.transport.Send(&dap.StepOutResponse{Response: s.newResponse(req.Request)}); err != nil {
		return err
	}
	if err := s.session.StepOut(); err != nil {
		log.Printf("DAP: stepOut failed: %v", err)
	}
	return nil
}

func (s *Server) onLoadedSources(req *dap.LoadedSourcesRequest) error {
	paths := s.translator.Sources()

	resp := &dap.LoadedSourcesResponse{Response: s.newResponse(req.Request)}
	resp.Body.Sources = make([]dap.Source, 0, len(paths))
	for _, p := range paths {
		resp.Body.Sources = append(resp.Body.Sources, dap.Source{Name: filepath.Base(p), Path: p})
	}
	return s.transport.Send(resp)
}

func (s *Server) onSource(req *dap.SourceRequest) error {
	path := ""
	if req.Arguments.Source != nil {
		path = req.Arguments.Source.Path
	}

	content, ok := s.translator.SourceContent(path)
	if !ok {
		return s.sendError(req.Request, fmt.Errorf("no recorded content for %q", path))
	}

	resp := &dap.SourceResponse{Response: s.newResponse(req.Request)}
	resp.Body.Content = content
	return s.transport.Send(resp)
}

// onSessionEvent runs on the session's event goroutine and forwards stopped
// notifications to the editor. Transport sends are mutex-guarded, so this is
// safe alongside the Serve loop.
func (s *Server) onSessionEvent(msg protocol.Message) {
	ev, ok := msg.(*protocol.StoppedEvent)
	if !ok {
		return
	}

	out := &dap.StoppedEvent{Event: s.newEvent("stopped")}
	out.Body = dap.StoppedEventBody{
		Reason:            stopReasonString(ev.Reason),
		Description:       fmt.Sprintf("%s:%d:%d", ev.File, ev.Line, ev.Column),
		ThreadId:          threadID,
		Text:              ev.Message,
		AllThreadsStopped: true,
		HitBreakpointIds:  ev.HitBreakpointIDs,
	}
	if err := s.transport.Send(out); err != nil {
		log.Printf("DAP: failed to send stopped event: %v", err)
	}
}

// stopReasonString maps session stop reasons onto the strings editors expect.
func stopReasonString(reason protocol.StopReason) string {
	switch reason {
	case protocol.StopReasonBreakpoint:
		return "breakpoint"
	case protocol.StopReasonStep:
		return "step"
	case protocol.StopReasonDiagnostic:
		return "exception"
	default:
		return string(reason)
	}
}

func (s *Server) newResponse(req dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.transport.NextSeq(),
			Type: "response",
		},
		RequestSeq: req.Seq,
		Success:    true,
		Command:    req.Command,
	}
}

func (s *Server) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.transport.NextSeq(),
			Type: "event",
		},
		Event: event,
	}
}

func (s *Server) sendError(req dap.Request, err error) error {
	de := errors.FromError(err)

	resp := &dap.ErrorResponse{Response: s.newResponse(req)}
	resp.Success = false
	resp.Message = de.Message
	resp.Body.Error = &dap.ErrorMessage{
		Format:   fmt.Sprintf("%s: %s", de.Code, de.Message),
		ShowUser: true,
	}
	return s.transport.Send(resp)
}
