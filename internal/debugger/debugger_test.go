package debugger

import (
	"fmt"
	"testing"
	"time"

	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/internal/sourcepath"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// --- Engine fakes ---

type fakeValue struct {
	str      string
	typeName string
	children []engine.Binding
}

func (v *fakeValue) String() string             { return v.str }
func (v *fakeValue) TypeName() string           { return v.typeName }
func (v *fakeValue) Children() []engine.Binding { return v.children }

type fakeRecord struct {
	kind     engine.RecordKind
	fn       string
	parent   engine.Record
	bindings []engine.Binding
}

func (r *fakeRecord) Kind() engine.RecordKind    { return r.kind }
func (r *fakeRecord) FunctionName() string       { return r.fn }
func (r *fakeRecord) Parent() engine.Record      { return r.parent }
func (r *fakeRecord) Bindings() []engine.Binding { return r.bindings }

type fakeFrame struct {
	fn   string
	site *engine.Location
	env  engine.Record
}

func (f *fakeFrame) FunctionName() string { return f.fn }

func (f *fakeFrame) InvocationSite() (engine.Location, bool) {
	if f.site == nil {
		return engine.Location{}, false
	}
	return *f.site, true
}

func (f *fakeFrame) Environment() engine.Record { return f.env }

type fakeEngine struct {
	stack []engine.Frame
	eval  func(frame engine.Frame, expression string) (engine.Value, error)
}

func (e *fakeEngine) CallStack() []engine.Frame { return e.stack }

func (e *fakeEngine) Evaluate(frame engine.Frame, expression string) (engine.Value, error) {
	if e.eval == nil {
		return nil, fmt.Errorf("no evaluator")
	}
	return e.eval(frame, expression)
}

// --- Session harness ---

// scriptStep is one scripted checkpoint: the stack in effect when it runs and
// an optional diagnostic raised just before it, the way a real engine would.
type scriptStep struct {
	loc   engine.Location
	stack []engine.Frame
	diag  *engine.Diagnostic
}

type harness struct {
	t    *testing.T
	d    *Debugger
	eng  *fakeEngine
	seq  int
	done chan struct{}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	eng := &fakeEngine{}
	d, err := New(opts, eng)
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	return &harness{t: t, d: d, eng: eng}
}

// start runs the scripted execution on its own goroutine: the initial
// command-loop gate, then each checkpoint in order.
func (h *harness) start(script []scriptStep) {
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.d.WaitForCommands()
		for _, s := range script {
			h.eng.stack = s.stack
			if s.diag != nil {
				diag := *s.diag
				if diag.Location == nil {
					loc := s.loc
					diag.Location = &loc
				}
				if h.d.ShouldStop(diag.Severity) {
					h.d.HandleDiagnostic(diag)
				}
			}
			h.d.Checkpoint(s.loc)
		}
	}()
}

func (h *harness) send(cmd protocol.Command, args protocol.Arguments) int {
	h.seq++
	h.d.Requests() <- protocol.Request{Seq: h.seq, Command: cmd, Arguments: args}
	return h.seq
}

func (h *harness) recv() protocol.Message {
	h.t.Helper()
	select {
	case msg := <-h.d.Events():
		return msg
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for a core message")
		return nil
	}
}

func (h *harness) expectBreakpoints(seq int) *protocol.BreakpointsResponse {
	h.t.Helper()
	msg := h.recv()
	resp, ok := msg.(*protocol.BreakpointsResponse)
	if !ok {
		h.t.Fatalf("expected breakpoints response, got %T", msg)
	}
	if resp.RequestSeq != seq {
		h.t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	return resp
}

func (h *harness) expectStopped(reason protocol.StopReason) *protocol.StoppedEvent {
	h.t.Helper()
	msg := h.recv()
	ev, ok := msg.(*protocol.StoppedEvent)
	if !ok {
		h.t.Fatalf("expected stopped event, got %T", msg)
	}
	if ev.Reason != reason {
		h.t.Fatalf("expected stop reason %q, got %q", reason, ev.Reason)
	}
	return ev
}

func (h *harness) expectError(seq int, code errors.ErrorCode) *protocol.ErrorResponse {
	h.t.Helper()
	msg := h.recv()
	resp, ok := msg.(*protocol.ErrorResponse)
	if !ok {
		h.t.Fatalf("expected error response, got %T", msg)
	}
	if resp.RequestSeq != seq {
		h.t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	if resp.Code != string(code) {
		h.t.Fatalf("expected error code %s, got %s", code, resp.Code)
	}
	return resp
}

func (h *harness) waitDone() {
	h.t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for the scripted execution to finish")
	}
}

func (h *harness) expectNoEvents() {
	h.t.Helper()
	select {
	case msg := <-h.d.Events():
		h.t.Fatalf("expected no further messages, got %T", msg)
	default:
	}
}

func loc(path string, line, column int) engine.Location {
	return engine.Location{Path: path, Line: line, Column: column}
}

func bp(file string, line, column int) protocol.Breakpoint {
	return protocol.Breakpoint{File: file, Line: line, Column: column, Enabled: true}
}

var mainStack = []engine.Frame{&fakeFrame{fn: "main"}}

// --- Dispatcher ---

// TestDispatcher_BreakpointLifecycle verifies the four breakpoint batches:
// each produces exactly one acknowledgment, in submission order, and resume
// produces none.
func TestDispatcher_BreakpointLifecycle(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start(nil)

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 3, 1), bp("b.ls", 7, 2)},
	})
	disableSeq := h.send(protocol.CommandBreakpointDisable, protocol.BreakpointDisableArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 3, 1)},
	})
	enableSeq := h.send(protocol.CommandBreakpointEnable, protocol.BreakpointEnableArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 3, 1)},
	})
	removeSeq := h.send(protocol.CommandBreakpointRemove, protocol.BreakpointRemoveArguments{
		Breakpoints: []protocol.Breakpoint{bp("b.ls", 7, 2)},
	})

	added := h.expectBreakpoints(addSeq)
	if len(added.Breakpoints) != 2 {
		t.Fatalf("expected 2 acknowledged breakpoints, got %d", len(added.Breakpoints))
	}
	if added.Breakpoints[0].ID != 1 || added.Breakpoints[1].ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", added.Breakpoints[0].ID, added.Breakpoints[1].ID)
	}
	if !added.Breakpoints[0].Verified {
		t.Error("expected registered breakpoints acknowledged as verified")
	}
	if added.Response.Command != protocol.CommandBreakpointAdd {
		t.Errorf("expected command echoed, got %s", added.Response.Command)
	}

	disabled := h.expectBreakpoints(disableSeq)
	if len(disabled.Breakpoints) != 1 || disabled.Breakpoints[0].Enabled {
		t.Errorf("expected breakpoint 1 disabled, got %+v", disabled.Breakpoints)
	}

	enabled := h.expectBreakpoints(enableSeq)
	if len(enabled.Breakpoints) != 1 || !enabled.Breakpoints[0].Enabled {
		t.Errorf("expected breakpoint 1 re-enabled, got %+v", enabled.Breakpoints)
	}

	removed := h.expectBreakpoints(removeSeq)
	if len(removed.Breakpoints) != 1 || removed.Breakpoints[0].ID != 2 {
		t.Errorf("expected breakpoint 2 removed, got %+v", removed.Breakpoints)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestDispatcher_UnknownCommand verifies that an unrecognized command gets an
// error response and the loop keeps serving.
func TestDispatcher_UnknownCommand(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start(nil)

	h.d.Requests() <- protocol.Request{Seq: 1, Command: "frobnicate"}
	h.seq = 1
	h.expectError(1, errors.CodeUnknownCommand)

	// The dispatcher is still alive.
	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 1, 1)},
	})
	h.expectBreakpoints(addSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestDispatcher_NilArgumentsPanic verifies that a known command without its
// argument payload is a programming error.
func TestDispatcher_NilArgumentsPanic(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for nil arguments")
		}
	}()
	h.d.processRequest(protocol.Request{Seq: 1, Command: protocol.CommandRun}, nil)
}

// TestDispatcher_MismatchedArgumentsPanic verifies that a payload built for a
// different command is a programming error.
func TestDispatcher_MismatchedArgumentsPanic(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for mismatched arguments")
		}
	}()
	h.d.processRequest(protocol.Request{
		Seq:       1,
		Command:   protocol.CommandRun,
		Arguments: protocol.StepInArguments{},
	}, nil)
}

// TestDispatcher_StepWithoutLocationPanic verifies that stepping before
// execution has produced a pause location is a programming error.
func TestDispatcher_StepWithoutLocationPanic(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a step with no current location")
		}
	}()
	h.d.processRequest(protocol.Request{
		Seq:       1,
		Command:   protocol.CommandStepIn,
		Arguments: protocol.StepInArguments{},
	}, nil)
}

// --- Checkpoint hook ---

// TestCheckpoint_BreakpointStop verifies the full pause cycle: an enabled
// breakpoint stops execution, the event carries position, message, and hit
// ids, and resume runs the script to completion with no further messages.
func TestCheckpoint_BreakpointStop(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("a.ls", 1, 1), stack: mainStack},
		{loc: loc("a.ls", 2, 1), stack: mainStack},
		{loc: loc("a.ls", 3, 1), stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 2, 1)},
	})
	h.expectBreakpoints(addSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	ev := h.expectStopped(protocol.StopReasonBreakpoint)
	if ev.File != "a.ls" || ev.Line != 2 || ev.Column != 1 {
		t.Errorf("expected stop at a.ls:2:1, got %s:%d:%d", ev.File, ev.Line, ev.Column)
	}
	if ev.Message != "hit breakpoint 1" {
		t.Errorf("expected message 'hit breakpoint 1', got %q", ev.Message)
	}
	if len(ev.HitBreakpointIDs) != 1 || ev.HitBreakpointIDs[0] != 1 {
		t.Errorf("expected hit id [1], got %v", ev.HitBreakpointIDs)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestCheckpoint_DisabledBreakpointRunsPast verifies that disabling a
// breakpoint suppresses its stop without removing it.
func TestCheckpoint_DisabledBreakpointRunsPast(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("a.ls", 2, 1), stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 2, 1)},
	})
	h.expectBreakpoints(addSeq)
	disableSeq := h.send(protocol.CommandBreakpointDisable, protocol.BreakpointDisableArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 2, 1)},
	})
	h.expectBreakpoints(disableSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestCheckpoint_DuplicateCollapse verifies that consecutive checkpoints for
// the same position and depth collapse into the first, and that the position
// becomes stoppable again once execution has moved elsewhere.
func TestCheckpoint_DuplicateCollapse(t *testing.T) {
	target := loc("a.ls", 2, 1)
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: target, stack: mainStack},
		{loc: target, stack: mainStack},
		{loc: target, stack: mainStack},
		{loc: loc("a.ls", 3, 1), stack: mainStack},
		{loc: target, stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 2, 1)},
	})
	h.expectBreakpoints(addSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)

	// The two duplicate checkpoints are skipped; the revisit after moving
	// away stops again.
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestCheckpoint_SameLocationNewDepth verifies that recursion into the same
// position is a new execution, not a duplicate.
func TestCheckpoint_SameLocationNewDepth(t *testing.T) {
	target := loc("fib.ls", 1, 1)
	deeper := []engine.Frame{&fakeFrame{fn: "main"}, &fakeFrame{fn: "fib"}}
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: target, stack: mainStack},
		{loc: target, stack: deeper},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("fib.ls", 1, 1)},
	})
	h.expectBreakpoints(addSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// --- Stepping ---

func callScript() []scriptStep {
	inner := []engine.Frame{&fakeFrame{fn: "main"}, &fakeFrame{fn: "helper"}}
	return []scriptStep{
		{loc: loc("main.ls", 1, 1), stack: mainStack},
		{loc: loc("lib.ls", 1, 1), stack: inner},
		{loc: loc("lib.ls", 2, 1), stack: inner},
		{loc: loc("main.ls", 2, 1), stack: mainStack},
	}
}

// stopAtFirst arms a breakpoint on the script's first position and runs to it.
func stopAtFirst(h *harness, file string, line, column int) {
	h.t.Helper()
	seq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp(file, line, column)},
	})
	h.expectBreakpoints(seq)
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)
}

// TestStepIn_StopsAtNextUnit verifies that step-in pauses at the very next
// executable unit, following calls inward.
func TestStepIn_StopsAtNextUnit(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start(callScript())
	stopAtFirst(h, "main.ls", 1, 1)

	h.send(protocol.CommandStepIn, protocol.StepInArguments{})
	ev := h.expectStopped(protocol.StopReasonStep)
	if ev.File != "lib.ls" || ev.Line != 1 {
		t.Errorf("expected step to land at lib.ls:1, got %s:%d", ev.File, ev.Line)
	}
	if ev.Message != "completed step in" {
		t.Errorf("expected message 'completed step in', got %q", ev.Message)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestStepOver_SkipsCalleeUnits verifies that step-over runs through deeper
// frames and pauses back at the origin depth.
func TestStepOver_SkipsCalleeUnits(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start(callScript())
	stopAtFirst(h, "main.ls", 1, 1)

	h.send(protocol.CommandStepOver, protocol.StepOverArguments{})
	ev := h.expectStopped(protocol.StopReasonStep)
	if ev.File != "main.ls" || ev.Line != 2 {
		t.Errorf("expected step to land at main.ls:2, got %s:%d", ev.File, ev.Line)
	}
	if ev.Message != "completed step over" {
		t.Errorf("expected message 'completed step over', got %q", ev.Message)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestStepOut_StopsAfterReturn verifies that step-out pauses only once the
// origin frame has returned.
func TestStepOut_StopsAfterReturn(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start(callScript())
	stopAtFirst(h, "lib.ls", 1, 1)

	h.send(protocol.CommandStepOut, protocol.StepOutArguments{})
	ev := h.expectStopped(protocol.StopReasonStep)
	if ev.File != "main.ls" || ev.Line != 2 {
		t.Errorf("expected step to land at main.ls:2, got %s:%d", ev.File, ev.Line)
	}
	if ev.Message != "completed step out" {
		t.Errorf("expected message 'completed step out', got %q", ev.Message)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestStep_BreakpointWinsArbitration verifies that when a breakpoint and a
// satisfied step coincide, the stop reports the breakpoint and the step is
// consumed rather than firing later.
func TestStep_BreakpointWinsArbitration(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("a.ls", 1, 1), stack: mainStack},
		{loc: loc("a.ls", 2, 1), stack: mainStack},
		{loc: loc("a.ls", 3, 1), stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 1, 1), bp("a.ls", 2, 1)},
	})
	h.expectBreakpoints(addSeq)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)

	// The step would be satisfied at a.ls:2, but the breakpoint there wins.
	h.send(protocol.CommandStepOver, protocol.StepOverArguments{})
	ev := h.expectStopped(protocol.StopReasonBreakpoint)
	if ev.Line != 2 {
		t.Fatalf("expected stop at line 2, got %d", ev.Line)
	}
	if len(ev.HitBreakpointIDs) != 1 || ev.HitBreakpointIDs[0] != 2 {
		t.Errorf("expected hit id [2], got %v", ev.HitBreakpointIDs)
	}

	// The consumed step must not stop the remaining script at a.ls:3.
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// --- Inspection ---

// inspectionStack returns a two-frame stack with environments: main calling
// helper, paused inside helper.
func inspectionStack() []engine.Frame {
	global := &fakeRecord{kind: engine.RecordGlobal, bindings: []engine.Binding{
		{Name: "version", Value: &fakeValue{str: "\"1.0\"", typeName: "string"}},
	}}
	mainLocal := &fakeRecord{kind: engine.RecordFunctionLocal, fn: "main", parent: global}
	helperLocal := &fakeRecord{kind: engine.RecordFunctionLocal, fn: "helper", parent: global, bindings: []engine.Binding{
		{Name: "x", Value: &fakeValue{str: "1", typeName: "number"}},
		{Name: "obj", Value: &fakeValue{str: "{n: 2}", typeName: "object", children: []engine.Binding{
			{Name: "n", Value: &fakeValue{str: "2", typeName: "number"}},
		}}},
	}}
	block := &fakeRecord{kind: engine.RecordDeclarative, parent: helperLocal, bindings: []engine.Binding{
		{Name: "tmp", Value: &fakeValue{str: "true", typeName: "boolean"}},
	}}

	main := &fakeFrame{fn: "main", site: &engine.Location{Path: "main.ls", Line: 5, Column: 3}, env: mainLocal}
	helper := &fakeFrame{fn: "helper", env: block}
	return []engine.Frame{main, helper}
}

// TestInspection_StackFrames verifies frame ordering, id reversal, the
// current-location rule for frame 0, and invocation sites for outer frames.
func TestInspection_StackFrames(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("lib.ls", 9, 1), stack: inspectionStack()},
	})
	stopAtFirst(h, "lib.ls", 9, 1)

	seq := h.send(protocol.CommandStackFrames, protocol.StackFramesArguments{})
	msg := h.recv()
	resp, ok := msg.(*protocol.StackFramesResponse)
	if !ok {
		t.Fatalf("expected stack frames response, got %T", msg)
	}
	if resp.RequestSeq != seq {
		t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	if len(resp.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(resp.Frames))
	}

	inner := resp.Frames[0]
	if inner.ID != 0 || inner.Name != "helper" {
		t.Errorf("expected frame 0 'helper', got id %d name %q", inner.ID, inner.Name)
	}
	if inner.File != "lib.ls" || inner.Line != 9 || inner.Column != 1 {
		t.Errorf("expected frame 0 at the pause location, got %s:%d:%d", inner.File, inner.Line, inner.Column)
	}

	outer := resp.Frames[1]
	if outer.ID != 1 || outer.Name != "main" {
		t.Errorf("expected frame 1 'main', got id %d name %q", outer.ID, outer.Name)
	}
	if outer.File != "main.ls" || outer.Line != 5 || outer.Column != 3 {
		t.Errorf("expected frame 1 at its invocation site, got %s:%d:%d", outer.File, outer.Line, outer.Column)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestInspection_FrameLocationFallbacks verifies the position rules outside a
// pause: a frame with a call in flight reports its site, anything else the
// unknown sentinel.
func TestInspection_FrameLocationFallbacks(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.eng.stack = []engine.Frame{
		&fakeFrame{fn: "main", site: &engine.Location{Path: "main.ls", Line: 4, Column: 2}},
		&fakeFrame{fn: ""},
	}

	frames := h.d.stackFrames(nil)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Name != protocol.AnonymousFunctionName {
		t.Errorf("expected anonymous frame name %q, got %q", protocol.AnonymousFunctionName, frames[0].Name)
	}
	if frames[0].File != "unknown" || frames[0].Line != 0 || frames[0].Column != 0 {
		t.Errorf("expected unknown position for frame 0, got %s:%d:%d", frames[0].File, frames[0].Line, frames[0].Column)
	}
	if frames[1].File != "main.ls" || frames[1].Line != 4 {
		t.Errorf("expected invocation site for frame 1, got %s:%d", frames[1].File, frames[1].Line)
	}

	// Without a pause location, frame 0 falls back to its invocation site.
	h.eng.stack = []engine.Frame{
		&fakeFrame{fn: "main", site: &engine.Location{Path: "main.ls", Line: 4, Column: 2}},
	}
	frames = h.d.stackFrames(nil)
	if frames[0].File != "main.ls" || frames[0].Line != 4 {
		t.Errorf("expected frame 0 at its own site, got %s:%d", frames[0].File, frames[0].Line)
	}
}

// TestInspection_ScopesAndVariables verifies the scope chain walk, scope
// naming, reference registration, and child expansion, all during one pause.
func TestInspection_ScopesAndVariables(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("lib.ls", 9, 1), stack: inspectionStack()},
	})
	stopAtFirst(h, "lib.ls", 9, 1)

	seq := h.send(protocol.CommandScopes, protocol.ScopesArguments{FrameID: 0})
	msg := h.recv()
	resp, ok := msg.(*protocol.ScopesResponse)
	if !ok {
		t.Fatalf("expected scopes response, got %T", msg)
	}
	if resp.RequestSeq != seq {
		t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	if len(resp.Scopes) != 3 {
		t.Fatalf("expected 3 scopes, got %d", len(resp.Scopes))
	}

	if resp.Scopes[0].Name != "Block" || resp.Scopes[1].Name != "Local: helper" || resp.Scopes[2].Name != "Global" {
		t.Errorf("expected scope chain Block, Local: helper, Global; got %q, %q, %q",
			resp.Scopes[0].Name, resp.Scopes[1].Name, resp.Scopes[2].Name)
	}
	if resp.Scopes[0].Expensive || resp.Scopes[1].Expensive || !resp.Scopes[2].Expensive {
		t.Error("expected only the global scope marked expensive")
	}
	if resp.Scopes[0].VariablesReference == 0 || resp.Scopes[0].VariablesReference == resp.Scopes[1].VariablesReference {
		t.Error("expected distinct nonzero references per scope")
	}

	varSeq := h.send(protocol.CommandVariables, protocol.VariablesArguments{
		VariablesReference: resp.Scopes[1].VariablesReference,
	})
	varMsg := h.recv()
	varResp, ok := varMsg.(*protocol.VariablesResponse)
	if !ok {
		t.Fatalf("expected variables response, got %T", varMsg)
	}
	if varResp.RequestSeq != varSeq {
		t.Fatalf("expected response to request %d, got %d", varSeq, varResp.RequestSeq)
	}
	if len(varResp.Variables) != 2 || varResp.Variables[0].Name != "x" || varResp.Variables[1].Name != "obj" {
		t.Fatalf("expected variables x and obj in declaration order, got %+v", varResp.Variables)
	}
	if varResp.Variables[1].VariablesReference == 0 {
		t.Fatal("expected a child reference for the structured value")
	}

	childSeq := h.send(protocol.CommandVariables, protocol.VariablesArguments{
		VariablesReference: varResp.Variables[1].VariablesReference,
	})
	childMsg := h.recv()
	childResp, ok := childMsg.(*protocol.VariablesResponse)
	if !ok {
		t.Fatalf("expected variables response, got %T", childMsg)
	}
	if childResp.RequestSeq != childSeq {
		t.Fatalf("expected response to request %d, got %d", childSeq, childResp.RequestSeq)
	}
	if len(childResp.Variables) != 1 || childResp.Variables[0].Name != "n" || childResp.Variables[0].Value != "2" {
		t.Errorf("expected child n=2, got %+v", childResp.Variables)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestInspection_InvalidFrameID verifies the typed protocol error for
// out-of-range frame ids and that the loop keeps serving afterwards.
func TestInspection_InvalidFrameID(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("lib.ls", 9, 1), stack: inspectionStack()},
	})
	stopAtFirst(h, "lib.ls", 9, 1)

	seq := h.send(protocol.CommandScopes, protocol.ScopesArguments{FrameID: 5})
	h.expectError(seq, errors.CodeInvalidFrameID)

	// One past the last valid id: the stack is two frames deep.
	seq = h.send(protocol.CommandScopes, protocol.ScopesArguments{FrameID: 2})
	h.expectError(seq, errors.CodeInvalidFrameID)

	seq = h.send(protocol.CommandScopes, protocol.ScopesArguments{FrameID: -1})
	h.expectError(seq, errors.CodeInvalidFrameID)

	h.send(protocol.CommandStackFrames, protocol.StackFramesArguments{})
	if _, ok := h.recv().(*protocol.StackFramesResponse); !ok {
		t.Error("expected the dispatcher to keep serving after a protocol error")
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestInspection_ReferencesInvalidatedOnResume verifies that every resume
// (run and step alike) invalidates outstanding variables references.
func TestInspection_ReferencesInvalidatedOnResume(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("lib.ls", 9, 1), stack: inspectionStack()},
		{loc: loc("lib.ls", 10, 1), stack: inspectionStack()},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("lib.ls", 9, 1), bp("lib.ls", 10, 1)},
	})
	h.expectBreakpoints(addSeq)
	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)

	seq := h.send(protocol.CommandScopes, protocol.ScopesArguments{FrameID: 0})
	resp := h.recv().(*protocol.ScopesResponse)
	if resp.RequestSeq != seq {
		t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	staleRef := resp.Scopes[0].VariablesReference

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.expectStopped(protocol.StopReasonBreakpoint)

	seq = h.send(protocol.CommandVariables, protocol.VariablesArguments{VariablesReference: staleRef})
	h.expectError(seq, errors.CodeInvalidVariableReference)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestInspection_Evaluate verifies evaluation during a pause, including the
// typed error for failing expressions.
func TestInspection_Evaluate(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.eng.eval = func(frame engine.Frame, expression string) (engine.Value, error) {
		if expression == "x" {
			return &fakeValue{str: "1", typeName: "number"}, nil
		}
		return nil, fmt.Errorf("%q is not defined", expression)
	}
	h.start([]scriptStep{
		{loc: loc("lib.ls", 9, 1), stack: inspectionStack()},
	})
	stopAtFirst(h, "lib.ls", 9, 1)

	seq := h.send(protocol.CommandEvaluate, protocol.EvaluateArguments{FrameID: 0, Expression: "x"})
	msg := h.recv()
	resp, ok := msg.(*protocol.EvaluateResponse)
	if !ok {
		t.Fatalf("expected evaluate response, got %T", msg)
	}
	if resp.RequestSeq != seq {
		t.Fatalf("expected response to request %d, got %d", seq, resp.RequestSeq)
	}
	if resp.Result != "1" || resp.Type != "number" {
		t.Errorf("expected result 1 number, got %q %q", resp.Result, resp.Type)
	}

	seq = h.send(protocol.CommandEvaluate, protocol.EvaluateArguments{FrameID: 0, Expression: "missing"})
	h.expectError(seq, errors.CodeEvaluationFailed)

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// TestScopeName verifies the display names for every record kind and the
// panic for a kind outside the closed set.
func TestScopeName(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecord
		want string
	}{
		{"global", &fakeRecord{kind: engine.RecordGlobal}, "Global"},
		{"named local", &fakeRecord{kind: engine.RecordFunctionLocal, fn: "run"}, "Local: run"},
		{"anonymous local", &fakeRecord{kind: engine.RecordFunctionLocal}, "Local: anonymous function"},
		{"block", &fakeRecord{kind: engine.RecordDeclarative}, "Block"},
		{"with", &fakeRecord{kind: engine.RecordDynamic}, "With"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeName(tt.rec); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected a panic for an unknown record kind")
			}
		}()
		scopeName(&fakeRecord{kind: engine.RecordKind(99)})
	})
}

// --- Diagnostics ---

// TestShouldStop verifies the severity threshold policy.
func TestShouldStop(t *testing.T) {
	tests := []struct {
		name      string
		threshold engine.Severity
		sev       engine.Severity
		want      bool
	}{
		{"info under fatal threshold", engine.SeverityFatalError, engine.SeverityInformation, false},
		{"error under fatal threshold", engine.SeverityFatalError, engine.SeverityRecoverableError, false},
		{"fatal at fatal threshold", engine.SeverityFatalError, engine.SeverityFatalError, true},
		{"warning at warning threshold", engine.SeverityWarning, engine.SeverityWarning, true},
		{"fatal over warning threshold", engine.SeverityWarning, engine.SeverityFatalError, true},
		{"info under warning threshold", engine.SeverityWarning, engine.SeverityInformation, false},
		{"info at information threshold", engine.SeverityInformation, engine.SeverityInformation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{StopSeverity: tt.threshold})
			if got := h.d.ShouldStop(tt.sev); got != tt.want {
				t.Errorf("expected ShouldStop=%v, got %v", tt.want, got)
			}
		})
	}
}

// TestHandleDiagnostic_PausesWithFormattedMessage verifies the diagnostic
// pause: reason, position, and the severity-code-message display format.
func TestHandleDiagnostic_PausesWithFormattedMessage(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{
			loc:   loc("a.ls", 4, 2),
			stack: mainStack,
			diag:  &engine.Diagnostic{Severity: engine.SeverityFatalError, Code: "E042", Message: "division by zero"},
		},
	})

	h.send(protocol.CommandRun, protocol.RunArguments{})
	ev := h.expectStopped(protocol.StopReasonDiagnostic)
	if ev.File != "a.ls" || ev.Line != 4 || ev.Column != 2 {
		t.Errorf("expected diagnostic at a.ls:4:2, got %s:%d:%d", ev.File, ev.Line, ev.Column)
	}
	if ev.Message != "Fatal Error E042: division by zero" {
		t.Errorf("expected formatted diagnostic message, got %q", ev.Message)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestHandleDiagnostic_BelowThresholdRunsPast verifies that diagnostics under
// the stop severity do not pause execution.
func TestHandleDiagnostic_BelowThresholdRunsPast(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{
			loc:   loc("a.ls", 4, 2),
			stack: mainStack,
			diag:  &engine.Diagnostic{Severity: engine.SeverityWarning, Code: "W001", Message: "unused variable"},
		},
	})

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
	h.expectNoEvents()
}

// TestHandleDiagnostic_NoLocationPanic verifies that a diagnostic without a
// location is an engine programming error.
func TestHandleDiagnostic_NoLocationPanic(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a diagnostic without a location")
		}
	}()
	h.d.HandleDiagnostic(engine.Diagnostic{Severity: engine.SeverityFatalError, Code: "E1", Message: "boom"})
}

// --- Path translation ---

// TestDebugger_PathTranslation verifies the front-end boundary: breakpoints
// arrive absolute and match relative checkpoint paths, and every outbound
// path is absolute again.
func TestDebugger_PathTranslation(t *testing.T) {
	mapJSON := `{"version": 3, "sources": ["../src/a.ls", "../src/b.ls"], "names": [], "mappings": "AAAA"}`
	opts := DefaultOptions()
	opts.SourceMaps = []sourcepath.SourceMap{{Path: "/proj/build/app.js.map", Contents: []byte(mapJSON)}}

	h := newHarness(t, opts)
	h.start([]scriptStep{
		{loc: loc("a.ls", 1, 1), stack: mainStack},
		{loc: loc("b.ls", 1, 1), stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("/proj/src/a.ls", 1, 1)},
	})
	added := h.expectBreakpoints(addSeq)
	if added.Breakpoints[0].File != "/proj/src/a.ls" {
		t.Errorf("expected acknowledgment in absolute form, got %s", added.Breakpoints[0].File)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	ev := h.expectStopped(protocol.StopReasonBreakpoint)
	if ev.File != "/proj/src/a.ls" {
		t.Errorf("expected absolute stop path, got %s", ev.File)
	}

	// Step origins translate back to relative form for matching.
	h.send(protocol.CommandStepOver, protocol.StepOverArguments{})
	ev = h.expectStopped(protocol.StopReasonStep)
	if ev.File != "/proj/src/b.ls" {
		t.Errorf("expected absolute step path, got %s", ev.File)
	}

	h.send(protocol.CommandRun, protocol.RunArguments{})
	h.waitDone()
}

// --- Teardown ---

// TestDebugger_DetachedAfterChannelClose verifies that once the request
// channel closes, the hooks neither pause nor emit, letting the engine drain.
func TestDebugger_DetachedAfterChannelClose(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.start([]scriptStep{
		{loc: loc("a.ls", 1, 1), stack: mainStack},
	})

	addSeq := h.send(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{
		Breakpoints: []protocol.Breakpoint{bp("a.ls", 1, 1)},
	})
	h.expectBreakpoints(addSeq)

	close(h.d.Requests())
	h.waitDone()
	h.expectNoEvents()
}
