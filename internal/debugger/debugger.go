// Package debugger implements the per-session command dispatcher and the
// execution hooks a script engine drives it through.
//
// A session is single-threaded: the engine goroutine calls
// Checkpoint before each executable unit and HandleDiagnostic for conditions
// that cross the stop policy; both may enter the command loop, which blocks
// that same goroutine on the request channel until a resume-class command
// arrives. Nested pauses are plain recursion into the same loop. Front ends
// talk to a session from other goroutines through Requests and Events; all
// mutable session state stays confined to the engine goroutine.
package debugger

import (
	"fmt"
	"log"

	"github.com/mstrand/haltpoint/internal/breakpoint"
	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/internal/sourcepath"
	"github.com/mstrand/haltpoint/internal/step"
	"github.com/mstrand/haltpoint/internal/stopreason"
	"github.com/mstrand/haltpoint/internal/varref"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

const (
	// requestBuffer decouples front-end writers from the paused-only reader.
	// Commands sent while the engine is running are consumed at the next
	// pause.
	requestBuffer = 16
	// eventBuffer keeps the engine goroutine from blocking on slow front-end
	// readers.
	eventBuffer = 64
)

// Options configures one debug session.
type Options struct {
	// StopSeverity is the minimum diagnostic severity worth pausing for.
	// The zero value pauses on everything; DefaultOptions picks the
	// strictest policy instead.
	StopSeverity engine.Severity

	// SourceMaps drive the session's path translation.
	SourceMaps []sourcepath.SourceMap
}

// DefaultOptions pauses only on fatal diagnostics and translates no paths.
func DefaultOptions() Options {
	return Options{StopSeverity: engine.SeverityFatalError}
}

// Debugger is the debug-control state of one session: the command
// dispatcher, the execution hooks, and the collaborators they share. One
// Debugger serves exactly one engine.
type Debugger struct {
	opts       Options
	eng        engine.Engine
	translator *sourcepath.Translator

	breakpoints *breakpoint.Registry
	steps       *step.Registry
	arbiter     *stopreason.Arbiter
	vars        *varref.Registry

	requests chan protocol.Request
	events   chan protocol.Message

	// lastExecuted de-duplicates checkpoints; see Checkpoint.
	lastExecuted *executionMarker

	// detached flips when the request channel closes: nobody is listening
	// anymore, so the hooks stop pausing and stop emitting events. Engine
	// goroutine only.
	detached bool
}

// New builds a session around an engine. It fails only when a configured
// source map does not parse.
func New(opts Options, eng engine.Engine) (*Debugger, error) {
	translator, err := sourcepath.NewTranslator(opts.SourceMaps)
	if err != nil {
		return nil, err
	}

	return &Debugger{
		opts:        opts,
		eng:         eng,
		translator:  translator,
		breakpoints: breakpoint.NewRegistry(),
		steps:       step.NewRegistry(),
		arbiter:     stopreason.NewArbiter(),
		vars:        varref.NewRegistry(eng),
		requests:    make(chan protocol.Request, requestBuffer),
		events:      make(chan protocol.Message, eventBuffer),
	}, nil
}

// Requests is the channel front ends submit commands on. Closing it ends a
// blocked command loop and abandons the session.
func (d *Debugger) Requests() chan<- protocol.Request {
	return d.requests
}

// Events carries every outbound message: one response per request (none for
// resume-class commands) plus unsolicited stopped events.
func (d *Debugger) Events() <-chan protocol.Message {
	return d.events
}

// Translator exposes the session's path translator to front ends that serve
// source inventories or contents.
func (d *Debugger) Translator() *sourcepath.Translator {
	return d.translator
}

// WaitForCommands runs the command loop with no current location, blocking
// until a resume-class command arrives. Sessions call it once on the engine
// goroutine before execution starts so breakpoints can be configured up
// front. Stepping is not legal here: there is no location to step from.
func (d *Debugger) WaitForCommands() {
	d.commandLoop(nil)
}

// commandLoop reads and processes requests until one resumes execution or
// the request channel closes. current is the pause location in absolute
// form, nil before execution has started.
func (d *Debugger) commandLoop(current *engine.Location) {
	for req := range d.requests {
		if d.processRequest(req, current) {
			return
		}
	}
	d.detached = true
}

// processRequest handles one request and reports whether it resumes
// execution. Protocol-level failures answer with an error response and keep
// the loop alive; malformed requests are front-end programming errors and
// panic.
func (d *Debugger) processRequest(req protocol.Request, current *engine.Location) bool {
	// Unknown commands are protocol errors, so they are rejected before the
	// argument checks: no argument type exists for them.
	if !knownCommand(req.Command) {
		err := errors.UnknownCommand(string(req.Command))
		log.Printf("Dispatcher: %s", err.Message)
		d.sendError(req, err)
		return false
	}

	if req.Arguments == nil {
		panic(fmt.Sprintf("debugger: request %d (%s) carries no arguments", req.Seq, req.Command))
	}
	if kind := req.Arguments.Kind(); kind != req.Command {
		panic(fmt.Sprintf("debugger: request %d command %s got %s arguments", req.Seq, req.Command, kind))
	}

	// Breakpoint and step matching is defined over prefix-relative paths.
	var rel *engine.Location
	if current != nil {
		rel = &engine.Location{
			Path:   d.translator.ToRelative(current.Path),
			Line:   current.Line,
			Column: current.Column,
		}
	}

	switch req.Command {
	case protocol.CommandBreakpointAdd:
		batch := d.relativeBatch(req.Arguments.(protocol.BreakpointAddArguments).Breakpoints)
		d.sendBreakpoints(req, d.breakpoints.Add(batch))

	case protocol.CommandBreakpointRemove:
		batch := d.relativeBatch(req.Arguments.(protocol.BreakpointRemoveArguments).Breakpoints)
		d.sendBreakpoints(req, d.breakpoints.Remove(batch))

	case protocol.CommandBreakpointEnable:
		batch := d.relativeBatch(req.Arguments.(protocol.BreakpointEnableArguments).Breakpoints)
		d.sendBreakpoints(req, d.breakpoints.Enable(batch))

	case protocol.CommandBreakpointDisable:
		batch := d.relativeBatch(req.Arguments.(protocol.BreakpointDisableArguments).Breakpoints)
		d.sendBreakpoints(req, d.breakpoints.Disable(batch))

	case protocol.CommandRun:
		d.vars.Reset()
		return true

	case protocol.CommandStepIn:
		d.registerStep(step.DirectionIn, rel)
		return true

	case protocol.CommandStepOver:
		d.registerStep(step.DirectionOver, rel)
		return true

	case protocol.CommandStepOut:
		d.registerStep(step.DirectionOut, rel)
		return true

	case protocol.CommandStackFrames:
		d.send(&protocol.StackFramesResponse{Response: reply(req), Frames: d.stackFrames(current)})

	case protocol.CommandScopes:
		args := req.Arguments.(protocol.ScopesArguments)
		scopes, err := d.scopes(args.FrameID)
		if err != nil {
			d.sendError(req, err)
			break
		}
		d.send(&protocol.ScopesResponse{Response: reply(req), Scopes: scopes})

	case protocol.CommandVariables:
		args := req.Arguments.(protocol.VariablesArguments)
		vars, err := d.vars.Variables(args.VariablesReference)
		if err != nil {
			d.sendError(req, err)
			break
		}
		d.send(&protocol.VariablesResponse{Response: reply(req), Variables: vars})

	case protocol.CommandEvaluate:
		args := req.Arguments.(protocol.EvaluateArguments)
		res, err := d.vars.Evaluate(args.FrameID, args.Expression)
		if err != nil {
			d.sendError(req, err)
			break
		}
		d.send(&protocol.EvaluateResponse{Response: reply(req), EvaluateResult: res})

	default:
		panic(fmt.Sprintf("debugger: no handler for command %s", req.Command))
	}

	return false
}

// knownCommand reports whether cmd is part of the dispatcher vocabulary.
func knownCommand(cmd protocol.Command) bool {
	switch cmd {
	case protocol.CommandBreakpointAdd, protocol.CommandBreakpointRemove,
		protocol.CommandBreakpointEnable, protocol.CommandBreakpointDisable,
		protocol.CommandRun, protocol.CommandStepIn, protocol.CommandStepOver,
		protocol.CommandStepOut, protocol.CommandStackFrames, protocol.CommandScopes,
		protocol.CommandVariables, protocol.CommandEvaluate:
		return true
	default:
		return false
	}
}

// registerStep arms a step and releases the engine. A step is only
// meaningful relative to a known pause location.
func (d *Debugger) registerStep(dir step.Direction, origin *engine.Location) {
	if origin == nil {
		panic("debugger: step requested without a current location")
	}
	d.steps.Register(dir, *origin, len(d.eng.CallStack()))
	d.vars.Reset()
}

// relativeBatch converts a protocol batch to registry form, translating each
// file to its prefix-relative form.
func (d *Debugger) relativeBatch(bps []protocol.Breakpoint) []breakpoint.Breakpoint {
	out := make([]breakpoint.Breakpoint, 0, len(bps))
	for _, b := range bps {
		out = append(out, breakpoint.Breakpoint{
			File:    d.translator.ToRelative(b.File),
			Line:    b.Line,
			Column:  b.Column,
			Enabled: b.Enabled,
		})
	}
	return out
}

// sendBreakpoints acknowledges a breakpoint batch, reporting files back in
// absolute form.
func (d *Debugger) sendBreakpoints(req protocol.Request, bps []breakpoint.Breakpoint) {
	states := make([]protocol.BreakpointState, 0, len(bps))
	for _, bp := range bps {
		states = append(states, protocol.BreakpointState{
			ID:       bp.ID,
			File:     d.translator.ToAbsolute(bp.File),
			Line:     bp.Line,
			Column:   bp.Column,
			Enabled:  bp.Enabled,
			Verified: true,
		})
	}
	d.send(&protocol.BreakpointsResponse{Response: reply(req), Breakpoints: states})
}

func (d *Debugger) sendError(req protocol.Request, err error) {
	de := errors.FromError(err)
	d.send(&protocol.ErrorResponse{Response: reply(req), Code: string(de.Code), Message: de.Message})
}

func (d *Debugger) send(msg protocol.Message) {
	d.events <- msg
}

func reply(req protocol.Request) protocol.Response {
	return protocol.Response{RequestSeq: req.Seq, Command: req.Command}
}
