package debugger

import (
	"fmt"

	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// unknownPath is the sentinel reported when a frame's position cannot be
// determined. Inspection degrades to it instead of failing the request.
const unknownPath = "unknown"

// stackFrames builds the full stack view, innermost frame first. Frame ids
// reverse engine order so that id 0 is always the innermost frame.
func (d *Debugger) stackFrames(current *engine.Location) []protocol.StackFrame {
	stack := d.eng.CallStack()
	n := len(stack)

	frames := make([]protocol.StackFrame, 0, n)
	for id := 0; id < n; id++ {
		frame := stack[n-1-id]
		name := frame.FunctionName()
		if name == "" {
			name = protocol.AnonymousFunctionName
		}
		loc := d.frameLocation(frame, id, current)
		frames = append(frames, protocol.StackFrame{
			ID:     id,
			Name:   name,
			File:   loc.Path,
			Line:   loc.Line,
			Column: loc.Column,
		})
	}
	return frames
}

// frameLocation decides the reported position of one frame. Every frame
// reports the site of the call in progress inside it; the innermost frame
// has no call in flight, so it reports the pause location when one is known
// and otherwise falls back to its own invocation site, then the sentinel.
func (d *Debugger) frameLocation(frame engine.Frame, id int, current *engine.Location) engine.Location {
	if id == 0 && current != nil {
		return *current
	}
	if site, ok := frame.InvocationSite(); ok {
		return engine.Location{
			Path:   d.translator.ToAbsolute(site.Path),
			Line:   site.Line,
			Column: site.Column,
		}
	}
	return engine.Location{Path: unknownPath}
}

// scopes builds the scope chain of the identified frame, innermost record
// first, registering a variables reference for each record.
func (d *Debugger) scopes(frameID int) ([]protocol.Scope, error) {
	stack := d.eng.CallStack()
	n := len(stack)
	if frameID < 0 || frameID >= n {
		return nil, errors.InvalidFrameID(frameID, n)
	}

	var scopes []protocol.Scope
	for rec := stack[n-1-frameID].Environment(); rec != nil; rec = rec.Parent() {
		scopes = append(scopes, protocol.Scope{
			Name:               scopeName(rec),
			VariablesReference: d.vars.RegisterRecord(rec),
			Expensive:          rec.Kind() == engine.RecordGlobal,
		})
	}
	return scopes, nil
}

// scopeName renders a record's display name. The record kinds are a closed
// set; anything else is an engine bug, not a protocol error.
func scopeName(rec engine.Record) string {
	switch rec.Kind() {
	case engine.RecordGlobal:
		return "Global"
	case engine.RecordFunctionLocal:
		name := rec.FunctionName()
		if name == "" {
			name = "anonymous function"
		}
		return "Local: " + name
	case engine.RecordDeclarative:
		return "Block"
	case engine.RecordDynamic:
		return "With"
	default:
		panic(fmt.Sprintf("debugger: unknown environment record kind %d", rec.Kind()))
	}
}
