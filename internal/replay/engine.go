package replay

import (
	"context"
	"fmt"
	"log"

	"github.com/mstrand/haltpoint/internal/debugger"
	"github.com/mstrand/haltpoint/internal/engine"
)

// Engine replays a recorded execution through the debug core. It implements
// engine.Engine for whichever step is currently being replayed. Like a real
// script engine it is single-threaded: Run and the core's hooks share one
// goroutine.
type Engine struct {
	trace *Trace
	stack []engine.Frame
}

// NewEngine wraps a loaded trace.
func NewEngine(trace *Trace) *Engine {
	return &Engine{trace: trace}
}

// CallStack implements engine.Engine, outermost frame first.
func (e *Engine) CallStack() []engine.Frame {
	return e.stack
}

// Evaluate implements engine.Engine. A recording has no live interpreter,
// so replay supports plain identifier lookup through the frame's
// environment chain and nothing richer.
func (e *Engine) Evaluate(frame engine.Frame, expression string) (engine.Value, error) {
	if !isIdentifier(expression) {
		return nil, fmt.Errorf("only identifiers can be evaluated during replay")
	}
	for rec := frame.Environment(); rec != nil; rec = rec.Parent() {
		for _, b := range rec.Bindings() {
			if b.Name == expression {
				return b.Value, nil
			}
		}
	}
	return nil, fmt.Errorf("%q is not defined", expression)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Run replays the trace against a session: every recorded step becomes a
// checkpoint, preceded by its diagnostic when the stop policy clears it.
// Run blocks the calling goroutine for the whole replay, pausing inside the
// core whenever the core decides to stop. A canceled ctx ends the replay at
// the next step boundary.
func (e *Engine) Run(ctx context.Context, dbg *debugger.Debugger) error {
	for _, step := range e.trace.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.stack = buildStack(step.Stack)
		loc := engine.Location{
			Path:   step.Location.Path,
			Line:   step.Location.Line,
			Column: step.Location.Column,
		}

		if d := step.Diagnostic; d != nil {
			sev, _ := engine.ParseSeverity(d.Severity) // validated at load
			if dbg.ShouldStop(sev) {
				dbg.HandleDiagnostic(engine.Diagnostic{
					Severity: sev,
					Code:     d.Code,
					Message:  d.Message,
					Location: &loc,
				})
			} else {
				log.Printf("Diagnostic below stop threshold at %s: %s %s: %s", loc, sev, d.Code, d.Message)
			}
		}

		dbg.Checkpoint(loc)
	}
	return nil
}
